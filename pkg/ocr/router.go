package ocr

import (
	"context"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/logging"
)

// Router picks between the local and premium providers based on the
// local result's confidence. Premium may be nil when Vision is disabled
// or uncredentialed.
type Router struct {
	local     Provider
	premium   Provider
	threshold float64
	log       logging.Logger
}

// NewRouter builds the confidence-based router.
func NewRouter(local, premium Provider, threshold float64, log logging.Logger) *Router {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Router{local: local, premium: premium, threshold: threshold, log: log}
}

// Extract routes one image or PDF. With preferFree, the local provider
// runs first and its result stands when confidence clears the
// threshold; low confidence escalates to premium when available. A
// failed local pass skips straight to premium. When every available
// provider fails the error kind is OCR_UNAVAILABLE.
func (r *Router) Extract(ctx context.Context, data []byte, preferFree bool) (*Result, error) {
	var localResult *Result

	if preferFree && r.local != nil {
		res, err := r.extractWith(ctx, r.local, data)
		if err != nil {
			r.log.Warn("local ocr failed, trying premium", logging.Err(err))
		} else if res.Confidence >= r.threshold {
			r.log.Debug("local ocr accepted",
				logging.F("confidence", res.Confidence))
			return res, nil
		} else {
			r.log.Info("local ocr below threshold",
				logging.F("confidence", res.Confidence),
				logging.F("threshold", r.threshold))
			localResult = res
		}
	}

	if r.premium != nil {
		res, err := r.extractWith(ctx, r.premium, data)
		if err == nil {
			return res, nil
		}
		r.log.Error("premium ocr failed", logging.Err(err))
		// Fall back to the low-confidence local result if we have one.
		if localResult != nil {
			return localResult, nil
		}
		if !preferFree && r.local != nil {
			if res, lerr := r.extractWith(ctx, r.local, data); lerr == nil {
				return res, nil
			}
		}
		return nil, eherrors.Wrap(eherrors.KindOCRUnavailable, "all ocr providers failed", err)
	}

	// Premium disabled: the local result stands regardless of confidence.
	if localResult != nil {
		return localResult, nil
	}
	if r.local != nil {
		res, err := r.extractWith(ctx, r.local, data)
		if err != nil {
			return nil, eherrors.Wrap(eherrors.KindOCRUnavailable, "all ocr providers failed", err)
		}
		return res, nil
	}
	return nil, eherrors.E(eherrors.KindOCRUnavailable, "no ocr providers configured")
}

// extractWith dispatches to the PDF path when the payload is a PDF,
// combining page results into one.
func (r *Router) extractWith(ctx context.Context, p Provider, data []byte) (*Result, error) {
	if IsPDF(data) {
		pages, err := p.ExtractPDF(ctx, data)
		if err != nil {
			return nil, err
		}
		return CombinePages(pages), nil
	}
	return p.Extract(ctx, data)
}
