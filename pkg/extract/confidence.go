package extract

import (
	"github.com/eventhint/eventhint/pkg/event"
)

// ScoreContext carries the extraction context signals that feed the
// confidence score.
type ScoreContext struct {
	Method        event.Method
	TrustedSender bool
	// OCRConfidence attenuates the score when the source text came out of
	// an OCR pass. 1.0 (or anything >= 1.0) means no attenuation.
	OCRConfidence float64
}

// Score computes the confidence for a draft. Additive weights, capped
// at 1.0, then attenuated by OCR confidence when below 1.0.
func Score(d event.Draft, ctx ScoreContext) float64 {
	confidence := 0.0

	if !d.Start.IsZero() {
		confidence += 0.30
		if d.End != nil {
			confidence += 0.05
		}
	}

	if len(d.Title) > 3 {
		confidence += 0.20
	}

	if (d.Location != nil && *d.Location != "") || (d.OnlineURL != nil && *d.OnlineURL != "") {
		confidence += 0.10
	}

	switch ctx.Method {
	case event.MethodDeterministic:
		confidence += 0.20
	case event.MethodLLM:
		confidence += 0.15
	case event.MethodHybrid:
		confidence += 0.25
	}

	if ctx.TrustedSender {
		confidence += 0.05
	}

	if ctx.OCRConfidence > 0 && ctx.OCRConfidence < 1.0 {
		confidence *= ctx.OCRConfidence
	}

	if confidence > 1.0 {
		confidence = 1.0
	}

	return confidence
}
