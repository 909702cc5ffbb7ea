// Package pipeline orchestrates message processing: source resolution,
// attachment OCR, parallel extraction, merging, and event persistence
// with auto-approval routing.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/event"
	"github.com/eventhint/eventhint/pkg/extract"
	"github.com/eventhint/eventhint/pkg/gmail"
	"github.com/eventhint/eventhint/pkg/logging"
	"github.com/eventhint/eventhint/pkg/observability"
	"github.com/eventhint/eventhint/pkg/ocr"
	"github.com/eventhint/eventhint/pkg/queues"
	"github.com/eventhint/eventhint/pkg/scrape"
	"github.com/eventhint/eventhint/pkg/store"
)

// rejectedRetention is how long rejected events are kept before the
// cleanup sweep removes them.
const rejectedRetention = 30 * 24 * time.Hour

// maxStoredLinks caps the synthetic link attachment built from a
// scraped page.
const maxStoredLinks = 50

// MessageStore is the slice of the message repository the pipeline uses.
type MessageStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*store.Message, error)
	Update(ctx context.Context, m *store.Message) error
}

// UserStore resolves message owners for extraction hints.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*store.User, error)
}

// EventStore persists extracted events.
type EventStore interface {
	CreateBatch(ctx context.Context, events []*event.Event) error
	DeleteRejectedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// OCRRouter is the confidence-routing OCR entry point.
type OCRRouter interface {
	Extract(ctx context.Context, data []byte, preferFree bool) (*ocr.Result, error)
}

// PageScraper resolves website messages.
type PageScraper interface {
	Scrape(ctx context.Context, rawURL string) *scrape.Page
}

// LLMExtractor is the best-effort LLM extraction fallback.
type LLMExtractor interface {
	Extract(ctx context.Context, text, timezone string, llmCtx *extract.LLMContext) []event.Draft
}

// SyncEnqueuer hands approved events to the sync queue.
type SyncEnqueuer interface {
	Enqueue(job queues.Job) error
}

// Processor runs the per-message pipeline.
type Processor struct {
	messages MessageStore
	users    UserStore
	events   EventStore
	ocr      OCRRouter
	scraper  PageScraper
	llm      LLMExtractor
	syncs    SyncEnqueuer

	metrics *observability.PipelineMetrics
	tracer  *observability.Tracer
	log     logging.Logger

	// readFile is swappable for tests.
	readFile func(string) ([]byte, error)
}

// NewProcessor wires a pipeline processor.
func NewProcessor(
	messages MessageStore,
	users UserStore,
	events EventStore,
	ocrRouter OCRRouter,
	scraper PageScraper,
	llm LLMExtractor,
	syncs SyncEnqueuer,
	metrics *observability.PipelineMetrics,
	log logging.Logger,
) *Processor {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Processor{
		messages: messages,
		users:    users,
		events:   events,
		ocr:      ocrRouter,
		scraper:  scraper,
		llm:      llm,
		syncs:    syncs,
		metrics:  metrics,
		tracer:   observability.NewTracer(),
		log:      log.With(logging.F("component", "pipeline")),
		readFile: os.ReadFile,
	}
}

// HandleJob dispatches queue jobs to the pipeline. Registered as the
// worker handler for the process and cleanup queues.
func (p *Processor) HandleJob(ctx context.Context, job queues.Job) error {
	switch j := job.(type) {
	case *queues.ProcessMessageJob:
		return p.ProcessMessage(ctx, j.MessageID)
	case *queues.CleanupJob:
		olderThan := j.OlderThan
		if olderThan <= 0 {
			olderThan = rejectedRetention
		}
		_, err := p.CleanupRejected(ctx, olderThan)
		return err
	default:
		return eherrors.Ef(eherrors.KindInputInvalid, "pipeline cannot handle job type %q", job.GetJobType())
	}
}

// ProcessMessage runs the full pipeline for one message. Already
// processed messages return immediately. Scrape failures are final;
// every other failure records the error and re-raises so the queue
// retries.
func (p *Processor) ProcessMessage(ctx context.Context, messageID uuid.UUID) error {
	msg, err := p.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	// Idempotent guard: re-runs are no-ops.
	if msg.Processed {
		p.log.Debug("message already processed", logging.F("message_id", msg.ID.String()))
		return nil
	}

	ctx, span := p.tracer.StartMessageSpan(ctx, msg.UserID, msg.ID, msg.Provider)
	defer span.End()

	user, err := p.users.GetByID(ctx, msg.UserID)
	if err != nil {
		return err
	}

	err = p.process(ctx, msg, user)
	if err != nil {
		// Record the failure on the message but keep it unprocessed so
		// the retry policy decides what happens next.
		errStr := err.Error()
		msg.ProcessingError = &errStr
		if uerr := p.messages.Update(ctx, msg); uerr != nil {
			p.log.Error("failed to record processing error", logging.Err(uerr))
		}
		if p.metrics != nil {
			p.metrics.RecordMessageProcessed(msg.Provider, "error")
		}
		observability.RecordSpanError(span, err, string(eherrors.KindOf(err)), eherrors.IsRetryable(err))
		return err
	}

	if p.metrics != nil {
		p.metrics.RecordMessageProcessed(msg.Provider, "ok")
	}
	return nil
}

func (p *Processor) process(ctx context.Context, msg *store.Message, user *store.User) error {
	// Stage 1: resolve source.
	if msg.Provider == store.ProviderWebsite {
		final, err := p.resolveWebsite(ctx, msg)
		if err != nil || final {
			return err
		}
	}

	// Stage 2: OCR attachments.
	fullText := p.bodyText(msg)
	fullText += p.ocrAttachments(ctx, msg)

	// Stage 3: extract, deterministic and LLM in parallel.
	timezone := user.Timezone
	hints := extract.Hints{
		PreferredName: user.PreferredName,
		NeptunID:      user.NeptunID,
		Sender:        msg.SenderEmail,
	}

	var deterministic, llmDrafts []event.Draft
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deterministic = extract.Deterministic(fullText, timezone, hints)
		return nil
	})
	g.Go(func() error {
		llmDrafts = p.llm.Extract(gctx, fullText, timezone, &extract.LLMContext{
			Sender:   msg.SenderEmail,
			Subject:  msg.Subject,
			Provider: msg.Provider,
		})
		return nil
	})
	g.Wait()

	// Stage 4: merge with the weakest attachment OCR confidence.
	drafts := extract.Merge(deterministic, llmDrafts, extract.MergeContext{
		TrustedSender: user.TrustsSender(msg.SenderEmail),
		OCRConfidence: minOCRConfidence(msg.Attachments),
		Timezone:      timezone,
	})

	// Stage 5: persist with auto-approval routing.
	events, syncJobs := p.buildEvents(drafts, msg, user)
	if err := p.events.CreateBatch(ctx, events); err != nil {
		return err
	}
	// Sync jobs go out only after the approval state is committed.
	for _, job := range syncJobs {
		if err := p.syncs.Enqueue(job); err != nil {
			p.log.Error("failed to enqueue sync job", logging.Err(err))
		}
	}

	// Stage 6: finalize.
	now := time.Now().UTC()
	msg.Processed = true
	msg.ProcessedAt = &now
	msg.ProcessingError = nil
	if err := p.messages.Update(ctx, msg); err != nil {
		return err
	}

	p.log.Info("message processed",
		logging.F("message_id", msg.ID.String()),
		logging.F("events", len(events)))
	return nil
}

// resolveWebsite treats the body as a URL and replaces the message
// content with the scraped page. A failed scrape is final: the message
// is marked processed with the error and no events are produced.
func (p *Processor) resolveWebsite(ctx context.Context, msg *store.Message) (final bool, err error) {
	page := p.scraper.Scrape(ctx, msg.BodyText)
	if !page.OK {
		now := time.Now().UTC()
		msg.Processed = true
		msg.ProcessedAt = &now
		msg.ProcessingError = &page.Error
		if err := p.messages.Update(ctx, msg); err != nil {
			return true, err
		}
		p.log.Warn("scrape failed",
			logging.F("message_id", msg.ID.String()),
			logging.F("error", page.Error))
		return true, nil
	}

	msg.Subject = page.Title
	msg.BodyText = page.Text
	msg.BodyHTML = page.HTML

	if len(page.Links) > 0 {
		links := page.Links
		if len(links) > maxStoredLinks {
			links = links[:maxStoredLinks]
		}
		att := store.Attachment{Kind: store.AttachmentLinkSet}
		for _, l := range links {
			att.Links = append(att.Links, store.Link{URL: l.URL, Text: l.Text})
		}
		msg.Attachments = append(msg.Attachments, att)
	}
	return false, nil
}

// bodyText picks the plain body, falling back to converted HTML.
func (p *Processor) bodyText(msg *store.Message) string {
	if msg.BodyText != "" {
		return gmail.CleanText(msg.BodyText)
	}
	if msg.BodyHTML != "" {
		return gmail.CleanText(gmail.HTMLToText(msg.BodyHTML))
	}
	return ""
}

// ocrAttachments runs OCR over file attachments, storing results back
// on each attachment and returning the stitched text. Individual
// failures are logged and skipped; they never abort the job.
func (p *Processor) ocrAttachments(ctx context.Context, msg *store.Message) string {
	var stitched string
	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		if att.Kind != store.AttachmentFile || att.Path == "" {
			continue
		}

		data, err := p.readFile(att.Path)
		if err != nil {
			p.log.Warn("failed to read attachment",
				logging.F("path", att.Path), logging.Err(err))
			continue
		}

		result, err := p.ocr.Extract(ctx, data, true)
		if err != nil {
			p.log.Warn("attachment OCR failed",
				logging.F("filename", att.Filename), logging.Err(err))
			continue
		}

		att.OCRText = &result.Text
		att.OCRConfidence = &result.Confidence
		stitched += fmt.Sprintf("\n\n--- %s ---\n%s", att.Filename, result.Text)
	}
	return stitched
}

// buildEvents materializes drafts as event rows and applies the
// auto-approval policy, returning the sync jobs for directly approved
// events.
func (p *Processor) buildEvents(drafts []event.Draft, msg *store.Message, user *store.User) ([]*event.Event, []queues.Job) {
	trusted := user.TrustsSender(msg.SenderEmail)
	var events []*event.Event
	var syncJobs []queues.Job

	for _, d := range drafts {
		e := event.FromDraft(d, user.ID, &msg.ID, msg.Provider)

		approve := event.ShouldAutoApprove(event.AutoApproveInput{
			UserAutoApprove: user.AutoApproveEnabled,
			TrustedSender:   trusted,
			Confidence:      d.Confidence,
		})
		if approve {
			if err := e.Approve(nil, nil); err == nil {
				syncJobs = append(syncJobs, &queues.SyncEventJob{
					EventID:  e.ID,
					UserID:   user.ID,
					Priority: queues.PriorityNormal,
				})
			}
		}

		if p.metrics != nil {
			p.metrics.RecordEventExtracted(string(d.Method), string(d.Type), d.Confidence)
			decision := "pending"
			if approve {
				decision = "auto_approved"
			}
			p.metrics.RecordAutoApproval(decision)
		}
		events = append(events, e)
	}
	return events, syncJobs
}

// minOCRConfidence returns the weakest attachment OCR confidence, or
// 1.0 when no attachment carried one.
func minOCRConfidence(attachments []store.Attachment) float64 {
	min := 1.0
	for _, att := range attachments {
		if att.Kind == store.AttachmentFile && att.OCRConfidence != nil && *att.OCRConfidence < min {
			min = *att.OCRConfidence
		}
	}
	return min
}

// CleanupRejected removes rejected events older than the retention
// window and returns how many were deleted.
func (p *Processor) CleanupRejected(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	n, err := p.events.DeleteRejectedOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.log.Info("cleaned up rejected events", logging.F("deleted", n))
	}
	return n, nil
}
