package httpapi

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/logging"
	"github.com/eventhint/eventhint/pkg/queues"
	"github.com/eventhint/eventhint/pkg/store"
)

// multipartOverhead is slack added on top of the file size limit for
// multipart boundaries, part headers, and extra form fields. The limit
// itself applies to the file content, not the framed body.
const multipartOverhead = 64 << 10

// handleUpload ingests a screenshot or document as a message and
// enqueues it for processing. A file over the configured size limit is
// rejected with 413 before anything is written to disk; a file of
// exactly the limit is accepted.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxUploadSize+multipartOverhead)

	if err := r.ParseMultipartForm(s.settings.MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "file exceeds the upload size limit",
				"kind":  "input_invalid",
			})
			return
		}
		writeError(w, eherrors.E(eherrors.KindInputInvalid, "malformed multipart body"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, eherrors.E(eherrors.KindInputInvalid, "missing file field"))
		return
	}
	defer file.Close()

	if header.Size > s.settings.MaxUploadSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": "file exceeds the upload size limit",
			"kind":  "input_invalid",
		})
		return
	}

	if err := os.MkdirAll(s.settings.UploadDir, 0o755); err != nil {
		writeError(w, eherrors.Wrap(eherrors.KindInternal, "failed to prepare upload directory", err))
		return
	}

	// Stored under a fresh uuid so uploaded filenames never collide or
	// traverse outside the upload directory.
	storedName := uuid.New().String() + filepath.Ext(header.Filename)
	storedPath := filepath.Join(s.settings.UploadDir, storedName)

	dst, err := os.Create(storedPath)
	if err != nil {
		writeError(w, eherrors.Wrap(eherrors.KindInternal, "failed to store upload", err))
		return
	}
	size, err := io.Copy(dst, file)
	dst.Close()
	if err != nil {
		os.Remove(storedPath)
		writeError(w, eherrors.Wrap(eherrors.KindInternal, "failed to store upload", err))
		return
	}

	notes := r.FormValue("notes")
	mimeType := header.Header.Get("Content-Type")
	msg := &store.Message{
		ID:          uuid.New(),
		UserID:      userID(r.Context()),
		Provider:    store.ProviderUpload,
		Subject:     header.Filename,
		SenderEmail: "",
		ReceivedAt:  time.Now().UTC(),
		BodyText:    notes,
		Attachments: []store.Attachment{{
			Kind:     store.AttachmentFile,
			Filename: header.Filename,
			MimeType: mimeType,
			Size:     size,
			Path:     storedPath,
		}},
	}

	if err := s.messages.Create(r.Context(), msg); err != nil {
		os.Remove(storedPath)
		writeError(w, err)
		return
	}

	if err := s.processQ.Enqueue(&queues.ProcessMessageJob{
		MessageID:  msg.ID,
		UserID:     msg.UserID,
		Priority:   queues.PriorityHigh,
		EnqueuedBy: "upload",
	}); err != nil {
		s.log.Error("failed to enqueue process job",
			logging.F("message_id", msg.ID.String()), logging.Err(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message_id": msg.ID,
		"filename":   header.Filename,
		"size":       size,
	})
}

// handleGmailWebhook acknowledges Gmail push notifications. The actual
// history sync runs off the polling loop; the webhook only exists so
// the Pub/Sub subscription does not back up.
func (s *Server) handleGmailWebhook(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("gmail webhook received")
	w.WriteHeader(http.StatusNoContent)
}
