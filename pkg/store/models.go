// Package store provides database operations for users, messages,
// events, and calendars.
package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider tags identify where a message came from.
const (
	ProviderGmail   = "gmail"
	ProviderUpload  = "upload"
	ProviderWebsite = "website"
)

// AttachmentKind discriminates the attachment variants stored in the
// messages JSONB column.
type AttachmentKind string

const (
	AttachmentFile    AttachmentKind = "file"
	AttachmentLinkSet AttachmentKind = "link_set"
)

// Link is one outbound link harvested from a scraped page.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

// Attachment is a tagged variant: a stored file (with OCR results once
// processed) or a set of links from a scraped page.
type Attachment struct {
	Kind AttachmentKind `json:"kind"`

	// File fields.
	Filename      string   `json:"filename,omitempty"`
	MimeType      string   `json:"mime_type,omitempty"`
	Size          int64    `json:"size,omitempty"`
	Path          string   `json:"path,omitempty"`
	OCRText       *string  `json:"ocr_text,omitempty"`
	OCRConfidence *float64 `json:"ocr_confidence,omitempty"`

	// LinkSet fields.
	Links []Link `json:"links,omitempty"`
}

// User owns messages, events, and calendars.
type User struct {
	ID          uuid.UUID
	Email       string
	DisplayName string

	// PreferredName and NeptunID let the locale extractors pick the
	// user's row out of shared schedules.
	PreferredName string
	NeptunID      string

	Timezone           string
	AutoApproveEnabled bool
	TrustedSenders     []string

	// Sealed OAuth tokens for the mail account.
	AccessTokenSealed  []byte
	RefreshTokenSealed []byte
	TokenExpiry        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrustsSender reports whether the given address is on the user's
// trusted sender list (case-insensitive exact match).
func (u *User) TrustsSender(email string) bool {
	for _, s := range u.TrustedSenders {
		if strings.EqualFold(s, email) {
			return true
		}
	}
	return false
}

// Message is a raw incoming artifact before and after processing.
type Message struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Provider   string
	ExternalID *string

	Subject     string
	SenderEmail string
	SenderName  string
	ReceivedAt  time.Time

	BodyText    string
	BodyHTML    string
	Attachments []Attachment

	Processed       bool
	ProcessedAt     *time.Time
	ProcessingError *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Calendar is one linked provider calendar.
type Calendar struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Provider   string
	ExternalID string
	Name       string
	Color      string

	AccessTokenSealed  []byte
	RefreshTokenSealed []byte
	TokenExpiry        *time.Time

	IsDefault   bool
	IsActive    bool
	SyncEnabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
