package gmail

import (
	"encoding/base64"
	"mime"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ParsedMessage is the uniform shape the pipeline consumes, regardless
// of how the raw message arrived.
type ParsedMessage struct {
	ID          string
	ThreadID    string
	Subject     string
	From        string
	To          string
	Date        string
	BodyText    string
	BodyHTML    string
	Attachments []AttachmentRef
}

// AttachmentRef points at an attachment body that is loaded separately
// by id.
type AttachmentRef struct {
	Filename     string
	MimeType     string
	Size         int
	AttachmentID string
}

// MessageList is a page of message ids.
type MessageList struct {
	Messages []struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	} `json:"messages"`
	NextPageToken      string `json:"nextPageToken"`
	ResultSizeEstimate int    `json:"resultSizeEstimate"`
}

// apiMessage mirrors the Gmail API full-format message payload tree.
type apiMessage struct {
	ID       string  `json:"id"`
	ThreadID string  `json:"threadId"`
	Payload  apiPart `json:"payload"`
}

type apiPart struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Data         string `json:"data"`
		Size         int    `json:"size"`
		AttachmentID string `json:"attachmentId"`
	} `json:"body"`
	Parts []apiPart `json:"parts"`
}

// parseAPIMessage flattens the MIME tree into text, HTML, and
// attachment references.
func parseAPIMessage(m *apiMessage) *ParsedMessage {
	headers := make(map[string]string, len(m.Payload.Headers))
	for _, h := range m.Payload.Headers {
		headers[h.Name] = h.Value
	}

	parsed := &ParsedMessage{
		ID:       m.ID,
		ThreadID: m.ThreadID,
		Subject:  headers["Subject"],
		From:     headers["From"],
		To:       headers["To"],
		Date:     headers["Date"],
	}

	if len(m.Payload.Parts) > 0 {
		walkParts(m.Payload.Parts, parsed)
	} else if m.Payload.Body.Data != "" {
		parsed.BodyText = decodeBody(m.Payload.Body.Data)
	}
	return parsed
}

// walkParts recurses the MIME tree. Text and HTML parts append to the
// running bodies; named parts with an attachment id become references.
func walkParts(parts []apiPart, out *ParsedMessage) {
	for _, part := range parts {
		switch {
		case part.MimeType == "text/plain" && part.Body.Data != "":
			out.BodyText += decodeBody(part.Body.Data)
		case part.MimeType == "text/html" && part.Body.Data != "":
			out.BodyHTML += decodeBody(part.Body.Data)
		case part.Filename != "" && part.Body.AttachmentID != "":
			out.Attachments = append(out.Attachments, AttachmentRef{
				Filename:     part.Filename,
				MimeType:     part.MimeType,
				Size:         part.Body.Size,
				AttachmentID: part.Body.AttachmentID,
			})
		}
		if len(part.Parts) > 0 {
			walkParts(part.Parts, out)
		}
	}
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(data)
	if err != nil {
		// Some senders pad; try the strict alphabet too.
		decoded, err = base64.URLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

// DecodeCharset converts a raw body to UTF-8 according to the charset
// parameter of its Content-Type. Unknown or missing charsets pass
// through unchanged.
func DecodeCharset(data []byte, contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(data)
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return string(data)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil || enc == nil {
		return string(data)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

// HTMLToText converts an HTML email body to plain text, stripping
// script and style content and collapsing whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style").Remove()

	text := doc.Text()
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, chunk := range strings.Split(strings.TrimSpace(line), "  ") {
			chunk = strings.TrimSpace(chunk)
			if chunk != "" {
				out = append(out, chunk)
			}
		}
	}
	return strings.Join(out, "\n")
}

var (
	signatureRes = []*regexp.Regexp{
		regexp.MustCompile(`(?s)--\s*\n.*`),
		regexp.MustCompile(`(?s)_{5,}.*`),
		regexp.MustCompile(`(?is)Sent from my \w+.*`),
		regexp.MustCompile(`(?is)Get Outlook for \w+.*`),
	}
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
	fromHeaderRe   = regexp.MustCompile(`^(.+?)\s*<(.+?)>$`)
)

// CleanText strips signatures and quoted replies from an email body so
// the extractors see only fresh content.
func CleanText(text string) string {
	for _, re := range signatureRes {
		text = re.ReplaceAllString(text, "")
	}

	var kept []string
	inQuote := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			inQuote = true
			continue
		}
		if inQuote && trimmed == "" {
			inQuote = false
			continue
		}
		if !inQuote {
			kept = append(kept, line)
		}
	}
	text = strings.Join(kept, "\n")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// ParseFromHeader splits a From header into display name and address.
func ParseFromHeader(from string) (name, email string) {
	if m := fromHeaderRe.FindStringSubmatch(from); m != nil {
		return strings.Trim(strings.TrimSpace(m[1]), `"`), strings.TrimSpace(m[2])
	}
	return "", strings.TrimSpace(from)
}
