package gmail

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(s))
}

func TestParseAPIMessage_MultipartWithAttachment(t *testing.T) {
	raw := fmt.Sprintf(`{
		"id": "msg-1",
		"threadId": "thr-1",
		"payload": {
			"mimeType": "multipart/mixed",
			"headers": [
				{"name": "Subject", "value": "Vizsga beosztás"},
				{"name": "From", "value": "Dr. Kiss <kiss@uni.hu>"},
				{"name": "To", "value": "student@uni.hu"}
			],
			"parts": [
				{
					"mimeType": "multipart/alternative",
					"parts": [
						{"mimeType": "text/plain", "body": {"data": %q}},
						{"mimeType": "text/html", "body": {"data": %q}}
					]
				},
				{
					"mimeType": "application/pdf",
					"filename": "beosztas.pdf",
					"body": {"size": 1234, "attachmentId": "att-9"}
				}
			]
		}
	}`, b64("plain body"), b64("<p>html body</p>"))

	var m apiMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	parsed := parseAPIMessage(&m)

	assert.Equal(t, "msg-1", parsed.ID)
	assert.Equal(t, "Vizsga beosztás", parsed.Subject)
	assert.Equal(t, "Dr. Kiss <kiss@uni.hu>", parsed.From)
	assert.Equal(t, "plain body", parsed.BodyText)
	assert.Equal(t, "<p>html body</p>", parsed.BodyHTML)
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "beosztas.pdf", parsed.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", parsed.Attachments[0].MimeType)
	assert.Equal(t, 1234, parsed.Attachments[0].Size)
	assert.Equal(t, "att-9", parsed.Attachments[0].AttachmentID)
}

func TestParseAPIMessage_SimpleBody(t *testing.T) {
	raw := fmt.Sprintf(`{
		"id": "msg-2",
		"payload": {"mimeType": "text/plain", "body": {"data": %q}}
	}`, b64("hello there"))

	var m apiMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	parsed := parseAPIMessage(&m)
	assert.Equal(t, "hello there", parsed.BodyText)
	assert.Empty(t, parsed.Attachments)
}

func TestHTMLToText(t *testing.T) {
	html := `<html><head><style>p{}</style></head><body>
<p>Meeting on 11/04/2025</p>
<script>evil()</script>
<div>Room  12</div>
</body></html>`

	text := HTMLToText(html)
	assert.Contains(t, text, "Meeting on 11/04/2025")
	assert.Contains(t, text, "Room")
	assert.NotContains(t, text, "evil")
	assert.NotContains(t, text, "p{}")
}

func TestCleanText_StripsQuotesAndSignatures(t *testing.T) {
	in := "Exam on 2025.11.04.\n\n> previous message\n> more quote\n\nregards\nSent from my iPhone"
	out := CleanText(in)

	assert.Contains(t, out, "Exam on 2025.11.04.")
	assert.NotContains(t, out, "previous message")
	assert.NotContains(t, out, "Sent from my iPhone")
}

func TestCleanText_DashSignature(t *testing.T) {
	out := CleanText("real content\n-- \nJohn Doe\nCEO")
	assert.Equal(t, "real content", out)
}

func TestParseFromHeader(t *testing.T) {
	name, email := ParseFromHeader(`"Dr. Kiss" <kiss@uni.hu>`)
	assert.Equal(t, "Dr. Kiss", name)
	assert.Equal(t, "kiss@uni.hu", email)

	name, email = ParseFromHeader("plain@example.com")
	assert.Empty(t, name)
	assert.Equal(t, "plain@example.com", email)
}

func TestDecodeCharset(t *testing.T) {
	// ISO-8859-2 encodes 'ó' as 0xF3.
	data := []byte{'v', 'i', 'z', 's', 'g', 'a', ' ', 0xF3, 'r', 'a'}
	out := DecodeCharset(data, `text/plain; charset="iso-8859-2"`)
	assert.Equal(t, "vizsga óra", out)

	// UTF-8 passes through.
	assert.Equal(t, "óra", DecodeCharset([]byte("óra"), "text/plain; charset=utf-8"))

	// Unknown charset passes through.
	assert.Equal(t, "x", DecodeCharset([]byte("x"), "text/plain; charset=nonsense"))
}
