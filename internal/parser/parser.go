// Package parser turns raw Gmail API messages into the structured form the
// dispatch pipeline works with. Everything here is a pure function: decoding
// failures degrade to empty values instead of aborting the message.
package parser

import (
	"encoding/base64"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

const (
	unknownName  = "Unknown"
	unknownEmail = "unknown@unknown.com"
	noSubject    = "No Subject"
)

// SenderInfo is the identity derived from a From header.
type SenderInfo struct {
	Name  string
	Email string
}

// ParsedEmail is the normalized view of one inbox message.
type ParsedEmail struct {
	EmailID         string
	Sender          SenderInfo
	Subject         string
	Body            string
	ThreadID        string
	MessageHeaderID string
	IsReply         bool
	SentAt          string
}

// ExtractSenderInfo derives a name/email pair from a From header. The email
// is always non-empty; unparseable input yields the unknown sentinels.
func ExtractSenderInfo(fromHeader string) SenderInfo {
	name := unknownName
	email := unknownEmail
	if fromHeader != "" {
		if open := strings.Index(fromHeader, "<"); open >= 0 {
			name = strings.TrimSpace(fromHeader[:open])
			rest := fromHeader[open+1:]
			if end := strings.Index(rest, ">"); end >= 0 {
				email = strings.TrimSpace(rest[:end])
			} else {
				email = strings.TrimSpace(rest)
			}
			if name == "" {
				name = localPart(email)
			}
		} else {
			email = strings.TrimSpace(fromHeader)
			name = localPart(email)
		}
	}
	return SenderInfo{Name: name, Email: email}
}

func localPart(email string) string {
	if at := strings.Index(email, "@"); at >= 0 {
		return email[:at]
	}
	return email
}

// DecodeBase64URL decodes Gmail's URL-safe, unpadded base64. Malformed input
// yields an empty string, never an error.
func DecodeBase64URL(encoded string) string {
	if encoded == "" {
		return ""
	}
	standard := strings.ReplaceAll(encoded, "-", "+")
	standard = strings.ReplaceAll(standard, "_", "/")
	if pad := len(standard) % 4; pad != 0 {
		standard += strings.Repeat("=", 4-pad)
	}
	decoded, err := base64.StdEncoding.DecodeString(standard)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// NormalizeParagraphs undoes mail-client hard wrapping: consecutive
// non-blank lines are joined with a single space, a blank line becomes a
// paragraph break.
func NormalizeParagraphs(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	// Trailing newlines carry no paragraph; without this a body ending in
	// a newline would gain a spurious break.
	text = strings.TrimRight(text, "\n")
	lines := strings.Split(text, "\n")

	var normalized strings.Builder
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			normalized.WriteString("\n\n")
			continue
		}
		normalized.WriteString(line)
		if i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
			normalized.WriteString(" ")
		}
	}
	return normalized.String()
}

// ExtractBody concatenates the top-level payload body with every text/plain
// sub-part, decodes, and paragraph-normalizes the result. When no body data
// is present it falls back to the provider's snippet.
func ExtractBody(msg *gmailapi.Message) string {
	if msg == nil {
		return ""
	}
	var body strings.Builder
	if payload := msg.Payload; payload != nil {
		if payload.Body != nil && payload.Body.Data != "" {
			body.WriteString(DecodeBase64URL(payload.Body.Data))
		}
		for _, part := range payload.Parts {
			if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
				body.WriteString(DecodeBase64URL(part.Body.Data))
			}
		}
	}
	if body.Len() == 0 {
		return msg.Snippet
	}
	return NormalizeParagraphs(body.String())
}

// Header returns the value of the first header with the given name, or "".
func Header(msg *gmailapi.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Parse builds the full ParsedEmail for one fetched message. A message is a
// reply iff it carries a non-blank References or In-Reply-To header.
func Parse(msg *gmailapi.Message) ParsedEmail {
	subject := Header(msg, "Subject")
	if subject == "" {
		subject = noSubject
	}
	references := strings.TrimSpace(Header(msg, "References"))
	inReplyTo := strings.TrimSpace(Header(msg, "In-Reply-To"))

	return ParsedEmail{
		EmailID:         msg.Id,
		Sender:          ExtractSenderInfo(Header(msg, "From")),
		Subject:         subject,
		Body:            ExtractBody(msg),
		ThreadID:        msg.ThreadId,
		MessageHeaderID: Header(msg, "Message-ID"),
		IsReply:         references != "" || inReplyTo != "",
		SentAt:          formatInternalDate(msg.InternalDate),
	}
}

func formatInternalDate(millis int64) string {
	if millis <= 0 {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return time.UnixMilli(millis).UTC().Format(time.RFC3339)
}
