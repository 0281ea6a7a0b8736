// Package eml extracts the text of saved emails, typically forwarded booking
// confirmations. HTML bodies go through the html renderer and calendar
// invites through the ics parser; other attachments are listed by name.
package eml

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/normalisers/filename"
	"github.com/tripsync/tripctx/internal/normalisers/html"
	"github.com/tripsync/tripctx/internal/normalisers/ics"
)

var _ driven.Normaliser = (*Normaliser)(nil)

// maxDepth bounds multipart nesting.
const maxDepth = 8

// Normaliser handles message/rfc822 documents.
type Normaliser struct{}

// New creates an email normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"message/rfc822"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise renders the headers that matter for a booking followed by the
// best body part and any calendar invites.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: reading message: %v", domain.ErrInvalidInput, err)
	}

	var b body
	b.walk(textproto.MIMEHeader(msg.Header), msg.Body, 0)

	subject := decodeHeader(msg.Header.Get("Subject"))

	var out strings.Builder
	for _, h := range []string{"From", "To", "Date"} {
		if v := decodeHeader(msg.Header.Get(h)); v != "" {
			fmt.Fprintf(&out, "%s: %s\n", h, v)
		}
	}
	if subject != "" {
		fmt.Fprintf(&out, "Subject: %s\n", subject)
	}
	if text := b.text(); text != "" {
		out.WriteString("\n" + text + "\n")
	}
	for _, inv := range b.invites {
		out.WriteString("\n" + inv + "\n")
	}
	if len(b.attachments) > 0 {
		fmt.Fprintf(&out, "\nAttachments: %s\n", strings.Join(b.attachments, ", "))
	}

	title := stripReplyPrefix(subject)
	if title == "" {
		title = filename.Title(raw.URI)
	}
	return &driven.NormaliseResult{Title: title, Text: strings.TrimSpace(out.String())}, nil
}

// body collects the renderable parts of a message.
type body struct {
	plain       []string
	rich        []string
	invites     []string
	attachments []string
}

// text prefers plain parts over HTML ones.
func (b *body) text() string {
	if len(b.plain) > 0 {
		return strings.Join(b.plain, "\n\n")
	}
	return strings.Join(b.rich, "\n\n")
}

func (b *body) walk(h textproto.MIMEHeader, r io.Reader, depth int) {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxDepth || params["boundary"] == "" {
			return
		}
		mr := multipart.NewReader(r, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err != nil {
				return
			}
			b.walk(part.Header, part, depth+1)
		}
	}

	if name := attachmentName(h, params); name != "" && mediaType != "text/calendar" {
		b.attachments = append(b.attachments, name)
		return
	}

	content, err := io.ReadAll(decodeTransfer(h.Get("Content-Transfer-Encoding"), r))
	if err != nil {
		return
	}

	switch mediaType {
	case "text/plain":
		if s := strings.TrimSpace(strings.ReplaceAll(string(content), "\r\n", "\n")); s != "" {
			b.plain = append(b.plain, s)
		}
	case "text/html":
		if s := html.RenderString(string(content)); s != "" {
			b.rich = append(b.rich, s)
		}
	case "text/calendar":
		if cal, err := ics.Parse(content); err == nil {
			if s := cal.Text(); s != "" {
				b.invites = append(b.invites, s)
			}
		}
	}
}

// decodeTransfer undoes base64 and quoted-printable transfer encodings.
// multipart.Reader already decodes quoted-printable parts and drops the
// header, so this only matters for single-part messages and base64.
func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	}
	return r
}

func attachmentName(h textproto.MIMEHeader, ctParams map[string]string) string {
	disposition, params, err := mime.ParseMediaType(h.Get("Content-Disposition"))
	if err == nil && disposition == "attachment" {
		if params["filename"] != "" {
			return params["filename"]
		}
		if ctParams["name"] != "" {
			return ctParams["name"]
		}
		return "unnamed"
	}
	return ""
}

func decodeHeader(v string) string {
	if v == "" {
		return ""
	}
	decoded, err := new(mime.WordDecoder).DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

var replyPrefix = regexp.MustCompile(`(?i)^((re|fw|fwd|aw|wg)\s*:\s*)+`)

// stripReplyPrefix removes "Fwd:" and "Re:" chains from a subject.
func stripReplyPrefix(subject string) string {
	return strings.TrimSpace(replyPrefix.ReplaceAllString(subject, ""))
}
