package importer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
	"github.com/JakeFAU/sitekb-crawler/internal/extract"
)

// maxPartDepth bounds nested multipart bodies.
const maxPartDepth = 5

// header is satisfied by mail.Header and textproto.MIMEHeader.
type header interface {
	Get(key string) string
}

var wordDecoder = new(mime.WordDecoder)

func (im *Importer) parseEmail(name string, data []byte) []Document {
	doc, err := im.emailDocument(name, name, data)
	if err != nil {
		im.logger.Warn("unreadable e-mail, importing as text", zap.String("file", name), zap.Error(err))
		return []Document{textDocument(name, data)}
	}
	return []Document{doc}
}

func (im *Importer) parseMbox(name string, data []byte) []Document {
	var docs []Document
	for i, raw := range splitMbox(data) {
		source := fmt.Sprintf("%s#%d", name, i+1)
		doc, err := im.emailDocument(source, fmt.Sprintf("Message %d", i+1), raw)
		if err != nil {
			im.logger.Warn("skipping unreadable mbox message", zap.String("source", source), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

// emailDocument renders the sender, recipients and date followed by the
// first readable body part.
func (im *Importer) emailDocument(source, fallbackTitle string, raw []byte) (Document, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Document{}, fmt.Errorf("read message: %w", err)
	}
	title := decodeHeader(msg.Header.Get("Subject"))
	if title == "" {
		title = fallbackTitle
	}
	body, err := im.emailBody(msg.Header, msg.Body, 0)
	if err != nil {
		return Document{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**From:** %s\n", orUnknown(decodeHeader(msg.Header.Get("From"))))
	fmt.Fprintf(&b, "**To:** %s\n", orUnknown(decodeHeader(msg.Header.Get("To"))))
	if date := msg.Header.Get("Date"); date != "" {
		fmt.Fprintf(&b, "**Date:** %s\n", date)
	}
	b.WriteString("\n")
	b.WriteString(body)

	return Document{
		Source:   source,
		Title:    title,
		Markdown: extract.Postprocess(b.String()),
		Kind:     KindEmail,
	}, nil
}

// emailBody returns the first text/plain or text/html part that is not an
// attachment, converting HTML to markdown. A message without one has an
// empty body.
func (im *Importer) emailBody(h header, body io.Reader, depth int) (string, error) {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxPartDepth || params["boundary"] == "" {
			return "", nil
		}
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return "", nil
			}
			if err != nil {
				return "", fmt.Errorf("read multipart body: %w", err)
			}
			if isAttachment(part.Header.Get("Content-Disposition")) {
				continue
			}
			text, err := im.emailBody(part.Header, part, depth+1)
			if err != nil {
				return "", err
			}
			if text != "" {
				return text, nil
			}
		}
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return "", nil
	}
	data, err := io.ReadAll(decodeTransfer(h.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	if mediaType == "text/plain" {
		return extract.Postprocess(decodeText(data)), nil
	}
	md, _, err := im.convertHTML("message.html", data, crawler.ExtractOptions{StripImages: true})
	if err != nil {
		// An empty HTML part is not fatal for the message.
		return "", nil
	}
	return md, nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	default:
		return r
	}
}

func isAttachment(disposition string) bool {
	d, _, err := mime.ParseMediaType(disposition)
	return err == nil && d == "attachment"
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}

// splitMbox splits an mbox file on its "From " separator lines. Lines
// quoted as ">From " are unquoted once.
func splitMbox(data []byte) [][]byte {
	var (
		messages [][]byte
		current  *bytes.Buffer
		prevNL   = true
	)
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		blank := len(bytes.TrimRight(line, "\r\n")) == 0
		if prevNL && bytes.HasPrefix(line, []byte("From ")) {
			if current != nil {
				messages = append(messages, current.Bytes())
			}
			current = new(bytes.Buffer)
			prevNL = false
			continue
		}
		prevNL = blank
		if current == nil {
			continue
		}
		if unquoted, ok := unquoteFrom(line); ok {
			line = unquoted
		}
		current.Write(line)
	}
	if current != nil {
		messages = append(messages, current.Bytes())
	}
	return messages
}

func unquoteFrom(line []byte) ([]byte, bool) {
	trimmed := bytes.TrimLeft(line, ">")
	if len(trimmed) == len(line) || !bytes.HasPrefix(trimmed, []byte("From ")) {
		return nil, false
	}
	return line[1:], true
}
