package mail

import (
	"bytes"
	"fmt"
	"io"
	"time"

	mailmsg "github.com/emersion/go-message/mail"
)

// BuildMessage composes a multipart/alternative RFC 5322 message.
func BuildMessage(from, to string, r Rendered, now time.Time) ([]byte, error) {
	fromAddr, err := mailmsg.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse from address: %w", err)
	}
	toAddr, err := mailmsg.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("parse to address: %w", err)
	}

	var h mailmsg.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mailmsg.Address{fromAddr})
	h.SetAddressList("To", []*mailmsg.Address{toAddr})
	h.SetSubject(r.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mailmsg.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}
	if err := writePart(tw, "text/plain", r.Text); err != nil {
		return nil, err
	}
	if err := writePart(tw, "text/html", r.HTML); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(tw *mailmsg.InlineWriter, contentType, body string) error {
	var ph mailmsg.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return w.Close()
}
