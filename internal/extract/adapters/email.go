package adapters

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"
)

var (
	headerLinePattern  = regexp.MustCompile(`(?i)^(?:from|to|cc|subject|date|reply-to|return-path|received|message-id|mime-version|content-type):`)
	quoteMarkerPattern = regexp.MustCompile(`^\s*(?:>\s?)+`)
)

// EmailAdapter parses an RFC 822 message down to its subject and body.
// Quoted replies and signatures stay in the text, since forwarded pitches
// are the usual carrier; only their quote markers are removed.
type EmailAdapter struct {
	html *HTMLAdapter
}

// NewEmailAdapter creates a new email adapter
func NewEmailAdapter() *EmailAdapter {
	return &EmailAdapter{html: NewHTMLAdapter()}
}

// Name returns the adapter name
func (a *EmailAdapter) Name() string {
	return "email"
}

// CanHandle accepts anything submitted from the email platform and any body
// that opens with a header block
func (a *EmailAdapter) CanHandle(hint Hint, body string) bool {
	return strings.EqualFold(hint.Platform, "email") || hasHeaderBlock(body)
}

// Extract returns "subject\n\nbody" with quote markers removed
func (a *EmailAdapter) Extract(body string) (string, error) {
	subject := ""
	content := body

	if hasHeaderBlock(body) {
		msg, err := mail.ReadMessage(strings.NewReader(body))
		if err == nil {
			subject = decodeHeader(msg.Header.Get("Subject"))

			var r io.Reader = msg.Body
			if strings.EqualFold(strings.TrimSpace(msg.Header.Get("Content-Transfer-Encoding")), "quoted-printable") {
				r = quotedprintable.NewReader(r)
			}
			raw, err := io.ReadAll(r)
			if err != nil {
				return "", fmt.Errorf("read message body: %w", err)
			}
			content = string(raw)

			if mediaType, _, err := mime.ParseMediaType(msg.Header.Get("Content-Type")); err == nil && mediaType == "text/html" {
				if content, err = a.html.Extract(content); err != nil {
					return "", err
				}
			}
		}
	}

	text := unquote(content)
	if subject != "" {
		text = subject + "\n\n" + text
	}
	return strings.TrimSpace(text), nil
}

func decodeHeader(v string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// hasHeaderBlock reports whether body starts with at least two header lines
func hasHeaderBlock(body string) bool {
	scanner := bufio.NewScanner(strings.NewReader(strings.TrimLeft(body, "\r\n")))
	headers := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		if headerLinePattern.MatchString(line) {
			headers++
			continue
		}
		// folded continuation of the previous header
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && headers > 0 {
			continue
		}
		return false
	}
	return headers >= 2
}

// unquote removes leading "> " markers and signature separators, keeping
// every line of text
func unquote(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "-- " || line == "--" {
			continue
		}
		out = append(out, quoteMarkerPattern.ReplaceAllString(line, ""))
	}
	return strings.Join(out, "\n")
}
