// Package research turns company profile documents (PDF brochures, web
// pages, plain text) into the short description stored on a lead.
package research

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

const (
	// MaxDocumentSize bounds fetched and uploaded documents.
	MaxDocumentSize = 10 << 20
	// MaxDescriptionChars bounds the text kept on a lead.
	MaxDescriptionChars = 2000
	fetchTimeout        = 15 * time.Second
)

var (
	// ErrUnsupported is returned for content types with no extractor.
	ErrUnsupported = errors.New("unsupported document type")
	// ErrEmpty is returned when a document yields no text.
	ErrEmpty = errors.New("document contains no text")

	spaceRun   = regexp.MustCompile(`[ \t\f\v]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// Document is raw profile content with its media type.
type Document struct {
	ContentType string
	Data        []byte
	Source      string
}

// Kind classifies a document by content type, falling back to sniffing.
func (d Document) Kind() string {
	mt, _, _ := mime.ParseMediaType(d.ContentType)
	switch {
	case mt == "application/pdf" || bytes.HasPrefix(d.Data, []byte("%PDF-")):
		return "pdf"
	case mt == "text/html" || mt == "application/xhtml+xml":
		return "html"
	case strings.HasPrefix(mt, "text/"):
		return "text"
	case mt == "" || mt == "application/octet-stream":
		return sniff(d.Data)
	}
	return ""
}

func sniff(data []byte) string {
	ct := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(ct, "text/html"):
		return "html"
	case strings.HasPrefix(ct, "text/"):
		return "text"
	}
	return ""
}

// Text extracts readable text from d.
func Text(d Document) (string, error) {
	var (
		text string
		err  error
	)
	switch d.Kind() {
	case "pdf":
		text, err = PDFText(bytes.NewReader(d.Data), int64(len(d.Data)))
	case "html":
		text, err = HTMLText(string(d.Data))
	case "text":
		if !utf8.Valid(d.Data) {
			return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupported)
		}
		text = normalize(string(d.Data))
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, d.ContentType)
	}
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// PDFText extracts the plain text of every page.
func PDFText(r io.ReaderAt, size int64) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("reading pdf: %v", p)
		}
	}()

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(plain, MaxDocumentSize))
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return normalize(string(b)), nil
}

// HTMLText returns the visible text of a page. The title and meta
// description, when present, lead the result.
func HTMLText(s string) (string, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	var head, body strings.Builder
	walk(doc, &head, &body)
	text := head.String() + "\n" + body.String()
	return normalize(text), nil
}

func walk(n *html.Node, head, body *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			body.WriteString(t)
			body.WriteByte(' ')
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "template":
			return
		case "title":
			if n.FirstChild != nil {
				head.WriteString(strings.TrimSpace(n.FirstChild.Data))
				head.WriteByte('\n')
			}
			return
		case "meta":
			if attr(n, "name") == "description" {
				if c := strings.TrimSpace(attr(n, "content")); c != "" {
					head.WriteString(c)
					head.WriteByte('\n')
				}
			}
			return
		case "p", "div", "section", "article", "li", "br", "tr", "h1", "h2", "h3", "h4":
			body.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, head, body)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Summarize shortens text to at most limit runes, cutting at a sentence or
// word boundary when one is close.
func Summarize(text string, limit int) string {
	if limit <= 0 {
		limit = MaxDescriptionChars
	}
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	cut := string(r[:limit])
	if i := strings.LastIndexAny(cut, ".!?"); i > len(cut)/2 {
		return cut[:i+1]
	}
	if i := strings.LastIndexAny(cut, " \n"); i > len(cut)/2 {
		return strings.TrimSpace(cut[:i]) + "..."
	}
	return cut
}

// Fetch downloads a profile document from url.
func Fetch(ctx context.Context, client *http.Client, url string) (Document, error) {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("invalid url: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Document{}, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize))
	if err != nil {
		return Document{}, fmt.Errorf("reading %s: %w", url, err)
	}
	return Document{ContentType: resp.Header.Get("Content-Type"), Data: data, Source: url}, nil
}
