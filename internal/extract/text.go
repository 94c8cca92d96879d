package extract

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ppiankov/riskwatch/internal/extract/adapters"
	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/rules"
)

// DefaultMaxTextBytes caps a text submission when no limit is configured
const DefaultMaxTextBytes = 1 << 20

// Result is what an extractor found in one input
type Result struct {
	Indicators []model.Indicator
	Failures   []rules.MatchError
	Adapter    string // Content adapter used for text; empty for URLs
}

// TextExtractor runs the catalog's text rules over free-form content
type TextExtractor struct {
	catalog  *rules.Catalog
	adapters *adapters.Registry
	maxBytes int
}

// NewTextExtractor creates a text extractor. maxBytes <= 0 selects DefaultMaxTextBytes.
func NewTextExtractor(catalog *rules.Catalog, maxBytes int) *TextExtractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxTextBytes
	}
	return &TextExtractor{
		catalog:  catalog,
		adapters: adapters.NewRegistry(),
		maxBytes: maxBytes,
	}
}

// Prepare validates text, strips its container format and normalizes it.
// When the adapter fails or finds no visible text, the raw body is used.
func (e *TextExtractor) Prepare(text, platform, contentType string) (*rules.Input, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", model.NewInvalidInput("text", "must not be empty")
	}
	if len(text) > e.maxBytes {
		return nil, "", model.NewInvalidInput("text", fmt.Sprintf("exceeds %d bytes", e.maxBytes))
	}

	adapter := e.adapters.FindAdapter(adapters.Hint{Platform: platform, ContentType: contentType}, text)
	name := adapter.Name()
	visible, err := adapter.Extract(text)
	if err != nil || strings.TrimSpace(visible) == "" {
		// Non-empty input always yields an assessment; score the body as sent
		visible = text
		name = adapters.GenericName
	}

	return &rules.Input{Raw: visible, Normalized: Normalize(visible)}, name, nil
}

// Extract prepares text and matches it against the text rules. It does not score.
func (e *TextExtractor) Extract(text, platform, contentType string) (Result, error) {
	in, adapter, err := e.Prepare(text, platform, contentType)
	if err != nil {
		return Result{}, err
	}
	indicators, failures := e.catalog.Match(in, model.TargetText)
	return Result{Indicators: indicators, Failures: failures, Adapter: adapter}, nil
}

var typographic = runes.Map(func(r rune) rune {
	switch r {
	case '‘', '’', '‚', '‛', '′', '`':
		return '\''
	case '“', '”', '„', '‟', '″':
		return '"'
	case '‐', '‑', '‒', '–', '—', '―':
		return '-'
	}
	return r
})

// Normalize applies NFKC, Unicode case folding and typographic quote
// folding, then collapses whitespace
func Normalize(s string) string {
	t := transform.Chain(norm.NFKC, cases.Fold(), typographic)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}
