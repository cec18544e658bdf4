// Package extract turns OCR output into P&L readings. OCR is flaky by
// nature, so the policy here is permissive tokenization followed by strict
// parsing: accept anything that looks like a number, keep only what parses.
package extract

import (
	"image"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
)

// tokenPattern accepts an optional sign (including parenthesized negatives),
// an optional leading or trailing currency symbol, thousands separators and
// a decimal point. Deliberately loose; parse failures are discarded later.
var tokenPattern = regexp.MustCompile(`\(?[-+~]?\s?[$€£¥]?\s?\d[\d,]*(?:\.\d+)?\)?%?[$€£¥]?`)

// Candidate is a numeric token found in OCR text, with its byte position so
// ties between equal values can be broken by reading order.
type Candidate struct {
	Value decimal.Decimal
	Pos   int
}

// Extractor converts pixel buffers into Readings via an OCR backend.
type Extractor struct {
	ocr    domain.OCREngine
	logger *zap.Logger
}

// New creates an extractor.
func New(ocr domain.OCREngine, logger *zap.Logger) *Extractor {
	return &Extractor{ocr: ocr, logger: logger}
}

// Extract runs OCR on the image and produces a Reading. An image with no
// parseable numeric token yields a Reading with Parsed == nil - an
// inconclusive sample, not an error.
func (e *Extractor) Extract(img image.Image) (domain.Reading, error) {
	raw, err := e.ocr.Recognize(img)
	if err != nil {
		return domain.Reading{}, err
	}
	return e.FromText(raw), nil
}

// FromText applies the sanitation and selection policy to raw OCR text.
func (e *Extractor) FromText(raw string) domain.Reading {
	reading := domain.Reading{
		RawText:   raw,
		Timestamp: time.Now(),
	}

	candidates := Tokenize(raw)
	if len(candidates) == 0 {
		e.logger.Debug("no numeric values in OCR text",
			zap.String("raw", truncate(raw, 80)))
		return reading
	}

	for _, c := range candidates {
		reading.Values = append(reading.Values, c.Value)
	}

	worst := SelectWorst(candidates)
	reading.Parsed = &worst.Value

	e.logger.Debug("extracted reading",
		zap.String("value", worst.Value.String()),
		zap.Int("candidates", len(candidates)))
	return reading
}

// Tokenize scans text for numeric candidates and parses them. Unparseable
// tokens are dropped; duplicates are kept (positions differ).
func Tokenize(text string) []Candidate {
	text = sanitize(text)

	matches := tokenPattern.FindAllStringIndex(text, -1)
	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		token := text[m[0]:m[1]]
		value, ok := parseToken(token)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{Value: value, Pos: m[0]})
	}
	return candidates
}

// SelectWorst returns the most negative candidate. Multiple numbers can be
// visible at once (per-position and aggregate P&L); the worst figure is the
// one that must trip the threshold. Ties go to the leftmost occurrence,
// approximating reading order.
func SelectWorst(candidates []Candidate) Candidate {
	worst := candidates[0]
	for _, c := range candidates[1:] {
		if c.Value.Cmp(worst.Value) < 0 {
			worst = c
		}
	}
	return worst
}

// sanitize fixes the OCR confusions seen in practice before tokenization.
func sanitize(text string) string {
	// Tesseract reads '-' as '~' and '.' as ';' on some platform fonts.
	text = strings.ReplaceAll(text, "~", "-")
	text = strings.ReplaceAll(text, ";", ".")
	return text
}

func parseToken(token string) (decimal.Decimal, bool) {
	token = strings.TrimSpace(token)

	// Accounting notation: (123.45) and ($123.45) mean negative.
	negative := false
	if strings.HasPrefix(token, "(") && strings.HasSuffix(token, ")") {
		negative = true
		token = token[1 : len(token)-1]
	}

	cleaned := strings.NewReplacer(
		"$", "", "€", "", "£", "", "¥", "",
		",", "", "%", "", " ", "", "+", "",
	).Replace(token)

	if strings.HasPrefix(cleaned, "-") {
		negative = true
		cleaned = cleaned[1:]
	}

	if cleaned == "" {
		return decimal.Decimal{}, false
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if negative {
		value = value.Neg()
	}
	return value, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
