package intent

import (
	"context"
	"strings"
)

// keywordTable maps fixed vocabulary to labels. First matching label wins in
// priority order: health outranks booking so injury questions about courses
// still reach the health handler.
var keywordTable = []struct {
	label    string
	keywords []string
}{
	{LabelHealth, []string{
		"schmerz", "verletz", "krank", "arzt", "gesund", "injur", "pain",
		"zerrung", "entzünd", "reha", "bandscheibe", "trotz erkältung",
	}},
	{LabelCrowd, []string{
		"voll", "auslastung", "wie viele leute", "crowded", "busy",
		"los im studio", "stoßzeit", "leer",
	}},
	{LabelBooking, []string{
		"buchen", "termin", "kurs", "anmelden", "book", "reservier",
		"probetraining", "platz frei", "slot", "stornieren",
	}},
	{LabelSales, []string{
		"preis", "kost", "mitgliedschaft", "tarif", "vertrag", "angebot",
		"kündig", "upgrade", "downgrade", "rabatt", "membership", "cancel my plan",
	}},
}

const keywordMatchConfidence = 0.8

// KeywordClassifier is the deterministic fallback: a fixed vocabulary over
// the restricted label set. It always resolves to a label and never errors.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

func (c *KeywordClassifier) Classify(_ context.Context, text string, _ []string) (Result, error) {
	lower := strings.ToLower(text)
	for _, entry := range keywordTable {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return Result{Label: entry.label, Confidence: keywordMatchConfidence, Source: SourceKeywordFallback}, nil
			}
		}
	}
	// No vocabulary hit: smalltalk, never "unknown".
	return Result{Label: LabelSmalltalk, Confidence: 0.5, Source: SourceKeywordFallback}, nil
}
