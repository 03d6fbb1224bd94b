package providers

import (
	"context"
	"errors"
	"fmt"
)

// KeywordExtractor ist das Interface, das jeder Keyword-Provider (z.B. Ollama,
// Fallback) implementieren muss.
type KeywordExtractor interface {
	// ExtractKeywords extrahiert Schlüsselwörter aus einem Freitext. Die Rückgabe
	// ist unnormalisiert; das Set wird vom Aufrufer normalisiert.
	ExtractKeywords(ctx context.Context, text string) ([]string, error)

	// Name gibt den eindeutigen Namen des Extractors zurück (z.B. "ollama").
	Name() string
}

// TextExtractor liest den Volltext aus einer Dokumentdatei.
type TextExtractor interface {
	ExtractText(path string) (string, error)
}

// ExtractionError markiert einen erwarteten, lokal behandelbaren Extraktionsfehler
// (Text- oder Keyword-Extraktion). Die Analyse-Pipeline bildet ihn auf den
// Dokumentstatus "failed" ab, statt ihn weiterzupropagieren.
type ExtractionError struct {
	Stage string // "text" oder "keywords"
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s): %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError verpackt einen Fehler als ExtractionError.
func NewExtractionError(stage string, err error) *ExtractionError {
	return &ExtractionError{Stage: stage, Err: err}
}

// IsExtractionError meldet, ob err (oder eine Ursache) ein ExtractionError ist.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}
