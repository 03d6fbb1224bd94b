package pdftext

import (
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"course-scout/providers"
)

// Extractor liest den Volltext aus PDF-Dateien.
type Extractor struct {
	Logger *zap.Logger
}

// NewExtractor erstellt eine neue Instanz des PDF-Text-Extractors.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{Logger: logger}
}

// ExtractText extrahiert den Text aller Seiten. Unlesbare Dateien und leere
// Ergebnisse werden als ExtractionError gemeldet.
func (e *Extractor) ExtractText(path string) (string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", providers.NewExtractionError("text", fmt.Errorf("open pdf %s: %w", path, err))
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.Logger.Debug("Seite konnte nicht gelesen werden",
				zap.String("path", path), zap.Int("page", i), zap.Error(err))
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	text := cleanText(sb.String())
	if text == "" {
		return "", providers.NewExtractionError("text", fmt.Errorf("no text in %s", path))
	}

	e.Logger.Debug("Text aus PDF extrahiert",
		zap.String("path", path), zap.Int("chars", len(text)))
	return text, nil
}

// cleanText kollabiert Whitespace innerhalb der Zeilen und entfernt Leerzeilen,
// behält aber Zeilenumbrüche (die erste Zeile dient als Titel-Kandidat).
func cleanText(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
