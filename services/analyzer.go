package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"course-scout/config"
	"course-scout/models"
	"course-scout/providers"
	"course-scout/storage"
)

// maxModelChars begrenzt den Text, der an das Modell geht (Token-Limit).
const maxModelChars = 4000

// ErrAlreadyClaimed meldet, dass ein Dokument nicht mehr im Status "pending" war,
// als die Analyse es übernehmen wollte (z.B. Cron-Lauf und Upload-Goroutine
// gleichzeitig). Der Verlierer überspringt das Dokument.
var ErrAlreadyClaimed = errors.New("document already claimed for analysis")

// AnalysisService treibt den Analyse-Lebenszyklus eines PDF-Dokuments:
// pending → analyzing → analyzed/failed. Extraktionsfehler werden lokal auf den
// Status "failed" abgebildet und brechen Batch-Läufe nicht ab.
type AnalysisService struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *zap.Logger
	Text     providers.TextExtractor
	Keywords providers.KeywordExtractor
	Linker   *LinkService
	S3Client *s3.Client // nil, wenn kein Archiv konfiguriert ist
}

// NewAnalysisService erstellt eine neue Instanz des AnalysisService.
func NewAnalysisService(cfg *config.Config, db *gorm.DB, logger *zap.Logger,
	text providers.TextExtractor, keywords providers.KeywordExtractor,
	linker *LinkService, s3Client *s3.Client) *AnalysisService {
	return &AnalysisService{
		Config:   cfg,
		DB:       db,
		Logger:   logger,
		Text:     text,
		Keywords: keywords,
		Linker:   linker,
		S3Client: s3Client,
	}
}

// ItemResult ist das Ergebnis eines einzelnen Dokuments in einem Batch-Lauf.
type ItemResult struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// BatchSummary fasst einen Batch-Lauf zusammen.
type BatchSummary struct {
	Processed int          `json:"processed"`
	Failed    int          `json:"failed"`
	Results   []ItemResult `json:"results"`
}

// Stats enthält Kennzahlen über den Dokumentbestand.
type Stats struct {
	Total        int64   `json:"total"`
	Pending      int64   `json:"pending"`
	Analyzing    int64   `json:"analyzing"`
	Analyzed     int64   `json:"analyzed"`
	Failed       int64   `json:"failed"`
	AnalysisRate float64 `json:"analysis_rate"`
}

// IngestFile legt ein PDF als neues Dokument im Status "pending" an, archiviert es
// optional nach S3 und stößt sofort die Analyse an. Der Rückgabefehler ist das
// Ergebnis für genau dieses Dokument.
func (a *AnalysisService) IngestFile(ctx context.Context, path string) (*models.PdfDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	doc := models.PdfDocument{
		Filename:       filepath.Base(path),
		FilePath:       path,
		FileSize:       info.Size(),
		AnalysisStatus: models.StatusPending,
	}
	if err := a.DB.Create(&doc).Error; err != nil {
		return nil, fmt.Errorf("create document %s: %w", doc.Filename, err)
	}

	a.archive(ctx, &doc)

	if err := a.AnalyzeDocument(ctx, &doc); err != nil {
		return &doc, err
	}
	return &doc, nil
}

// AnalyzeDocument führt eine vollständige Analyse durch. Das Dokument wird beim
// Claim auf "analyzing" gesetzt und last_analyzed sofort gestempelt, damit auch
// abgebrochene Läufe für Staleness-Checks sichtbar sind.
func (a *AnalysisService) AnalyzeDocument(ctx context.Context, doc *models.PdfDocument) error {
	log := a.Logger.With(zap.Uint("document_id", doc.ID), zap.String("filename", doc.Filename))
	log.Info("Starte Analyse für Dokument.")

	// Claim nur aus "pending" heraus, damit zwei nebenläufige Läufe (Cron und
	// Upload-Goroutine) dasselbe Dokument nicht doppelt analysieren.
	now := time.Now()
	claim := a.DB.Model(&models.PdfDocument{}).
		Where("id = ? AND analysis_status = ?", doc.ID, models.StatusPending).
		Updates(map[string]interface{}{
			"analysis_status": models.StatusAnalyzing,
			"last_analyzed":   now,
		})
	if claim.Error != nil {
		return fmt.Errorf("claim document %d: %w", doc.ID, claim.Error)
	}
	if claim.RowsAffected == 0 {
		return fmt.Errorf("claim document %d: %w", doc.ID, ErrAlreadyClaimed)
	}
	doc.AnalysisStatus = models.StatusAnalyzing
	doc.LastAnalyzed = &now

	text, err := a.Text.ExtractText(doc.FilePath)
	if err != nil {
		return a.markFailed(doc, err)
	}

	modelInput := text
	if runes := []rune(modelInput); len(runes) > maxModelChars {
		modelInput = string(runes[:maxModelChars])
	}

	raw, err := a.Keywords.ExtractKeywords(ctx, modelInput)
	if err != nil {
		return a.markFailed(doc, err)
	}

	keywords := Normalize(raw)
	if len(keywords) == 0 {
		return a.markFailed(doc, providers.NewExtractionError("keywords",
			fmt.Errorf("no usable keywords after normalization")))
	}

	doc.ExtractedText = text
	doc.Title = extractTitle(text, doc.Filename)
	doc.Summary = buildSummary(text, a.Config.SummaryMaxChars)
	if err := doc.SetKeywords(keywords); err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	doc.AnalysisStatus = models.StatusAnalyzed
	if err := a.DB.Save(doc).Error; err != nil {
		return fmt.Errorf("persist analysis %d: %w", doc.ID, err)
	}

	// Erreichen von "analyzed" stößt die vollständige Neuberechnung der Links an.
	if _, err := a.Linker.LinkDocument(doc); err != nil {
		return fmt.Errorf("link document %d: %w", doc.ID, err)
	}

	log.Info("Analyse abgeschlossen", zap.Strings("keywords", keywords))
	return nil
}

// Reanalyze setzt ein analysiertes oder fehlgeschlagenes Dokument zurück auf
// "pending" und löscht die vorherigen Extraktionsfelder.
func (a *AnalysisService) Reanalyze(ctx context.Context, id uint) (*models.PdfDocument, error) {
	var doc models.PdfDocument
	if err := a.DB.First(&doc, id).Error; err != nil {
		return nil, fmt.Errorf("load document %d: %w", id, err)
	}

	if doc.AnalysisStatus != models.StatusAnalyzed && doc.AnalysisStatus != models.StatusFailed {
		return nil, fmt.Errorf("document %d cannot be re-queued from status %s", id, doc.AnalysisStatus)
	}

	doc.ClearAnalysis()
	if err := a.DB.Save(&doc).Error; err != nil {
		return nil, fmt.Errorf("re-queue document %d: %w", id, err)
	}

	a.Logger.Info("Dokument für erneute Analyse eingereiht", zap.Uint("document_id", doc.ID))
	return &doc, nil
}

// ProcessPending analysiert alle Dokumente im Status "pending" nacheinander.
// Ein fehlschlagendes Dokument blockiert die übrigen nicht.
func (a *AnalysisService) ProcessPending(ctx context.Context) BatchSummary {
	var docs []models.PdfDocument
	if err := a.DB.Where("analysis_status = ?", models.StatusPending).
		Order("id asc").Find(&docs).Error; err != nil {
		a.Logger.Error("Konnte ausstehende Dokumente nicht laden", zap.Error(err))
		return BatchSummary{}
	}

	var summary BatchSummary
	for i := range docs {
		result := ItemResult{Filename: docs[i].Filename}
		err := a.AnalyzeDocument(ctx, &docs[i])
		if errors.Is(err, ErrAlreadyClaimed) {
			// Ein paralleler Lauf hat das Dokument übernommen.
			continue
		}
		if err != nil {
			result.Error = err.Error()
			summary.Failed++
		} else {
			summary.Processed++
		}
		result.Status = docs[i].AnalysisStatus
		summary.Results = append(summary.Results, result)
	}
	return summary
}

// IngestDir nimmt alle PDF-Dateien eines Verzeichnisses auf (Bulk-Import).
func (a *AnalysisService) IngestDir(ctx context.Context, dir string) (BatchSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var summary BatchSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		result := ItemResult{Filename: entry.Name()}
		doc, err := a.IngestFile(ctx, path)
		if err != nil {
			result.Error = err.Error()
			summary.Failed++
		} else {
			summary.Processed++
		}
		if doc != nil {
			result.Status = doc.AnalysisStatus
		}
		summary.Results = append(summary.Results, result)
	}
	return summary, nil
}

// DocumentStats zählt den Dokumentbestand pro Status.
func (a *AnalysisService) DocumentStats() (Stats, error) {
	var stats Stats
	counts := map[string]*int64{
		models.StatusPending:   &stats.Pending,
		models.StatusAnalyzing: &stats.Analyzing,
		models.StatusAnalyzed:  &stats.Analyzed,
		models.StatusFailed:    &stats.Failed,
	}

	for status, target := range counts {
		if err := a.DB.Model(&models.PdfDocument{}).
			Where("analysis_status = ?", status).Count(target).Error; err != nil {
			return Stats{}, fmt.Errorf("count %s documents: %w", status, err)
		}
		stats.Total += *target
	}

	if stats.Total > 0 {
		stats.AnalysisRate = float64(stats.Analyzed) / float64(stats.Total) * 100
	}
	return stats, nil
}

// markFailed bildet einen Extraktionsfehler auf den Status "failed" ab. Die
// Extraktionsfelder bleiben unverändert; der Fehler geht als Ergebnis an den
// Aufrufer zurück, nicht als harter Abbruch.
func (a *AnalysisService) markFailed(doc *models.PdfDocument, cause error) error {
	doc.AnalysisStatus = models.StatusFailed
	if err := a.DB.Save(doc).Error; err != nil {
		return fmt.Errorf("persist failed status %d: %w", doc.ID, err)
	}

	a.Logger.Warn("Analyse fehlgeschlagen",
		zap.Uint("document_id", doc.ID), zap.String("filename", doc.Filename), zap.Error(cause))
	return cause
}

// archive lädt das PDF ins S3-Archiv hoch, falls konfiguriert. Ein Fehler beim
// Archivieren verhindert die Analyse nicht.
func (a *AnalysisService) archive(ctx context.Context, doc *models.PdfDocument) {
	if a.S3Client == nil {
		return
	}

	data, err := os.ReadFile(doc.FilePath)
	if err != nil {
		a.Logger.Warn("Archivierung übersprungen, Datei nicht lesbar",
			zap.String("filename", doc.Filename), zap.Error(err))
		return
	}

	link, err := storage.UploadFile(ctx, a.S3Client, a.Config.ArchiveS3Bucket, doc.Filename, data, a.Config)
	if err != nil {
		a.Logger.Warn("S3-Archivierung fehlgeschlagen",
			zap.String("filename", doc.Filename), zap.Error(err))
		return
	}

	doc.CloudStored = true
	doc.ArchiveLink = link
	if err := a.DB.Save(doc).Error; err != nil {
		a.Logger.Warn("Konnte Archiv-Link nicht speichern", zap.Error(err))
	}
}

// extractTitle nimmt die erste brauchbare Textzeile als Titel, sonst den
// bereinigten Dateinamen.
func extractTitle(text, filename string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 3 && len(line) < 100 {
			return line
		}
	}

	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}

// buildSummary kürzt den Text auf die konfigurierte Länge.
func buildSummary(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = 200
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "..."
}
