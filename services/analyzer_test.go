package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"course-scout/models"
	"course-scout/providers"
)

func newAnalysisService(t *testing.T, text providers.TextExtractor, keywords providers.KeywordExtractor) *AnalysisService {
	t.Helper()

	db := newTestDB(t)
	linker := NewLinkService(db, testLogger())
	return NewAnalysisService(testConfig(), db, testLogger(), text, keywords, linker, nil)
}

func writeTestPDF(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

func TestIngestFileAnalyzesDocument(t *testing.T) {
	t.Parallel()

	text := &stubTextExtractor{text: "Introduction to Python\nA beginner course covering the basics."}
	keywords := &stubKeywordExtractor{keywords: []string{"Python", "basics", "PYTHON"}}
	svc := newAnalysisService(t, text, keywords)

	createCourse(t, svc.DB, "Python Programming", []string{"python", "programming", "basics"})
	path := writeTestPDF(t, t.TempDir(), "intro.pdf")

	doc, err := svc.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() error: %v", err)
	}

	if doc.AnalysisStatus != models.StatusAnalyzed {
		t.Errorf("AnalysisStatus = %s, want %s", doc.AnalysisStatus, models.StatusAnalyzed)
	}
	if got := doc.KeywordList(); len(got) != 2 {
		t.Errorf("KeywordList() = %v, want normalized set of 2", got)
	}
	if doc.Title != "Introduction to Python" {
		t.Errorf("Title = %q, want first text line", doc.Title)
	}
	if doc.Summary == "" {
		t.Error("Summary is empty")
	}
	if doc.LastAnalyzed == nil {
		t.Error("LastAnalyzed is nil")
	}

	var links int64
	svc.DB.Model(&models.DocumentCourseLink{}).Count(&links)
	if links != 1 {
		t.Errorf("link rows = %d, want 1", links)
	}
}

func TestAnalyzeDocumentFailsOnTextExtraction(t *testing.T) {
	t.Parallel()

	cause := providers.NewExtractionError("text", errors.New("no extractable text"))
	svc := newAnalysisService(t, &stubTextExtractor{err: cause}, &stubKeywordExtractor{keywords: []string{"python"}})

	createCourse(t, svc.DB, "Python Programming", []string{"python"})
	path := writeTestPDF(t, t.TempDir(), "empty.pdf")

	doc, err := svc.IngestFile(context.Background(), path)
	if err == nil {
		t.Fatal("IngestFile() error = nil, want extraction error")
	}
	if !providers.IsExtractionError(err) {
		t.Errorf("error %v is not an ExtractionError", err)
	}

	if doc.AnalysisStatus != models.StatusFailed {
		t.Errorf("AnalysisStatus = %s, want %s", doc.AnalysisStatus, models.StatusFailed)
	}
	if doc.ExtractedKeywords != nil {
		t.Errorf("ExtractedKeywords = %s, want unset on failure", doc.ExtractedKeywords)
	}
	if doc.LastAnalyzed == nil {
		t.Error("LastAnalyzed is nil, want claim timestamp even on failure")
	}

	var links int64
	svc.DB.Model(&models.DocumentCourseLink{}).Count(&links)
	if links != 0 {
		t.Errorf("link rows = %d, want 0 for failed document", links)
	}
}

func TestAnalyzeDocumentFailsOnKeywordExtraction(t *testing.T) {
	t.Parallel()

	cause := providers.NewExtractionError("keywords", errors.New("model unreachable"))
	svc := newAnalysisService(t, &stubTextExtractor{text: "some text"}, &stubKeywordExtractor{err: cause})

	path := writeTestPDF(t, t.TempDir(), "doc.pdf")
	doc, err := svc.IngestFile(context.Background(), path)
	if err == nil {
		t.Fatal("IngestFile() error = nil, want extraction error")
	}
	if doc.AnalysisStatus != models.StatusFailed {
		t.Errorf("AnalysisStatus = %s, want %s", doc.AnalysisStatus, models.StatusFailed)
	}
}

func TestAnalyzeDocumentFailsWhenKeywordsNormalizeToNothing(t *testing.T) {
	t.Parallel()

	svc := newAnalysisService(t,
		&stubTextExtractor{text: "some text"},
		&stubKeywordExtractor{keywords: []string{"  ", "..."}})

	path := writeTestPDF(t, t.TempDir(), "noise.pdf")
	doc, err := svc.IngestFile(context.Background(), path)
	if err == nil {
		t.Fatal("IngestFile() error = nil, want extraction error")
	}
	if doc.AnalysisStatus != models.StatusFailed {
		t.Errorf("AnalysisStatus = %s, want %s", doc.AnalysisStatus, models.StatusFailed)
	}
}

func TestAnalyzeDocumentTruncatesModelInput(t *testing.T) {
	t.Parallel()

	longText := strings.Repeat("x", maxModelChars+500)
	keywords := &stubKeywordExtractor{keywords: []string{"python"}}
	svc := newAnalysisService(t, &stubTextExtractor{text: longText}, keywords)

	path := writeTestPDF(t, t.TempDir(), "long.pdf")
	doc, err := svc.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() error: %v", err)
	}

	// Der Volltext bleibt erhalten, nur die Modell-Eingabe wird gekürzt.
	if len(doc.ExtractedText) != maxModelChars+500 {
		t.Errorf("ExtractedText length = %d, want full text", len(doc.ExtractedText))
	}
}

func TestIngestFileRejectsDuplicateFilename(t *testing.T) {
	t.Parallel()

	keywords := &stubKeywordExtractor{keywords: []string{"python"}}
	svc := newAnalysisService(t, &stubTextExtractor{text: "Usable Title Line\ntext"}, keywords)
	createCourse(t, svc.DB, "Python Programming", []string{"python"})

	first := writeTestPDF(t, t.TempDir(), "dup.pdf")
	if _, err := svc.IngestFile(context.Background(), first); err != nil {
		t.Fatalf("first IngestFile() error: %v", err)
	}

	// Gleicher Dateiname aus anderem Verzeichnis: der Unique-Index lehnt ab.
	second := writeTestPDF(t, t.TempDir(), "dup.pdf")
	if _, err := svc.IngestFile(context.Background(), second); err == nil {
		t.Fatal("second IngestFile() error = nil, want unique constraint violation")
	}

	var count int64
	svc.DB.Model(&models.PdfDocument{}).Count(&count)
	if count != 1 {
		t.Errorf("document rows = %d, want 1", count)
	}

	var doc models.PdfDocument
	if err := svc.DB.Where("filename = ?", "dup.pdf").First(&doc).Error; err != nil {
		t.Fatalf("load document: %v", err)
	}
	if doc.AnalysisStatus != models.StatusAnalyzed || doc.FilePath != first {
		t.Errorf("existing document changed: status=%s path=%s, want analyzed/%s",
			doc.AnalysisStatus, doc.FilePath, first)
	}
}

func TestAnalyzeDocumentTruncatesMultiByteInputSafely(t *testing.T) {
	t.Parallel()

	longText := strings.Repeat("ü", maxModelChars+100)
	keywords := &stubKeywordExtractor{keywords: []string{"python"}}
	svc := newAnalysisService(t, &stubTextExtractor{text: longText}, keywords)

	path := writeTestPDF(t, t.TempDir(), "umlaut.pdf")
	if _, err := svc.IngestFile(context.Background(), path); err != nil {
		t.Fatalf("IngestFile() error: %v", err)
	}

	if !utf8.ValidString(keywords.lastInput) {
		t.Error("model input is not valid UTF-8, rune was split at the cut")
	}
	if got := utf8.RuneCountInString(keywords.lastInput); got != maxModelChars {
		t.Errorf("model input length = %d runes, want %d", got, maxModelChars)
	}
}

func TestAnalyzeDocumentClaimsOnlyPendingDocuments(t *testing.T) {
	t.Parallel()

	keywords := &stubKeywordExtractor{keywords: []string{"python"}}
	svc := newAnalysisService(t, &stubTextExtractor{text: "text"}, keywords)

	// Ein paralleler Lauf hat das Dokument bereits übernommen.
	doc := models.PdfDocument{
		Filename:       "taken.pdf",
		FilePath:       "/tmp/taken.pdf",
		AnalysisStatus: models.StatusAnalyzing,
	}
	if err := svc.DB.Create(&doc).Error; err != nil {
		t.Fatalf("create document: %v", err)
	}

	err := svc.AnalyzeDocument(context.Background(), &doc)
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("AnalyzeDocument() error = %v, want ErrAlreadyClaimed", err)
	}
	if keywords.calls != 0 {
		t.Errorf("keyword extractor calls = %d, want 0", keywords.calls)
	}

	var reloaded models.PdfDocument
	if err := svc.DB.First(&reloaded, doc.ID).Error; err != nil {
		t.Fatalf("load document: %v", err)
	}
	if reloaded.AnalysisStatus != models.StatusAnalyzing {
		t.Errorf("AnalysisStatus = %s, want unchanged %s", reloaded.AnalysisStatus, models.StatusAnalyzing)
	}
}

func TestReanalyzeResetsDocument(t *testing.T) {
	t.Parallel()

	svc := newAnalysisService(t, &stubTextExtractor{text: "text"}, &stubKeywordExtractor{keywords: []string{"python"}})
	doc := createAnalyzedDoc(t, svc.DB, "done.pdf", []string{"python"})
	doc.Summary = "old summary"
	if err := svc.DB.Save(doc).Error; err != nil {
		t.Fatalf("save document: %v", err)
	}

	requeued, err := svc.Reanalyze(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Reanalyze() error: %v", err)
	}

	if requeued.AnalysisStatus != models.StatusPending {
		t.Errorf("AnalysisStatus = %s, want %s", requeued.AnalysisStatus, models.StatusPending)
	}
	if requeued.Summary != "" || requeued.ExtractedKeywords != nil || requeued.LastAnalyzed != nil {
		t.Error("Reanalyze() did not clear previous analysis fields")
	}
}

func TestReanalyzeRejectsPendingAndAnalyzing(t *testing.T) {
	t.Parallel()

	svc := newAnalysisService(t, &stubTextExtractor{text: "text"}, &stubKeywordExtractor{keywords: []string{"python"}})

	for _, status := range []string{models.StatusPending, models.StatusAnalyzing} {
		doc := models.PdfDocument{
			Filename:       status + ".pdf",
			FilePath:       "/tmp/" + status + ".pdf",
			AnalysisStatus: status,
		}
		if err := svc.DB.Create(&doc).Error; err != nil {
			t.Fatalf("create document: %v", err)
		}

		if _, err := svc.Reanalyze(context.Background(), doc.ID); err == nil {
			t.Errorf("Reanalyze(status=%s) error = nil, want re-queue rejection", status)
		}
	}
}

// pathTextExtractor schlägt für bestimmte Dateinamen fehl.
type pathTextExtractor struct {
	failFor string
}

func (p *pathTextExtractor) ExtractText(path string) (string, error) {
	if strings.Contains(path, p.failFor) {
		return "", providers.NewExtractionError("text", errors.New("no extractable text"))
	}
	return "Usable Title Line\nextracted text", nil
}

func TestProcessPendingIsolatesFailures(t *testing.T) {
	t.Parallel()

	svc := newAnalysisService(t,
		&pathTextExtractor{failFor: "broken"},
		&stubKeywordExtractor{keywords: []string{"python"}})
	createCourse(t, svc.DB, "Python Programming", []string{"python"})

	for _, name := range []string{"a_good.pdf", "broken.pdf", "z_good.pdf"} {
		doc := models.PdfDocument{
			Filename:       name,
			FilePath:       "/tmp/" + name,
			AnalysisStatus: models.StatusPending,
		}
		if err := svc.DB.Create(&doc).Error; err != nil {
			t.Fatalf("create document: %v", err)
		}
	}

	summary := svc.ProcessPending(context.Background())
	if summary.Processed != 2 || summary.Failed != 1 {
		t.Errorf("ProcessPending() = %d processed / %d failed, want 2/1", summary.Processed, summary.Failed)
	}

	var analyzed, failed int64
	svc.DB.Model(&models.PdfDocument{}).Where("analysis_status = ?", models.StatusAnalyzed).Count(&analyzed)
	svc.DB.Model(&models.PdfDocument{}).Where("analysis_status = ?", models.StatusFailed).Count(&failed)
	if analyzed != 2 || failed != 1 {
		t.Errorf("document states = %d analyzed / %d failed, want 2/1", analyzed, failed)
	}
}

func TestIngestDirPicksOnlyPDFs(t *testing.T) {
	t.Parallel()

	svc := newAnalysisService(t,
		&stubTextExtractor{text: "Usable Title Line\ntext"},
		&stubKeywordExtractor{keywords: []string{"python"}})

	dir := t.TempDir()
	writeTestPDF(t, dir, "one.pdf")
	writeTestPDF(t, dir, "two.PDF")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	summary, err := svc.IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("IngestDir() error: %v", err)
	}
	if summary.Processed != 2 || summary.Failed != 0 {
		t.Errorf("IngestDir() = %d processed / %d failed, want 2/0", summary.Processed, summary.Failed)
	}
}

func TestDocumentStats(t *testing.T) {
	t.Parallel()

	svc := newAnalysisService(t, &stubTextExtractor{text: "text"}, &stubKeywordExtractor{keywords: []string{"python"}})

	states := []string{
		models.StatusAnalyzed, models.StatusAnalyzed, models.StatusAnalyzed,
		models.StatusPending, models.StatusFailed,
	}
	for i, status := range states {
		doc := models.PdfDocument{
			Filename:       fmt.Sprintf("doc-%d.pdf", i),
			FilePath:       "/tmp/x",
			AnalysisStatus: status,
		}
		if err := svc.DB.Create(&doc).Error; err != nil {
			t.Fatalf("create document: %v", err)
		}
	}

	stats, err := svc.DocumentStats()
	if err != nil {
		t.Fatalf("DocumentStats() error: %v", err)
	}
	if stats.Total != 5 || stats.Analyzed != 3 || stats.Pending != 1 || stats.Failed != 1 {
		t.Errorf("DocumentStats() = %+v", stats)
	}
	if stats.AnalysisRate != 60 {
		t.Errorf("AnalysisRate = %f, want 60", stats.AnalysisRate)
	}
}
