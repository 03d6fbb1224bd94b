package services

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"course-scout/config"
	"course-scout/models"
	"course-scout/providers"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.Course{}, &models.PdfDocument{}, &models.DocumentCourseLink{}); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		MinKeywords:     3,
		MaxKeywords:     5,
		MinScore:        0.0,
		MaxResults:      10,
		SummaryMaxChars: 200,
	}
}

func createCourse(t *testing.T, db *gorm.DB, name string, keywords []string) *models.Course {
	t.Helper()

	course := models.Course{Name: name}
	if err := course.SetKeywords(Normalize(keywords)); err != nil {
		t.Fatalf("set course keywords: %v", err)
	}
	if err := db.Create(&course).Error; err != nil {
		t.Fatalf("create course %s: %v", name, err)
	}
	return &course
}

func createAnalyzedDoc(t *testing.T, db *gorm.DB, filename string, keywords []string) *models.PdfDocument {
	t.Helper()

	doc := models.PdfDocument{
		Filename:       filename,
		FilePath:       "/tmp/" + filename,
		AnalysisStatus: models.StatusAnalyzed,
	}
	if err := doc.SetKeywords(Normalize(keywords)); err != nil {
		t.Fatalf("set document keywords: %v", err)
	}
	if err := db.Create(&doc).Error; err != nil {
		t.Fatalf("create document %s: %v", filename, err)
	}
	return &doc
}

// stubTextExtractor liefert festen Text oder einen festen Fehler.
type stubTextExtractor struct {
	text string
	err  error
}

func (s *stubTextExtractor) ExtractText(string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

// stubKeywordExtractor liefert feste Keywords oder einen festen Fehler und
// merkt sich den zuletzt übergebenen Text.
type stubKeywordExtractor struct {
	keywords  []string
	err       error
	calls     int
	lastInput string
}

func (s *stubKeywordExtractor) ExtractKeywords(_ context.Context, text string) ([]string, error) {
	s.calls++
	s.lastInput = text
	if s.err != nil {
		return nil, s.err
	}
	return s.keywords, nil
}

func (s *stubKeywordExtractor) Name() string {
	return "stub"
}

var _ providers.TextExtractor = (*stubTextExtractor)(nil)
var _ providers.KeywordExtractor = (*stubKeywordExtractor)(nil)

func testLogger() *zap.Logger {
	return zap.NewNop()
}
