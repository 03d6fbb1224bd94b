package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"course-scout/config"
	"course-scout/models"
	"course-scout/providers"
)

// CourseMatch ist ein empfohlener Kurs mit seinem Relevanz-Score.
type CourseMatch struct {
	Course models.Course `json:"course"`
	Score  float64       `json:"score"`
}

// DocumentMatch ist ein empfohlenes Dokument mit seinem Relevanz-Score.
type DocumentMatch struct {
	Document models.PdfDocument `json:"document"`
	Score    float64            `json:"score"`
}

// Recommendation bündelt das Ergebnis einer Empfehlungsabfrage.
type Recommendation struct {
	Query     string          `json:"query"`
	Keywords  []string        `json:"keywords"`
	Courses   []CourseMatch   `json:"courses"`
	Documents []DocumentMatch `json:"documents"`
}

// RecommendService beantwortet Freitext-Abfragen mit Kurs- und
// Dokumentempfehlungen. Ist das Modell nicht erreichbar, übernimmt der
// Fallback-Extractor die Keyword-Gewinnung.
type RecommendService struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *zap.Logger
	Primary  providers.KeywordExtractor
	Fallback providers.KeywordExtractor
}

// NewRecommendService erstellt eine neue Instanz des RecommendService.
func NewRecommendService(cfg *config.Config, db *gorm.DB, logger *zap.Logger,
	primary, fallback providers.KeywordExtractor) *RecommendService {
	return &RecommendService{
		Config:   cfg,
		DB:       db,
		Logger:   logger,
		Primary:  primary,
		Fallback: fallback,
	}
}

// Recommend extrahiert Keywords aus dem Eingabetext und bewertet alle Kurse
// sowie alle analysierten Dokumente dagegen.
func (r *RecommendService) Recommend(ctx context.Context, text string) (*Recommendation, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty query text")
	}

	keywords := Normalize(r.extractKeywords(ctx, text))
	rec := &Recommendation{
		Query:     text,
		Keywords:  keywords,
		Courses:   []CourseMatch{},
		Documents: []DocumentMatch{},
	}
	if len(keywords) == 0 {
		r.Logger.Warn("Keine Keywords aus der Abfrage extrahiert", zap.String("query", text))
		return rec, nil
	}

	courses, err := r.matchCourses(keywords)
	if err != nil {
		return nil, err
	}
	rec.Courses = courses

	documents, err := r.matchDocuments(keywords)
	if err != nil {
		return nil, err
	}
	rec.Documents = documents

	r.Logger.Info("Empfehlung erstellt",
		zap.Strings("keywords", keywords),
		zap.Int("courses", len(rec.Courses)),
		zap.Int("documents", len(rec.Documents)))
	return rec, nil
}

// extractKeywords fragt den primären Extractor ab und fällt bei Fehlern auf den
// lokalen Fallback zurück. Der Abfragepfad schlägt dadurch nie hart fehl.
func (r *RecommendService) extractKeywords(ctx context.Context, text string) []string {
	keywords, err := r.Primary.ExtractKeywords(ctx, text)
	if err == nil {
		return keywords
	}

	r.Logger.Warn("Primäre Keyword-Extraktion fehlgeschlagen, nutze Fallback",
		zap.String("extractor", r.Primary.Name()), zap.Error(err))

	if r.Fallback == nil {
		return nil
	}
	keywords, err = r.Fallback.ExtractKeywords(ctx, text)
	if err != nil {
		r.Logger.Error("Fallback-Extraktion fehlgeschlagen", zap.Error(err))
		return nil
	}
	return keywords
}

func (r *RecommendService) matchCourses(keywords []string) ([]CourseMatch, error) {
	var courses []models.Course
	if err := r.DB.Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}

	byID := make(map[uint]models.Course, len(courses))
	candidates := make([]Candidate, 0, len(courses))
	for _, course := range courses {
		byID[course.ID] = course
		candidates = append(candidates, Candidate{
			ID:    course.ID,
			Score: Score(keywords, course.KeywordList()),
		})
	}

	ranked := Rank(candidates, r.Config.MinScore, r.Config.MaxResults)
	matches := make([]CourseMatch, 0, len(ranked))
	for _, c := range ranked {
		matches = append(matches, CourseMatch{Course: byID[c.ID], Score: c.Score})
	}
	return matches, nil
}

func (r *RecommendService) matchDocuments(keywords []string) ([]DocumentMatch, error) {
	var docs []models.PdfDocument
	if err := r.DB.Where("analysis_status = ?", models.StatusAnalyzed).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("load analyzed documents: %w", err)
	}

	byID := make(map[uint]models.PdfDocument, len(docs))
	candidates := make([]Candidate, 0, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
		candidates = append(candidates, Candidate{
			ID:    doc.ID,
			Score: Score(keywords, doc.KeywordList()),
		})
	}

	ranked := Rank(candidates, r.Config.MinScore, r.Config.MaxResults)
	matches := make([]DocumentMatch, 0, len(ranked))
	for _, c := range ranked {
		doc := byID[c.ID]
		doc.ExtractedText = "" // Volltext gehört nicht in die Antwort
		matches = append(matches, DocumentMatch{Document: doc, Score: c.Score})
	}
	return matches, nil
}
