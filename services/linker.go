package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"course-scout/models"
)

// ErrNotAnalyzed meldet eine Vertragsverletzung: Verlinkung eines Dokuments,
// das nicht im Status "analyzed" ist. Aufrufer müssen den Status vorher prüfen.
var ErrNotAnalyzed = errors.New("document is not analyzed")

// LinkService pflegt die Relevanz-Kanten zwischen Dokumenten und Kursen.
type LinkService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewLinkService erstellt eine neue Instanz des LinkService.
func NewLinkService(db *gorm.DB, logger *zap.Logger) *LinkService {
	return &LinkService{DB: db, Logger: logger}
}

// LinkDocument berechnet die Scores eines analysierten Dokuments gegen alle Kurse
// und upsertet pro Kurs genau eine Link-Zeile, auch bei Score 0. Gefiltert wird
// erst beim Lesen, nicht beim Schreiben.
func (l *LinkService) LinkDocument(doc *models.PdfDocument) ([]models.DocumentCourseLink, error) {
	if doc.AnalysisStatus != models.StatusAnalyzed {
		return nil, fmt.Errorf("link document %d (status %s): %w", doc.ID, doc.AnalysisStatus, ErrNotAnalyzed)
	}

	var courses []models.Course
	if err := l.DB.Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}

	docKeywords := doc.KeywordList()
	links := make([]models.DocumentCourseLink, 0, len(courses))
	for _, course := range courses {
		link := models.DocumentCourseLink{
			DocumentID:     doc.ID,
			CourseID:       course.ID,
			RelevanceScore: Score(docKeywords, course.KeywordList()),
		}
		if err := l.upsert(&link); err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	l.Logger.Info("Dokument mit Kursen verlinkt",
		zap.Uint("document_id", doc.ID), zap.Int("courses", len(links)))
	return links, nil
}

// RelinkCourse berechnet nach einer Keyword-Änderung die Zeilen eines Kurses
// gegen alle analysierten Dokumente vollständig neu.
func (l *LinkService) RelinkCourse(course *models.Course) error {
	var docs []models.PdfDocument
	if err := l.DB.Where("analysis_status = ?", models.StatusAnalyzed).Find(&docs).Error; err != nil {
		return fmt.Errorf("load analyzed documents: %w", err)
	}

	courseKeywords := course.KeywordList()
	for i := range docs {
		link := models.DocumentCourseLink{
			DocumentID:     docs[i].ID,
			CourseID:       course.ID,
			RelevanceScore: Score(docs[i].KeywordList(), courseKeywords),
		}
		if err := l.upsert(&link); err != nil {
			return err
		}
	}

	l.Logger.Info("Kurs neu verlinkt",
		zap.Uint("course_id", course.ID), zap.Int("documents", len(docs)))
	return nil
}

// upsert schreibt eine Link-Zeile; bei vorhandenem (Dokument, Kurs)-Paar wird nur
// der Score aktualisiert, es entsteht keine zweite Zeile.
func (l *LinkService) upsert(link *models.DocumentCourseLink) error {
	err := l.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "course_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"relevance_score", "updated_at"}),
	}).Create(link).Error
	if err != nil {
		return fmt.Errorf("upsert link (%d,%d): %w", link.DocumentID, link.CourseID, err)
	}
	return nil
}
