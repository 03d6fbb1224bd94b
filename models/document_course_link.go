package models

import (
	"time"
)

// DocumentCourseLink modelliert die Relevanz-Kante zwischen einem analysierten
// Dokument und einem Kurs. Pro (Dokument, Kurs)-Paar existiert höchstens eine Zeile.
type DocumentCourseLink struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DocumentID uint `json:"document_id" gorm:"index:idx_document_course,unique;not null"`
	CourseID   uint `json:"course_id" gorm:"index:idx_document_course,unique;not null"`

	// Jaccard-Score in [0,1]; auch 0.0 wird gespeichert.
	RelevanceScore float64 `json:"relevance_score" gorm:"default:0"`
}

// TableName gibt explizit den Tabellennamen an.
func (DocumentCourseLink) TableName() string {
	return "document_courses"
}
