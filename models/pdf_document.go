package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Analyse-Status eines PDF-Dokuments.
const (
	StatusPending   = "pending"
	StatusAnalyzing = "analyzing"
	StatusAnalyzed  = "analyzed"
	StatusFailed    = "failed"
)

// PdfDocument repräsentiert ein hochgeladenes PDF-Dokument und dessen Analyseergebnis.
// ExtractedKeywords und Summary sind genau dann gesetzt, wenn der Status "analyzed" ist.
type PdfDocument struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Filename string `json:"filename" gorm:"uniqueIndex;not null"`
	FilePath string `json:"file_path" gorm:"not null"`
	Title    string `json:"title,omitempty"`
	FileSize int64  `json:"file_size"`

	ExtractedText     string         `json:"extracted_text,omitempty" gorm:"type:text"`
	ExtractedKeywords datatypes.JSON `json:"extracted_keywords,omitempty"`
	Summary           string         `json:"summary,omitempty" gorm:"type:text"`

	UploadDate     time.Time  `json:"upload_date" gorm:"autoCreateTime"`
	LastAnalyzed   *time.Time `json:"last_analyzed,omitempty"`
	AnalysisStatus string     `json:"analysis_status" gorm:"index;default:'pending'"`

	// S3-Archiv (optional, analog zum Upload-Verzeichnis)
	CloudStored bool   `json:"cloud_stored" gorm:"default:false"`
	ArchiveLink string `json:"archive_link,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (PdfDocument) TableName() string {
	return "pdf_documents"
}

// KeywordList dekodiert das extrahierte Keyword-Set.
func (d *PdfDocument) KeywordList() []string {
	return decodeKeywords(d.ExtractedKeywords)
}

// SetKeywords kodiert das extrahierte Keyword-Set als JSON-Array.
func (d *PdfDocument) SetKeywords(keywords []string) error {
	raw, err := json.Marshal(keywords)
	if err != nil {
		return err
	}
	d.ExtractedKeywords = datatypes.JSON(raw)
	return nil
}

// ClearAnalysis setzt alle Analysefelder zurück, z.B. vor einer erneuten Analyse.
func (d *PdfDocument) ClearAnalysis() {
	d.ExtractedText = ""
	d.ExtractedKeywords = nil
	d.Summary = ""
	d.LastAnalyzed = nil
	d.AnalysisStatus = StatusPending
}
