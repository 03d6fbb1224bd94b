package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Course repräsentiert einen Kurs mit seinem normalisierten Keyword-Set.
type Course struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string `json:"name" gorm:"uniqueIndex;not null"`
	Description string `json:"description" gorm:"type:text"`

	// Keywords ist ein JSON-Array normalisierter Strings, nie leer.
	Keywords datatypes.JSON `json:"keywords" gorm:"not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (Course) TableName() string {
	return "courses"
}

// KeywordList dekodiert das gespeicherte Keyword-Set.
func (c *Course) KeywordList() []string {
	return decodeKeywords(c.Keywords)
}

// SetKeywords kodiert das Keyword-Set als JSON-Array.
func (c *Course) SetKeywords(keywords []string) error {
	raw, err := json.Marshal(keywords)
	if err != nil {
		return err
	}
	c.Keywords = datatypes.JSON(raw)
	return nil
}

func decodeKeywords(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var keywords []string
	if err := json.Unmarshal(raw, &keywords); err != nil {
		return nil
	}
	return keywords
}
