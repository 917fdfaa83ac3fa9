package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID              string `gorm:"primaryKey"`
	Email           string `gorm:"uniqueIndex;not null"`
	PasswordHash    string `gorm:"not null"`
	Name            string
	IsAdmin         bool
	ThemePreference string
	CreatedAt       time.Time `gorm:"not null"`
}

type DocumentModel struct {
	ID             string `gorm:"primaryKey"`
	UserID         string `gorm:"not null;index"`
	Title          string `gorm:"not null"`
	Filename       string `gorm:"not null"`
	Mimetype       string
	SizeBytes      int64
	Description    string
	Content        string `gorm:"type:text"`
	AnalysisResult string `gorm:"type:text"`
	Status         string `gorm:"not null"`
	StorageKey     string
	UploadDate     time.Time `gorm:"not null;index"`
}

type ProjectModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index"`
	Title        string `gorm:"not null"`
	FieldOfStudy string
	Structure    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null;index"`
}

type SectionMessageModel struct {
	ID        string `gorm:"primaryKey"`
	ProjectID string `gorm:"not null;index:idx_section_messages_scope"`
	SectionID string `gorm:"not null;index:idx_section_messages_scope"`
	Role      string `gorm:"not null"`
	Content   string `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type SectionDataModel struct {
	ProjectID string `gorm:"primaryKey"`
	SectionID string `gorm:"primaryKey"`
	Content   string `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"not null"`
}

type HistoryModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Action    string `gorm:"not null"`
	Details   string
	CreatedAt time.Time `gorm:"not null;index"`
}
