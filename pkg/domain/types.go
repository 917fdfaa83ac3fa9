package domain

import "time"

type DocumentStatus string

const (
	DocumentUploaded DocumentStatus = "uploaded"
	DocumentAnalyzed DocumentStatus = "analyzed"
	DocumentError    DocumentStatus = "error"
)

type SectionStatus string

const (
	SectionPending    SectionStatus = "pending"
	SectionInProgress SectionStatus = "in_progress"
	SectionCompleted  SectionStatus = "completed"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// User is an account holder. The account endpoints keep the original
// snake_case wire format.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Name            string    `json:"name"`
	IsAdmin         bool      `json:"is_admin"`
	ThemePreference Theme     `json:"theme_preference,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Document is an uploaded source file with its extracted text and the AI
// summary produced at upload time. Content and StorageKey never leave the
// backend.
type Document struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Title          string         `json:"title"`
	Filename       string         `json:"filename"`
	Mimetype       string         `json:"mimetype"`
	Size           int64          `json:"size"`
	Description    string         `json:"description,omitempty"`
	Content        string         `json:"-"`
	AnalysisResult string         `json:"analysis_result,omitempty"`
	Status         DocumentStatus `json:"status"`
	StorageKey     string         `json:"-"`
	UploadDate     time.Time      `json:"upload_date"`
}

// SectionMetadata is one entry of a project's table of contents.
// IDs and Order values are unique within a structure.
type SectionMetadata struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Order  int           `json:"order"`
	Status SectionStatus `json:"status"`
}

// Project is a thesis owned by exactly one user. Structure order defines
// the table of contents.
type Project struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	Title        string            `json:"title"`
	FieldOfStudy string            `json:"fieldOfStudy,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	Structure    []SectionMetadata `json:"structure"`
}

// Section returns the structure entry with the given ID.
func (p Project) Section(sectionID string) (SectionMetadata, bool) {
	for _, s := range p.Structure {
		if s.ID == sectionID {
			return s, true
		}
	}
	return SectionMetadata{}, false
}

// SectionMessage is one turn of a section's mentor conversation. The log is
// append-only; messages are never edited or removed.
type SectionMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SectionData holds the single mutable draft of a section. Each draft
// generation or manual save overwrites it whole.
type SectionData struct {
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HistoryEntry records a user-visible action for the activity log.
type HistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
