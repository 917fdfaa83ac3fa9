package store

import (
	"time"

	"memoireai/pkg/domain"
)

// Store defines persistence for users, documents, projects, section
// conversations, drafts, and the activity log. Ownership checks are the
// caller's job; the store answers by ID only.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	SetUserEmail(id, email string) error
	SetUserTheme(id string, theme domain.Theme) error

	// documents
	SaveDocument(domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocumentsByOwner(userID string, limit int) ([]domain.Document, error)
	SetDocumentAnalysis(id string, result string, status domain.DocumentStatus) error

	// projects
	CreateProject(domain.Project) error
	GetProject(id string) (domain.Project, bool, error)
	ListProjectsByOwner(userID string) ([]domain.Project, error)
	TouchProject(id string, at time.Time) error

	// section conversations (append-only)
	AppendSectionMessage(projectID, sectionID string, msg domain.SectionMessage) error
	ListSectionMessages(projectID, sectionID string) ([]domain.SectionMessage, error)

	// section drafts (single mutable record per section)
	GetSectionData(projectID, sectionID string) (domain.SectionData, bool, error)
	SaveSectionDraft(projectID, sectionID, content string, at time.Time) error

	// activity log
	AppendHistory(domain.HistoryEntry) error
	ListHistoryByUser(userID string, limit int) ([]domain.HistoryEntry, error)
}
