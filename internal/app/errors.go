package app

import "errors"

// Sentinel errors returned by the application layer. The HTTP layer maps
// them to status codes at the boundary.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrBadCredentials   = errors.New("invalid email or password")
	ErrInvalidTheme     = errors.New("theme must be light or dark")
	ErrProjectNotFound  = errors.New("project not found")
	ErrSectionNotFound  = errors.New("section not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrForbidden        = errors.New("access denied")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrTitleRequired    = errors.New("title is required")
	ErrEmptyDraft       = errors.New("draft content is empty")
	ErrNoDiscussion     = errors.New("no prior discussion to generate a draft from")
	ErrEmptyDocument    = errors.New("document has no readable content")
	ErrUnsupportedFile  = errors.New("unsupported file type")
	ErrFileTooLarge     = errors.New("file too large")
	ErrGeneration       = errors.New("text generation failed")
	ErrNoDownload       = errors.New("document download is not available")
)
