package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"memoireai/internal/util"
	"memoireai/pkg/ai"
	"memoireai/pkg/domain"
	"memoireai/pkg/storage"
	"memoireai/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL       string
	Store             store.Store
	Generator         ai.TextGenerator
	Objects           storage.ObjectStore
	MaxUploadBytes    int64
	AllowedExtensions []string
}

// App is the core application service wiring together storage, object
// storage and the text generator.
type App struct {
	store             store.Store
	generator         ai.TextGenerator
	objects           storage.ObjectStore
	locks             *sectionLocks
	maxUploadBytes    int64
	allowedExtensions map[string]bool
}

// New constructs the application with database-backed storage.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("text generator required")
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	extensions := cfg.AllowedExtensions
	if len(extensions) == 0 {
		extensions = []string{".pdf", ".docx", ".html", ".htm", ".txt", ".md"}
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(strings.TrimSpace(ext))] = true
	}

	return &App{
		store:             dataStore,
		generator:         cfg.Generator,
		objects:           cfg.Objects,
		locks:             newSectionLocks(),
		maxUploadBytes:    maxUpload,
		allowedExtensions: allowed,
	}, nil
}

// MaxUploadBytes reports the configured upload size limit.
func (a *App) MaxUploadBytes() int64 { return a.maxUploadBytes }

// sectionContext is what the mentor and draft prompts are assembled from.
type sectionContext struct {
	docs    []domain.Document
	history []domain.SectionMessage
}

func (a *App) loadSectionContext(ctx context.Context, userID, projectID, sectionID string) (sectionContext, error) {
	var sc sectionContext
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := a.store.ListDocumentsByOwner(userID, maxLibraryDocs)
		if err != nil {
			return fmt.Errorf("load library: %w", err)
		}
		sc.docs = docs
		return nil
	})
	g.Go(func() error {
		history, err := a.store.ListSectionMessages(projectID, sectionID)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		sc.history = history
		return nil
	})
	if err := g.Wait(); err != nil {
		return sectionContext{}, err
	}
	return sc, nil
}

// ownedProject loads a project and hides its existence from non-owners.
func (a *App) ownedProject(projectID, userID string) (domain.Project, error) {
	project, ok, err := a.store.GetProject(projectID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("load project: %w", err)
	}
	if !ok || project.UserID != userID {
		return domain.Project{}, ErrProjectNotFound
	}
	return project, nil
}

// readableProject loads a project for read endpoints, which distinguish
// a missing project from one owned by someone else.
func (a *App) readableProject(projectID, userID string) (domain.Project, error) {
	project, ok, err := a.store.GetProject(projectID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("load project: %w", err)
	}
	if !ok {
		return domain.Project{}, ErrProjectNotFound
	}
	if project.UserID != userID {
		return domain.Project{}, ErrForbidden
	}
	return project, nil
}

// SendSectionMessage runs one mentor turn: the student's message is
// persisted first, then the model answers with the library and the full
// section history in context. A model failure keeps the student's turn.
func (a *App) SendSectionMessage(ctx context.Context, userID, projectID, sectionID, message string) (domain.SectionMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.SectionMessage{}, ErrEmptyMessage
	}
	project, err := a.ownedProject(projectID, userID)
	if err != nil {
		return domain.SectionMessage{}, err
	}
	section, ok := project.Section(sectionID)
	if !ok {
		return domain.SectionMessage{}, ErrSectionNotFound
	}

	lock := a.locks.lock(projectID, sectionID)
	defer lock.Unlock()

	userTurn := domain.SectionMessage{
		ID:        util.NewID(),
		Role:      "user",
		Content:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := a.store.AppendSectionMessage(projectID, sectionID, userTurn); err != nil {
		return domain.SectionMessage{}, fmt.Errorf("save user message: %w", err)
	}
	if err := a.store.TouchProject(projectID, userTurn.Timestamp); err != nil {
		return domain.SectionMessage{}, fmt.Errorf("touch project: %w", err)
	}

	sc, err := a.loadSectionContext(ctx, userID, projectID, sectionID)
	if err != nil {
		return domain.SectionMessage{}, err
	}

	systemPrompt := mentorSystemPrompt(section.Title, project.Title, chatLibraryContext(sc.docs))
	reply, err := a.generator.GenerateText(ctx, systemPrompt, mentorUserPrompt(sc.history, message))
	if err != nil {
		return domain.SectionMessage{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	assistantTurn := domain.SectionMessage{
		ID:        util.NewID(),
		Role:      "assistant",
		Content:   reply,
		Timestamp: time.Now().UTC(),
	}
	if err := a.store.AppendSectionMessage(projectID, sectionID, assistantTurn); err != nil {
		return domain.SectionMessage{}, fmt.Errorf("save assistant message: %w", err)
	}
	if err := a.store.TouchProject(projectID, assistantTurn.Timestamp); err != nil {
		return domain.SectionMessage{}, fmt.Errorf("touch project: %w", err)
	}
	return assistantTurn, nil
}

// GetSectionMessages lists a section's conversation in chronological order.
func (a *App) GetSectionMessages(ctx context.Context, userID, projectID, sectionID string) ([]domain.SectionMessage, error) {
	if _, err := a.readableProject(projectID, userID); err != nil {
		return nil, err
	}
	messages, err := a.store.ListSectionMessages(projectID, sectionID)
	if err != nil {
		return nil, fmt.Errorf("list section messages: %w", err)
	}
	return messages, nil
}

// GenerateSectionDraft rewrites the section's discussion into an academic
// first draft and stores it, replacing any previous draft.
func (a *App) GenerateSectionDraft(ctx context.Context, userID, projectID, sectionID string) (domain.SectionData, error) {
	project, err := a.ownedProject(projectID, userID)
	if err != nil {
		return domain.SectionData{}, err
	}
	section, ok := project.Section(sectionID)
	if !ok {
		return domain.SectionData{}, ErrSectionNotFound
	}

	lock := a.locks.lock(projectID, sectionID)
	defer lock.Unlock()

	sc, err := a.loadSectionContext(ctx, userID, projectID, sectionID)
	if err != nil {
		return domain.SectionData{}, err
	}
	if len(sc.history) == 0 {
		return domain.SectionData{}, ErrNoDiscussion
	}

	prompt := draftUserPrompt(section.Title, project.Title, draftLibraryContext(sc.docs), sc.history)
	draft, err := a.generator.GenerateText(ctx, draftSystemPrompt, prompt)
	if err != nil {
		return domain.SectionData{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	now := time.Now().UTC()
	if err := a.store.SaveSectionDraft(projectID, sectionID, draft, now); err != nil {
		return domain.SectionData{}, fmt.Errorf("save draft: %w", err)
	}
	a.logAction(ctx, userID, "GENERATE_DRAFT", fmt.Sprintf("Brouillon généré pour la section %q du projet %q", section.Title, project.Title))
	return domain.SectionData{Content: draft, UpdatedAt: now}, nil
}

// GetSectionDraft returns the stored draft, or an empty one when the
// section has never been drafted.
func (a *App) GetSectionDraft(ctx context.Context, userID, projectID, sectionID string) (domain.SectionData, error) {
	if _, err := a.readableProject(projectID, userID); err != nil {
		return domain.SectionData{}, err
	}
	data, ok, err := a.store.GetSectionData(projectID, sectionID)
	if err != nil {
		return domain.SectionData{}, fmt.Errorf("load section data: %w", err)
	}
	if !ok {
		return domain.SectionData{Content: ""}, nil
	}
	return data, nil
}

// SaveSectionDraft stores a manually edited draft, replacing the stored one.
func (a *App) SaveSectionDraft(ctx context.Context, userID, projectID, sectionID, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyDraft
	}
	project, err := a.ownedProject(projectID, userID)
	if err != nil {
		return err
	}
	if _, ok := project.Section(sectionID); !ok {
		return ErrSectionNotFound
	}

	lock := a.locks.lock(projectID, sectionID)
	defer lock.Unlock()

	if err := a.store.SaveSectionDraft(projectID, sectionID, content, time.Now().UTC()); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// logAction records an activity log entry. Failures are logged and
// swallowed: the log must never break the operation it describes.
func (a *App) logAction(ctx context.Context, userID, action, details string) {
	entry := domain.HistoryEntry{
		ID:        util.NewID(),
		UserID:    userID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendHistory(entry); err != nil {
		util.LoggerFromContext(ctx).Warn("history log failed", "action", action, "error", err)
	}
}

// ListHistory returns the user's recent activity, newest first.
func (a *App) ListHistory(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	entries, err := a.store.ListHistoryByUser(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}
