package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memoireai/internal/util"
	"memoireai/pkg/domain"
)

// defaultStructure is the standard six-section thesis plan used when no
// template file is supplied or structure extraction fails.
func defaultStructure() []domain.SectionMetadata {
	return []domain.SectionMetadata{
		{ID: "intro", Title: "Introduction", Order: 1, Status: domain.SectionPending},
		{ID: "revue", Title: "Revue de littérature", Order: 2, Status: domain.SectionPending},
		{ID: "methode", Title: "Méthodologie", Order: 3, Status: domain.SectionPending},
		{ID: "resultats", Title: "Résultats", Order: 4, Status: domain.SectionPending},
		{ID: "discussion", Title: "Discussion", Order: 5, Status: domain.SectionPending},
		{ID: "conclusion", Title: "Conclusion", Order: 6, Status: domain.SectionPending},
	}
}

// CreateProjectInput carries the multipart fields of a project creation.
// TemplateFilename/TemplateData are optional; when present the template's
// chapter plan is extracted by the model.
type CreateProjectInput struct {
	Title            string
	FieldOfStudy     string
	TemplateFilename string
	TemplateData     []byte
}

// CreateProject creates a thesis project. The section structure comes from
// the template file when one is given and parses cleanly, otherwise the
// default plan is used.
func (a *App) CreateProject(ctx context.Context, userID string, input CreateProjectInput) (domain.Project, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return domain.Project{}, ErrTitleRequired
	}

	structure := defaultStructure()
	if len(input.TemplateData) > 0 {
		if extracted, ok := a.extractStructure(ctx, input.TemplateFilename, input.TemplateData); ok {
			structure = extracted
		}
	}

	now := time.Now().UTC()
	project := domain.Project{
		ID:           util.NewID(),
		UserID:       userID,
		Title:        title,
		FieldOfStudy: strings.TrimSpace(input.FieldOfStudy),
		CreatedAt:    now,
		UpdatedAt:    now,
		Structure:    structure,
	}
	if err := a.store.CreateProject(project); err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	a.logAction(ctx, userID, "CREATE_PROJECT", fmt.Sprintf("Création du projet %q", title))
	return project, nil
}

// extractStructure asks the model for the template's chapter plan. Every
// failure path falls back to the default structure: a bad template never
// blocks project creation.
func (a *App) extractStructure(ctx context.Context, filename string, data []byte) ([]domain.SectionMetadata, bool) {
	logger := util.LoggerFromContext(ctx)
	text, err := extractDocumentText(filename, data)
	if err != nil {
		logger.Warn("template text extraction failed", "filename", filename, "error", err)
		return nil, false
	}
	reply, err := a.generator.GenerateText(ctx, structureSystemPrompt, structureUserPrompt(text))
	if err != nil {
		logger.Warn("template structure extraction failed", "filename", filename, "error", err)
		return nil, false
	}
	structure, ok := parseStructure(reply)
	if !ok {
		logger.Warn("template structure reply was not parseable", "filename", filename)
		return nil, false
	}
	return structure, true
}

// ListProjects returns the user's projects, most recently updated first.
func (a *App) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	projects, err := a.store.ListProjectsByOwner(userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// GetProject returns one project. Missing and not-owned are reported
// separately so the handler can answer 404 versus 403.
func (a *App) GetProject(ctx context.Context, userID, projectID string) (domain.Project, error) {
	return a.readableProject(projectID, userID)
}
