package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"memoireai/pkg/domain"
)

const migrateLockID int64 = 51420917

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so that concurrently starting replicas do not race on schema changes.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&UserModel{},
			&DocumentModel{},
			&ProjectModel{},
			&SectionMessageModel{},
			&SectionDataModel{},
			&HistoryModel{},
		)
	}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "name", "is_admin", "theme_preference"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SetUserEmail updates only the email column.
func (s *GormStore) SetUserEmail(id, email string) error {
	return s.db.Model(&UserModel{}).Where("id = ?", id).Update("email", email).Error
}

// SetUserTheme updates only the theme preference.
func (s *GormStore) SetUserTheme(id string, theme domain.Theme) error {
	return s.db.Model(&UserModel{}).Where("id = ?", id).Update("theme_preference", string(theme)).Error
}

// SaveDocument stores or updates a document.
func (s *GormStore) SaveDocument(d domain.Document) error {
	model := documentToModel(d)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "filename", "mimetype", "size_bytes", "description", "content", "analysis_result", "status", "storage_key"}),
	}).Create(&model).Error
}

// GetDocument retrieves a document by ID.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocumentsByOwner returns a user's documents, newest upload first.
func (s *GormStore) ListDocumentsByOwner(userID string, limit int) ([]domain.Document, error) {
	query := s.db.Where("user_id = ?", userID).Order("upload_date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []DocumentModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(models))
	for _, model := range models {
		docs = append(docs, documentFromModel(model))
	}
	return docs, nil
}

// SetDocumentAnalysis records the AI summary and status transition.
func (s *GormStore) SetDocumentAnalysis(id string, result string, status domain.DocumentStatus) error {
	return s.db.Model(&DocumentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"analysis_result": result,
			"status":          string(status),
		}).Error
}

// CreateProject creates a new project record.
func (s *GormStore) CreateProject(p domain.Project) error {
	model, err := projectToModel(p)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// GetProject returns one project by ID.
func (s *GormStore) GetProject(id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	project, err := projectFromModel(model)
	if err != nil {
		return domain.Project{}, false, err
	}
	return project, true, nil
}

// ListProjectsByOwner returns a user's projects, most recently updated first.
func (s *GormStore) ListProjectsByOwner(userID string) ([]domain.Project, error) {
	var models []ProjectModel
	if err := s.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	projects := make([]domain.Project, 0, len(models))
	for _, model := range models {
		project, err := projectFromModel(model)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, nil
}

// TouchProject bumps a project's updated_at.
func (s *GormStore) TouchProject(id string, at time.Time) error {
	return s.db.Model(&ProjectModel{}).Where("id = ?", id).Update("updated_at", at.UTC()).Error
}

// AppendSectionMessage records one conversation turn for a section.
func (s *GormStore) AppendSectionMessage(projectID, sectionID string, msg domain.SectionMessage) error {
	model := SectionMessageModel{
		ID:        msg.ID,
		ProjectID: projectID,
		SectionID: sectionID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.Timestamp,
	}
	return s.db.Create(&model).Error
}

// ListSectionMessages returns the full section history in chronological order.
func (s *GormStore) ListSectionMessages(projectID, sectionID string) ([]domain.SectionMessage, error) {
	var models []SectionMessageModel
	if err := s.db.Where("project_id = ? AND section_id = ?", projectID, sectionID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.SectionMessage, 0, len(models))
	for _, model := range models {
		msgs = append(msgs, domain.SectionMessage{
			ID:        model.ID,
			Role:      model.Role,
			Content:   model.Content,
			Timestamp: model.CreatedAt,
		})
	}
	return msgs, nil
}

// GetSectionData returns the draft record for a section, if any.
func (s *GormStore) GetSectionData(projectID, sectionID string) (domain.SectionData, bool, error) {
	var model SectionDataModel
	if err := s.db.First(&model, "project_id = ? AND section_id = ?", projectID, sectionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.SectionData{}, false, nil
		}
		return domain.SectionData{}, false, err
	}
	return domain.SectionData{Content: model.Content, UpdatedAt: model.UpdatedAt}, true, nil
}

// SaveSectionDraft overwrites the section draft (merge-write, last writer wins).
func (s *GormStore) SaveSectionDraft(projectID, sectionID, content string, at time.Time) error {
	model := SectionDataModel{
		ProjectID: projectID,
		SectionID: sectionID,
		Content:   content,
		UpdatedAt: at.UTC(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "section_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(&model).Error
}

// AppendHistory records an activity log entry.
func (s *GormStore) AppendHistory(entry domain.HistoryEntry) error {
	model := HistoryModel{
		ID:        entry.ID,
		UserID:    entry.UserID,
		Action:    entry.Action,
		Details:   entry.Details,
		CreatedAt: entry.CreatedAt,
	}
	return s.db.Create(&model).Error
}

// ListHistoryByUser returns the newest entries first.
func (s *GormStore) ListHistoryByUser(userID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []HistoryModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.HistoryEntry, 0, len(models))
	for _, model := range models {
		entries = append(entries, domain.HistoryEntry{
			ID:        model.ID,
			UserID:    model.UserID,
			Action:    model.Action,
			Details:   model.Details,
			CreatedAt: model.CreatedAt,
		})
	}
	return entries, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:              u.ID,
		Email:           u.Email,
		PasswordHash:    u.PasswordHash,
		Name:            u.Name,
		IsAdmin:         u.IsAdmin,
		ThemePreference: string(u.ThemePreference),
		CreatedAt:       u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:              m.ID,
		Email:           m.Email,
		PasswordHash:    m.PasswordHash,
		Name:            m.Name,
		IsAdmin:         m.IsAdmin,
		ThemePreference: domain.Theme(m.ThemePreference),
		CreatedAt:       m.CreatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:             d.ID,
		UserID:         d.UserID,
		Title:          d.Title,
		Filename:       d.Filename,
		Mimetype:       d.Mimetype,
		SizeBytes:      d.Size,
		Description:    d.Description,
		Content:        d.Content,
		AnalysisResult: d.AnalysisResult,
		Status:         string(d.Status),
		StorageKey:     d.StorageKey,
		UploadDate:     d.UploadDate,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:             m.ID,
		UserID:         m.UserID,
		Title:          m.Title,
		Filename:       m.Filename,
		Mimetype:       m.Mimetype,
		Size:           m.SizeBytes,
		Description:    m.Description,
		Content:        m.Content,
		AnalysisResult: m.AnalysisResult,
		Status:         domain.DocumentStatus(m.Status),
		StorageKey:     m.StorageKey,
		UploadDate:     m.UploadDate,
	}
}

func projectToModel(p domain.Project) (ProjectModel, error) {
	structure, err := json.Marshal(p.Structure)
	if err != nil {
		return ProjectModel{}, fmt.Errorf("marshal structure: %w", err)
	}
	return ProjectModel{
		ID:           p.ID,
		UserID:       p.UserID,
		Title:        p.Title,
		FieldOfStudy: p.FieldOfStudy,
		Structure:    structure,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}, nil
}

func projectFromModel(m ProjectModel) (domain.Project, error) {
	var structure []domain.SectionMetadata
	if len(m.Structure) > 0 {
		if err := json.Unmarshal(m.Structure, &structure); err != nil {
			return domain.Project{}, fmt.Errorf("unmarshal structure for project %s: %w", m.ID, err)
		}
	}
	return domain.Project{
		ID:           m.ID,
		UserID:       m.UserID,
		Title:        m.Title,
		FieldOfStudy: m.FieldOfStudy,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		Structure:    structure,
	}, nil
}
