package store

import (
	"sort"
	"sync"
	"time"

	"memoireai/pkg/domain"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	email     map[string]string // email -> user ID
	documents map[string]domain.Document
	docOrder  []string
	projects  map[string]domain.Project
	messages  map[string][]domain.SectionMessage // key: projectID + "/" + sectionID
	drafts    map[string]domain.SectionData
	history   map[string][]domain.HistoryEntry // key: user ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		email:     make(map[string]string),
		documents: make(map[string]domain.Document),
		projects:  make(map[string]domain.Project),
		messages:  make(map[string][]domain.SectionMessage),
		drafts:    make(map[string]domain.SectionData),
		history:   make(map[string][]domain.HistoryEntry),
	}
}

func sectionKey(projectID, sectionID string) string {
	return projectID + "/" + sectionID
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// SetUserEmail updates only the email.
func (m *MemoryStore) SetUserEmail(id, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	delete(m.email, u.Email)
	u.Email = email
	m.users[id] = u
	m.email[email] = id
	return nil
}

// SetUserTheme updates only the theme preference.
func (m *MemoryStore) SetUserTheme(id string, theme domain.Theme) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	u.ThemePreference = theme
	m.users[id] = u
	return nil
}

// SaveDocument stores or replaces a document and tracks insertion order.
func (m *MemoryStore) SaveDocument(d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.documents[d.ID]; !exists {
		m.docOrder = append(m.docOrder, d.ID)
	}
	m.documents[d.ID] = d
	return nil
}

// GetDocument retrieves a document by ID.
func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	return d, ok, nil
}

// ListDocumentsByOwner returns a user's documents, newest upload first.
func (m *MemoryStore) ListDocumentsByOwner(userID string, limit int) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0, len(m.docOrder))
	for _, id := range m.docOrder {
		if d, ok := m.documents[id]; ok && d.UserID == userID {
			res = append(res, d)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].UploadDate.After(res[j].UploadDate)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// SetDocumentAnalysis records the AI summary and status transition.
func (m *MemoryStore) SetDocumentAnalysis(id string, result string, status domain.DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return nil
	}
	d.AnalysisResult = result
	d.Status = status
	m.documents[id] = d
	return nil
}

// CreateProject stores a new project.
func (m *MemoryStore) CreateProject(p domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

// GetProject returns one project by ID.
func (m *MemoryStore) GetProject(id string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	return p, ok, nil
}

// ListProjectsByOwner returns a user's projects, most recently updated first.
func (m *MemoryStore) ListProjectsByOwner(userID string) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Project, 0)
	for _, p := range m.projects {
		if p.UserID == userID {
			res = append(res, p)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].UpdatedAt.After(res[j].UpdatedAt)
	})
	return res, nil
}

// TouchProject bumps a project's updated_at.
func (m *MemoryStore) TouchProject(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil
	}
	p.UpdatedAt = at.UTC()
	m.projects[id] = p
	return nil
}

// AppendSectionMessage records one conversation turn for a section.
func (m *MemoryStore) AppendSectionMessage(projectID, sectionID string, msg domain.SectionMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sectionKey(projectID, sectionID)
	m.messages[key] = append(m.messages[key], msg)
	return nil
}

// ListSectionMessages returns the full section history in chronological order.
func (m *MemoryStore) ListSectionMessages(projectID, sectionID string) ([]domain.SectionMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.messages[sectionKey(projectID, sectionID)]
	res := make([]domain.SectionMessage, len(src))
	copy(res, src)
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Timestamp.Before(res[j].Timestamp)
	})
	return res, nil
}

// GetSectionData returns the draft record for a section, if any.
func (m *MemoryStore) GetSectionData(projectID, sectionID string) (domain.SectionData, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[sectionKey(projectID, sectionID)]
	return d, ok, nil
}

// SaveSectionDraft overwrites the section draft.
func (m *MemoryStore) SaveSectionDraft(projectID, sectionID, content string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[sectionKey(projectID, sectionID)] = domain.SectionData{
		Content:   content,
		UpdatedAt: at.UTC(),
	}
	return nil
}

// AppendHistory records an activity log entry.
func (m *MemoryStore) AppendHistory(entry domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[entry.UserID] = append(m.history[entry.UserID], entry)
	return nil
}

// ListHistoryByUser returns the newest entries first.
func (m *MemoryStore) ListHistoryByUser(userID string, limit int) ([]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	src := m.history[userID]
	res := make([]domain.HistoryEntry, len(src))
	copy(res, src)
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
