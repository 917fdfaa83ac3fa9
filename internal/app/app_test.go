package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"memoireai/pkg/domain"
	"memoireai/pkg/store"
)

type generatorCall struct {
	System string
	User   string
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []generatorCall
	reply string
	err   error
}

func (f *fakeGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, generatorCall{System: systemPrompt, User: userPrompt})
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) lastCall(t *testing.T) generatorCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("generator was never called")
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *fakeGenerator) {
	t.Helper()
	st := store.NewMemoryStore()
	gen := &fakeGenerator{reply: "Réponse du mentor"}
	a, err := New(Config{Store: st, Generator: gen})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, st, gen
}

func seedProject(t *testing.T, st *store.MemoryStore, userID string) domain.Project {
	t.Helper()
	now := time.Now().UTC().Add(-time.Hour)
	project := domain.Project{
		ID:        "p1",
		UserID:    userID,
		Title:     "Mémoire de gestion",
		CreatedAt: now,
		UpdatedAt: now,
		Structure: defaultStructure(),
	}
	if err := st.CreateProject(project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return project
}

func TestSendSectionMessageAppendsBothTurns(t *testing.T) {
	a, st, gen := newTestApp(t)
	project := seedProject(t, st, "u1")

	reply, err := a.SendSectionMessage(context.Background(), "u1", project.ID, "intro", "Bonjour, on commence ?")
	if err != nil {
		t.Fatalf("SendSectionMessage: %v", err)
	}
	if reply.Role != "assistant" || reply.Content != gen.reply {
		t.Errorf("reply = %+v", reply)
	}

	messages, err := st.ListSectionMessages(project.ID, "intro")
	if err != nil {
		t.Fatalf("ListSectionMessages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if messages[0].Role != "user" || messages[0].Content != "Bonjour, on commence ?" {
		t.Errorf("first turn = %+v", messages[0])
	}
	if messages[1].Role != "assistant" {
		t.Errorf("second turn = %+v", messages[1])
	}

	updated, _, _ := st.GetProject(project.ID)
	if !updated.UpdatedAt.After(project.UpdatedAt) {
		t.Error("project updatedAt was not bumped")
	}
}

func TestSendSectionMessageRejectsBlankBeforeAnyWrite(t *testing.T) {
	a, st, gen := newTestApp(t)
	project := seedProject(t, st, "u1")

	_, err := a.SendSectionMessage(context.Background(), "u1", project.ID, "intro", "   \n\t ")
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
	if messages, _ := st.ListSectionMessages(project.ID, "intro"); len(messages) != 0 {
		t.Errorf("blank message was persisted: %d turns", len(messages))
	}
	if gen.callCount() != 0 {
		t.Error("generator called for blank message")
	}
}

func TestSendSectionMessageOwnershipAndSection(t *testing.T) {
	a, st, _ := newTestApp(t)
	project := seedProject(t, st, "u1")

	if _, err := a.SendSectionMessage(context.Background(), "intrus", project.ID, "intro", "salut"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("foreign owner err = %v, want ErrProjectNotFound", err)
	}
	if _, err := a.SendSectionMessage(context.Background(), "u1", "absent", "intro", "salut"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("missing project err = %v, want ErrProjectNotFound", err)
	}
	if _, err := a.SendSectionMessage(context.Background(), "u1", project.ID, "annexes", "salut"); !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("missing section err = %v, want ErrSectionNotFound", err)
	}
}

func TestSendSectionMessageModelFailureKeepsUserTurn(t *testing.T) {
	a, st, gen := newTestApp(t)
	project := seedProject(t, st, "u1")
	gen.err = errors.New("api down")

	_, err := a.SendSectionMessage(context.Background(), "u1", project.ID, "intro", "Première question")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
	messages, _ := st.ListSectionMessages(project.ID, "intro")
	if len(messages) != 1 || messages[0].Role != "user" {
		t.Fatalf("messages = %+v, want the single user turn", messages)
	}
}

func TestSendSectionMessagePromptAssembly(t *testing.T) {
	a, st, gen := newTestApp(t)
	project := seedProject(t, st, "u1")

	long := strings.Repeat("x", 600)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		doc := domain.Document{
			ID:             fmt.Sprintf("d%d", i),
			UserID:         "u1",
			Title:          fmt.Sprintf("Source %d", i),
			AnalysisResult: long,
			Status:         domain.DocumentAnalyzed,
			UploadDate:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.SaveDocument(doc); err != nil {
			t.Fatalf("seed document: %v", err)
		}
	}
	if err := st.AppendSectionMessage(project.ID, "intro", domain.SectionMessage{
		ID: "m0", Role: "assistant", Content: "Bienvenue", Timestamp: base,
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	if _, err := a.SendSectionMessage(context.Background(), "u1", project.ID, "intro", "Mon entreprise est Sarl-Boo"); err != nil {
		t.Fatalf("SendSectionMessage: %v", err)
	}

	call := gen.lastCall(t)
	if !strings.Contains(call.System, "RÉFÉRENCES DE LA BIBLIOTHÈQUE DE L'ÉTUDIANT :") {
		t.Error("system prompt missing library header")
	}
	// Newest ten documents only: d0 and d1 are the two oldest.
	if strings.Contains(call.System, "[ID:d0]") || strings.Contains(call.System, "[ID:d1]") {
		t.Error("library context exceeded ten documents")
	}
	if !strings.Contains(call.System, "[ID:d11]") {
		t.Error("newest document missing from library context")
	}
	if strings.Contains(call.System, strings.Repeat("x", 501)) {
		t.Error("library excerpt not truncated to 500 runes")
	}
	if !strings.Contains(call.System, `Section actuelle : "Introduction"`) {
		t.Error("system prompt missing section title")
	}
	if !strings.Contains(call.User, "assistant: Bienvenue") {
		t.Error("user prompt missing prior history")
	}
	if !strings.Contains(call.User, "user: Mon entreprise est Sarl-Boo") {
		t.Error("user prompt missing persisted new turn")
	}
	if !strings.HasSuffix(call.User, "Étudiant: Mon entreprise est Sarl-Boo") {
		t.Error("user prompt missing trailing student line")
	}
}

func TestGenerateSectionDraftRequiresDiscussion(t *testing.T) {
	a, st, gen := newTestApp(t)
	project := seedProject(t, st, "u1")

	_, err := a.GenerateSectionDraft(context.Background(), "u1", project.ID, "intro")
	if !errors.Is(err, ErrNoDiscussion) {
		t.Fatalf("err = %v, want ErrNoDiscussion", err)
	}
	if gen.callCount() != 0 {
		t.Error("generator called without discussion")
	}
	if _, ok, _ := st.GetSectionData(project.ID, "intro"); ok {
		t.Error("draft written despite empty discussion")
	}
}

func TestGenerateSectionDraftStoresWhatItReturns(t *testing.T) {
	a, st, gen := newTestApp(t)
	project := seedProject(t, st, "u1")
	gen.reply = "Premier jet académique de l'introduction."

	if err := st.AppendSectionMessage(project.ID, "intro", domain.SectionMessage{
		ID: "m1", Role: "user", Content: "Mon sujet porte sur l'audit interne", Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	if err := st.SaveDocument(domain.Document{
		ID: "d1", UserID: "u1", Title: "Normes ISA", AnalysisResult: "Résumé des normes", UploadDate: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	draft, err := a.GenerateSectionDraft(context.Background(), "u1", project.ID, "intro")
	if err != nil {
		t.Fatalf("GenerateSectionDraft: %v", err)
	}
	if draft.Content != gen.reply {
		t.Errorf("returned draft = %q", draft.Content)
	}
	stored, ok, _ := st.GetSectionData(project.ID, "intro")
	if !ok || stored.Content != gen.reply {
		t.Errorf("stored draft = %+v, ok=%v", stored, ok)
	}

	call := gen.lastCall(t)
	if call.System != draftSystemPrompt {
		t.Errorf("system prompt = %q", call.System)
	}
	if !strings.Contains(call.User, "user: Mon sujet porte sur l'audit interne") {
		t.Error("discussion missing from draft prompt")
	}
	if !strings.Contains(call.User, "BIBLIOTHÈQUE (SOURCES) :") {
		t.Error("library sources missing from draft prompt")
	}

	entries, _ := st.ListHistoryByUser("u1", 10)
	if len(entries) != 1 || entries[0].Action != "GENERATE_DRAFT" {
		t.Errorf("history = %+v", entries)
	}
}

func TestGenerateSectionDraftOverwritesPrevious(t *testing.T) {
	a, st, gen := newTestApp(t)
	project := seedProject(t, st, "u1")
	if err := st.AppendSectionMessage(project.ID, "intro", domain.SectionMessage{
		ID: "m1", Role: "user", Content: "allons-y", Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	gen.reply = "version un"
	if _, err := a.GenerateSectionDraft(context.Background(), "u1", project.ID, "intro"); err != nil {
		t.Fatalf("first draft: %v", err)
	}
	gen.reply = "version deux"
	if _, err := a.GenerateSectionDraft(context.Background(), "u1", project.ID, "intro"); err != nil {
		t.Fatalf("second draft: %v", err)
	}

	stored, _, _ := st.GetSectionData(project.ID, "intro")
	if stored.Content != "version deux" {
		t.Errorf("stored draft = %q, want the latest generation", stored.Content)
	}
}

func TestSectionDraftReadAndManualSave(t *testing.T) {
	a, st, _ := newTestApp(t)
	project := seedProject(t, st, "u1")

	empty, err := a.GetSectionDraft(context.Background(), "u1", project.ID, "intro")
	if err != nil || empty.Content != "" {
		t.Fatalf("empty draft = %+v, err=%v", empty, err)
	}

	if err := a.SaveSectionDraft(context.Background(), "u1", project.ID, "intro", "Brouillon manuel"); err != nil {
		t.Fatalf("SaveSectionDraft: %v", err)
	}
	got, err := a.GetSectionDraft(context.Background(), "u1", project.ID, "intro")
	if err != nil || got.Content != "Brouillon manuel" {
		t.Fatalf("draft after save = %+v, err=%v", got, err)
	}

	if err := a.SaveSectionDraft(context.Background(), "u1", project.ID, "intro", "   "); !errors.Is(err, ErrEmptyDraft) {
		t.Errorf("blank save err = %v, want ErrEmptyDraft", err)
	}
}

func TestSaveSectionDraftRejectsUnknownSection(t *testing.T) {
	a, st, _ := newTestApp(t)
	project := seedProject(t, st, "u1")

	err := a.SaveSectionDraft(context.Background(), "u1", project.ID, "annexes", "texte orphelin")
	if !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("err = %v, want ErrSectionNotFound", err)
	}
	if _, ok, _ := st.GetSectionData(project.ID, "annexes"); ok {
		t.Error("draft written for a section missing from the structure")
	}
}

func TestReadEndpointsDistinguishMissingFromForeign(t *testing.T) {
	a, st, _ := newTestApp(t)
	project := seedProject(t, st, "u1")

	if _, err := a.GetSectionMessages(context.Background(), "intrus", project.ID, "intro"); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign read err = %v, want ErrForbidden", err)
	}
	if _, err := a.GetSectionMessages(context.Background(), "u1", "absent", "intro"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("missing read err = %v, want ErrProjectNotFound", err)
	}
	if _, err := a.GetSectionDraft(context.Background(), "intrus", project.ID, "intro"); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign draft read err = %v, want ErrForbidden", err)
	}
	if _, err := a.GetProject(context.Background(), "intrus", project.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign project read err = %v, want ErrForbidden", err)
	}
}

func TestCreateProjectDefaultStructure(t *testing.T) {
	a, st, gen := newTestApp(t)

	project, err := a.CreateProject(context.Background(), "u1", CreateProjectInput{Title: "Mon mémoire", FieldOfStudy: "Gestion"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if len(project.Structure) != 6 {
		t.Fatalf("structure = %d sections, want 6", len(project.Structure))
	}
	if project.Structure[0].ID != "intro" || project.Structure[5].ID != "conclusion" {
		t.Errorf("structure = %+v", project.Structure)
	}
	for i, s := range project.Structure {
		if s.Order != i+1 || s.Status != domain.SectionPending {
			t.Errorf("section %d = %+v", i, s)
		}
	}
	if gen.callCount() != 0 {
		t.Error("generator called without a template")
	}

	listed, err := a.ListProjects(context.Background(), "u1")
	if err != nil || len(listed) != 1 || listed[0].ID != project.ID {
		t.Errorf("ListProjects = %+v, err=%v", listed, err)
	}
	if _, ok, _ := st.GetProject(project.ID); !ok {
		t.Error("project not persisted")
	}
}

func TestCreateProjectExtractsTemplateStructure(t *testing.T) {
	a, _, gen := newTestApp(t)
	gen.reply = `Voici le plan : [{"id": "contexte", "title": "Contexte de l'étude"}, {"id": "analyse", "title": "Analyse"}]`

	project, err := a.CreateProject(context.Background(), "u1", CreateProjectInput{
		Title:            "Mémoire modèle",
		TemplateFilename: "modele.txt",
		TemplateData:     []byte("Chapitre 1 Contexte. Chapitre 2 Analyse."),
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if len(project.Structure) != 2 || project.Structure[0].ID != "contexte" {
		t.Fatalf("structure = %+v", project.Structure)
	}

	call := gen.lastCall(t)
	if call.System != structureSystemPrompt {
		t.Errorf("system prompt = %q", call.System)
	}
	if !strings.Contains(call.User, "Chapitre 1 Contexte") {
		t.Error("template text missing from extraction prompt")
	}
}

func TestCreateProjectTemplateFailureFallsBack(t *testing.T) {
	a, _, gen := newTestApp(t)
	gen.err = errors.New("modèle indisponible")

	project, err := a.CreateProject(context.Background(), "u1", CreateProjectInput{
		Title:            "Mémoire modèle",
		TemplateFilename: "modele.txt",
		TemplateData:     []byte("un plan illisible"),
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if len(project.Structure) != 6 {
		t.Errorf("structure = %d sections, want the default plan", len(project.Structure))
	}
}

func TestCreateProjectRequiresTitle(t *testing.T) {
	a, _, _ := newTestApp(t)
	if _, err := a.CreateProject(context.Background(), "u1", CreateProjectInput{Title: "  "}); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("err = %v, want ErrTitleRequired", err)
	}
}

func TestUploadDocumentAnalyzed(t *testing.T) {
	a, st, gen := newTestApp(t)
	gen.reply = "## Analyse\nTexte clair."

	doc, err := a.UploadDocument(context.Background(), "u1", UploadDocumentInput{
		Filename: "notes.txt",
		Mimetype: "text/plain",
		Data:     []byte("Contenu du document de recherche."),
	})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if doc.Status != domain.DocumentAnalyzed || doc.AnalysisResult != gen.reply {
		t.Errorf("doc = status %q analysis %q", doc.Status, doc.AnalysisResult)
	}
	if doc.Title != "notes.txt" {
		t.Errorf("title fallback = %q", doc.Title)
	}

	stored, ok, _ := st.GetDocument(doc.ID)
	if !ok || stored.Content != "Contenu du document de recherche." {
		t.Errorf("stored doc = %+v, ok=%v", stored, ok)
	}

	entries, _ := st.ListHistoryByUser("u1", 10)
	if len(entries) != 1 || entries[0].Action != "UPLOAD_DOCUMENT" {
		t.Errorf("history = %+v", entries)
	}
}

func TestUploadDocumentAnalysisFailureKeepsUpload(t *testing.T) {
	a, st, gen := newTestApp(t)
	gen.err = errors.New("quota exceeded")

	doc, err := a.UploadDocument(context.Background(), "u1", UploadDocumentInput{
		Filename: "notes.txt",
		Data:     []byte("Contenu."),
	})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if doc.Status != domain.DocumentError {
		t.Errorf("status = %q, want error", doc.Status)
	}
	if doc.AnalysisResult != analysisFailedMessage {
		t.Errorf("analysis = %q", doc.AnalysisResult)
	}
	if _, ok, _ := st.GetDocument(doc.ID); !ok {
		t.Error("document not persisted after analysis failure")
	}
}

func TestUploadDocumentRejectsUnsupportedExtension(t *testing.T) {
	a, _, gen := newTestApp(t)
	_, err := a.UploadDocument(context.Background(), "u1", UploadDocumentInput{
		Filename: "photo.png",
		Data:     []byte{0x89},
	})
	if !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("err = %v, want ErrUnsupportedFile", err)
	}
	if gen.callCount() != 0 {
		t.Error("generator called for rejected upload")
	}
}

func TestReanalyzeDocument(t *testing.T) {
	a, st, gen := newTestApp(t)
	if err := st.SaveDocument(domain.Document{
		ID: "d1", UserID: "u1", Title: "Brut", Content: "texte extrait",
		AnalysisResult: analysisFailedMessage, Status: domain.DocumentError, UploadDate: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	gen.reply = "Analyse réussie cette fois."

	doc, err := a.ReanalyzeDocument(context.Background(), "u1", "d1")
	if err != nil {
		t.Fatalf("ReanalyzeDocument: %v", err)
	}
	if doc.Status != domain.DocumentAnalyzed || doc.AnalysisResult != gen.reply {
		t.Errorf("doc = %+v", doc)
	}
	if _, err := a.ReanalyzeDocument(context.Background(), "intrus", "d1"); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign reanalyze err = %v, want ErrForbidden", err)
	}
	if _, err := a.ReanalyzeDocument(context.Background(), "u1", "absent"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("missing reanalyze err = %v, want ErrDocumentNotFound", err)
	}
}

func TestDocumentDownloadWithoutStorage(t *testing.T) {
	a, st, _ := newTestApp(t)
	if err := st.SaveDocument(domain.Document{ID: "d1", UserID: "u1", UploadDate: time.Now().UTC()}); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	if _, err := a.DocumentDownloadURL(context.Background(), "u1", "d1"); !errors.Is(err, ErrNoDownload) {
		t.Fatalf("err = %v, want ErrNoDownload", err)
	}
}

func TestRegisterLoginAndTheme(t *testing.T) {
	a, _, _ := newTestApp(t)

	user, err := a.Register(context.Background(), "Etudiant@Example.com", "motdepasse", "Étudiant Test")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "etudiant@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}

	if _, err := a.Register(context.Background(), "etudiant@example.com", "autre", "Doublon"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate err = %v, want ErrEmailTaken", err)
	}

	if _, err := a.Login(context.Background(), "etudiant@example.com", "motdepasse"); err != nil {
		t.Errorf("Login: %v", err)
	}
	if _, err := a.Login(context.Background(), "etudiant@example.com", "faux"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("wrong password err = %v, want ErrBadCredentials", err)
	}
	if _, err := a.Login(context.Background(), "inconnu@example.com", "x"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("unknown email err = %v, want ErrBadCredentials", err)
	}

	if err := a.SetTheme(context.Background(), user.ID, "dark"); err != nil {
		t.Errorf("SetTheme: %v", err)
	}
	if err := a.SetTheme(context.Background(), user.ID, "néon"); !errors.Is(err, ErrInvalidTheme) {
		t.Errorf("invalid theme err = %v, want ErrInvalidTheme", err)
	}

	got, err := a.GetUser(context.Background(), user.ID)
	if err != nil || got.ThemePreference != domain.ThemeDark {
		t.Errorf("GetUser after theme = %+v, err=%v", got, err)
	}
}

func TestUpdateEmail(t *testing.T) {
	a, _, _ := newTestApp(t)
	user, err := a.Register(context.Background(), "a@example.com", "pw", "A")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := a.Register(context.Background(), "b@example.com", "pw", "B"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	updated, err := a.UpdateEmail(context.Background(), user.ID, "nouveau@example.com")
	if err != nil || updated.Email != "nouveau@example.com" {
		t.Fatalf("UpdateEmail = %+v, err=%v", updated, err)
	}
	if _, err := a.UpdateEmail(context.Background(), user.ID, "b@example.com"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("taken email err = %v, want ErrEmailTaken", err)
	}
}

func TestConcurrentChatTurnsStayPaired(t *testing.T) {
	a, st, gen := newTestApp(t)
	project := seedProject(t, st, "u1")
	gen.reply = "ok"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := a.SendSectionMessage(context.Background(), "u1", project.ID, "intro", fmt.Sprintf("message %d", n))
			if err != nil {
				t.Errorf("SendSectionMessage: %v", err)
			}
		}(i)
	}
	wg.Wait()

	messages, _ := st.ListSectionMessages(project.ID, "intro")
	if len(messages) != 16 {
		t.Fatalf("messages = %d, want 16", len(messages))
	}
	// Serialized writes alternate user/assistant turns.
	for i, m := range messages {
		want := "user"
		if i%2 == 1 {
			want = "assistant"
		}
		if m.Role != want {
			t.Fatalf("turn %d role = %q, want %q", i, m.Role, want)
		}
	}
}
