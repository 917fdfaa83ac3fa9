package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"memoireai/internal/app"
	"memoireai/internal/usertoken"
	"memoireai/internal/util"
)

const jsonBodyLimit = 1 << 20

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type userSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !allow(s.registerLimiter, util.ClientIP(r)) {
		tooManyRequests(w)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, jsonBodyLimit)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "email, password and name required")
		return
	}
	user, err := s.app.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    userSummary{ID: user.ID, Email: user.Email},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !allow(s.loginLimiter, util.ClientIP(r)) {
		tooManyRequests(w)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, jsonBodyLimit)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.setSessionCookie(w, token, int(s.tokens.TTL().Seconds()))
	writeJSON(w, http.StatusOK, map[string]any{
		"user": userSummary{ID: user.ID, Email: user.Email},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	switch r.Method {
	case http.MethodGet:
		user, err := s.app.GetUser(r.Context(), claims.UserID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		var req struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, jsonBodyLimit)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		user, err := s.app.UpdateEmail(r.Context(), claims.UserID, req.Email)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"user":    userSummary{ID: user.ID, Email: user.Email},
		})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Theme string `json:"theme"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, jsonBodyLimit)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.SetTheme(r.Context(), claims.UserID, req.Theme); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < limit {
			limit = n
		}
	}
	entries, err := s.app.ListHistory(r.Context(), claims.UserID, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.app.ListDocuments(r.Context(), claims.UserID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, docs)
	case http.MethodPost:
		s.handleUpload(w, r, claims)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	maxBytes := s.app.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+jsonBodyLimit)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Aucun fichier fourni")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}

	doc, err := s.app.UploadDocument(r.Context(), claims.UserID, app.UploadDocumentInput{
		Filename:    header.Filename,
		Mimetype:    header.Header.Get("Content-Type"),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Data:        data,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// handleDocumentSubroute serves /api/documents/{id}/download and
// /api/documents/{id}/analyze.
func (s *Server) handleDocumentSubroute(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	path := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	documentID, action := parts[0], parts[1]

	switch action {
	case "download":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		url, err := s.app.DocumentDownloadURL(r.Context(), claims.UserID, documentID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	case "analyze":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		doc, err := s.app.ReanalyzeDocument(r.Context(), claims.UserID, documentID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.app.ListProjects(r.Context(), claims.UserID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, projects)
	case http.MethodPost:
		s.handleCreateProject(w, r, claims)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	maxBytes := s.app.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+jsonBodyLimit)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	input := app.CreateProjectInput{
		Title:        r.FormValue("title"),
		FieldOfStudy: r.FormValue("fieldOfStudy"),
	}
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file")
			return
		}
		input.TemplateFilename = header.Filename
		input.TemplateData = data
	}

	project, err := s.app.CreateProject(r.Context(), claims.UserID, input)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// handleProjectSubroute serves /api/projects/{id} and the nested section
// endpoints /api/projects/{id}/sections/{sectionId}/{chat|draft|generate-draft}.
func (s *Server) handleProjectSubroute(w http.ResponseWriter, r *http.Request, claims usertoken.Claims) {
	path := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		project, err := s.app.GetProject(r.Context(), claims.UserID, parts[0])
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case len(parts) == 4 && parts[1] == "sections" && parts[0] != "" && parts[2] != "":
		s.handleSection(w, r, claims, parts[0], parts[2], parts[3])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleSection(w http.ResponseWriter, r *http.Request, claims usertoken.Claims, projectID, sectionID, action string) {
	switch action {
	case "chat":
		switch r.Method {
		case http.MethodGet:
			messages, err := s.app.GetSectionMessages(r.Context(), claims.UserID, projectID, sectionID)
			if err != nil {
				writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, messages)
		case http.MethodPost:
			s.handleSectionChat(w, r, claims, projectID, sectionID)
		default:
			methodNotAllowed(w)
		}
	case "draft":
		switch r.Method {
		case http.MethodGet:
			draft, err := s.app.GetSectionDraft(r.Context(), claims.UserID, projectID, sectionID)
			if err != nil {
				writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, draft)
		case http.MethodPost:
			var req struct {
				Content string `json:"content"`
			}
			if err := json.NewDecoder(io.LimitReader(r.Body, jsonBodyLimit)).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			if err := s.app.SaveSectionDraft(r.Context(), claims.UserID, projectID, sectionID, req.Content); err != nil {
				writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		default:
			methodNotAllowed(w)
		}
	case "generate-draft":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !allow(s.draftLimiter, claims.UserID) {
			tooManyRequests(w)
			return
		}
		draft, err := s.app.GenerateSectionDraft(r.Context(), claims.UserID, projectID, sectionID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"draft": draft.Content})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleSectionChat(w http.ResponseWriter, r *http.Request, claims usertoken.Claims, projectID, sectionID string) {
	if !allow(s.chatLimiter, claims.UserID) {
		tooManyRequests(w)
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, jsonBodyLimit)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, err := s.app.SendSectionMessage(r.Context(), claims.UserID, projectID, sectionID, req.Message)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
