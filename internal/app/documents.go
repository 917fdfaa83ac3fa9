package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"memoireai/internal/util"
	"memoireai/pkg/domain"
)

// UploadDocumentInput carries one multipart upload.
type UploadDocumentInput struct {
	Filename    string
	Mimetype    string
	Title       string
	Description string
	Data        []byte
}

// UploadDocument adds a file to the student's library: text is extracted,
// the original bytes go to object storage when it is configured, and a
// first analysis is produced synchronously. An analysis failure keeps the
// upload; the document is marked accordingly and can be re-analyzed later
// through the chat.
func (a *App) UploadDocument(ctx context.Context, userID string, input UploadDocumentInput) (domain.Document, error) {
	logger := util.LoggerFromContext(ctx)
	if len(input.Data) == 0 {
		return domain.Document{}, fmt.Errorf("%w: empty file", ErrEmptyDocument)
	}
	if int64(len(input.Data)) > a.maxUploadBytes {
		return domain.Document{}, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, a.maxUploadBytes)
	}
	ext := strings.ToLower(filepath.Ext(input.Filename))
	if !a.allowedExtensions[ext] {
		return domain.Document{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, ext)
	}

	content, err := extractDocumentText(input.Filename, input.Data)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFile) {
			return domain.Document{}, err
		}
		return domain.Document{}, fmt.Errorf("extract text: %w", err)
	}

	doc := domain.Document{
		ID:          util.NewID(),
		UserID:      userID,
		Title:       strings.TrimSpace(input.Title),
		Filename:    input.Filename,
		Mimetype:    input.Mimetype,
		Size:        int64(len(input.Data)),
		Description: strings.TrimSpace(input.Description),
		Content:     content,
		Status:      domain.DocumentUploaded,
		UploadDate:  time.Now().UTC(),
	}
	if doc.Title == "" {
		doc.Title = input.Filename
	}

	if a.objects != nil {
		key := fmt.Sprintf("documents/%s/%s%s", userID, doc.ID, ext)
		if err := a.objects.Put(ctx, key, bytes.NewReader(input.Data), int64(len(input.Data)), input.Mimetype); err != nil {
			return domain.Document{}, fmt.Errorf("store original file: %w", err)
		}
		doc.StorageKey = key
	}

	doc.AnalysisResult, doc.Status = a.analyzeUpload(ctx, content)
	if err := a.store.SaveDocument(doc); err != nil {
		return domain.Document{}, fmt.Errorf("save document: %w", err)
	}

	a.logAction(ctx, userID, "UPLOAD_DOCUMENT", fmt.Sprintf("Upload de %s", input.Filename))
	logger.Info("document uploaded", "doc_id", doc.ID, "status", doc.Status, "size", doc.Size)
	return doc, nil
}

// analyzeUpload runs the initial analysis on the first part of the text.
func (a *App) analyzeUpload(ctx context.Context, content string) (string, domain.DocumentStatus) {
	result, err := a.generator.GenerateText(ctx, analysisSystemPrompt, analysisUserPrompt(content))
	if err != nil {
		util.LoggerFromContext(ctx).Warn("initial analysis failed", "error", err)
		return analysisFailedMessage, domain.DocumentError
	}
	return result, domain.DocumentAnalyzed
}

// ReanalyzeDocument re-runs the initial analysis on a stored document.
// This is the retry path for uploads whose first analysis failed.
func (a *App) ReanalyzeDocument(ctx context.Context, userID, documentID string) (domain.Document, error) {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return domain.Document{}, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return domain.Document{}, ErrDocumentNotFound
	}
	if doc.UserID != userID {
		return domain.Document{}, ErrForbidden
	}
	if strings.TrimSpace(doc.Content) == "" {
		return domain.Document{}, ErrEmptyDocument
	}

	result, err := a.generator.GenerateText(ctx, analysisSystemPrompt, analysisUserPrompt(doc.Content))
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if err := a.store.SetDocumentAnalysis(doc.ID, result, domain.DocumentAnalyzed); err != nil {
		return domain.Document{}, fmt.Errorf("save analysis: %w", err)
	}
	doc.AnalysisResult = result
	doc.Status = domain.DocumentAnalyzed
	return doc, nil
}

// ListDocuments returns the user's library, newest upload first.
func (a *App) ListDocuments(ctx context.Context, userID string) ([]domain.Document, error) {
	docs, err := a.store.ListDocumentsByOwner(userID, 0)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// DocumentDownloadURL returns a short-lived presigned URL for the stored
// original file.
func (a *App) DocumentDownloadURL(ctx context.Context, userID, documentID string) (string, error) {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return "", fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return "", ErrDocumentNotFound
	}
	if doc.UserID != userID {
		return "", ErrForbidden
	}
	if a.objects == nil || doc.StorageKey == "" {
		return "", ErrNoDownload
	}
	url, err := a.objects.PresignGet(ctx, doc.StorageKey, 15*time.Minute)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}
