package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/courier-ai/courier/internal/agent"
	"github.com/courier-ai/courier/internal/storage"
)

// requestScope tracks the SSE request identity used to build object keys
// of the form session_id/request_id/filename.
type requestScope struct {
	mu        sync.Mutex
	sessionID string
	requestID string
}

// SetRequestScope installs the current request identity.
func (s *requestScope) SetRequestScope(sessionID, requestID string) {
	s.mu.Lock()
	s.sessionID = sessionID
	s.requestID = requestID
	s.mu.Unlock()
}

func (s *requestScope) objectKey(filename string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID == "" {
		return filepath.Join("adhoc", filename)
	}
	return filepath.Join(s.sessionID, s.requestID, filename)
}

// UploadFileTool uploads a local file to the object store.
type UploadFileTool struct {
	requestScope
	store *storage.ObjectStore
}

func NewUploadFileTool(store *storage.ObjectStore) *UploadFileTool {
	return &UploadFileTool{store: store}
}

func (t *UploadFileTool) Name() string { return "storage_upload_file" }

func (t *UploadFileTool) Description() string {
	return "Upload a local file to object storage and return its public URL."
}

func (t *UploadFileTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Local path of the file to upload",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "Target filename (defaults to the original name)",
			},
		},
		"required": []string{"file_path"},
	})
}

func (t *UploadFileTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	path, err := requireString(params, "file_path")
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	filename := stringParam(params, "filename")
	if filename == "" {
		filename = filepath.Base(path)
	}

	key := t.objectKey(filename)
	url, err := t.store.UploadBytes(ctx, key, data, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("File uploaded.\nURL: %s\nObject Key: %s", url, key), nil
}

// UploadTextTool uploads text content (HTML, JSON, Markdown, ...) to the
// object store. The content type is derived from the filename extension.
type UploadTextTool struct {
	requestScope
	store *storage.ObjectStore
}

func NewUploadTextTool(store *storage.ObjectStore) *UploadTextTool {
	return &UploadTextTool{store: store}
}

func (t *UploadTextTool) Name() string { return "storage_upload_text" }

func (t *UploadTextTool) Description() string {
	return "Upload text content to object storage and return its public URL. The filename extension determines the content type."
}

func (t *UploadTextTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "Text content to upload",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "Target filename with extension (e.g. report.html)",
			},
			"content_type": map[string]any{
				"type":        "string",
				"description": "Override content type (optional)",
			},
		},
		"required": []string{"content", "filename"},
	})
}

func (t *UploadTextTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	content, err := requireString(params, "content")
	if err != nil {
		return "", err
	}
	filename, err := requireString(params, "filename")
	if err != nil {
		return "", err
	}

	key := t.objectKey(filename)
	contentType := stringParam(params, "content_type")
	url, err := t.store.UploadBytes(ctx, key, []byte(content), contentType)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = storage.GuessContentType(filename)
	}
	return fmt.Sprintf("Text uploaded.\nURL: %s\nObject Key: %s\nContent-Type: %s", url, key, contentType), nil
}

func init() {
	agent.RegisterFactory("storage_upload_file", agent.ToolFactory{
		Requires: []string{"object_store"},
		Build: func(deps map[string]any) agent.Tool {
			store, ok := deps["object_store"].(*storage.ObjectStore)
			if !ok {
				return nil
			}
			return NewUploadFileTool(store)
		},
	})
	agent.RegisterFactory("storage_upload_text", agent.ToolFactory{
		Requires: []string{"object_store"},
		Build: func(deps map[string]any) agent.Tool {
			store, ok := deps["object_store"].(*storage.ObjectStore)
			if !ok {
				return nil
			}
			return NewUploadTextTool(store)
		},
	})
}
