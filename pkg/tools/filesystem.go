package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// ReadFileTool reads file contents.
type ReadFileTool struct{}

func (t *ReadFileTool) Name() string {
	return "read_file"
}

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file at the given path."
}

func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "The file path to read",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(args map[string]interface{}) (*models.ToolResult, error) {
	path, ok := args["path"].(string)
	if !ok {
		return models.NewErrorResult("path must be a string"), nil
	}

	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return models.NewErrorResult(fmt.Sprintf("File not found: %s", path)), nil
		}
		if os.IsPermission(err) {
			return models.NewErrorResult(fmt.Sprintf("Permission denied: %s", path)), nil
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}

	return models.NewToolResult(string(data), ""), nil
}

// WriteFileTool writes content to a file.
type WriteFileTool struct{}

func (t *WriteFileTool) Name() string {
	return "write_file"
}

func (t *WriteFileTool) Description() string {
	return "Write content to a file at the given path. Creates parent directories if needed."
}

func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "The file path to write to",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The content to write",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(args map[string]interface{}) (*models.ToolResult, error) {
	path, ok := args["path"].(string)
	if !ok {
		return models.NewErrorResult("path must be a string"), nil
	}
	content, ok := args["content"].(string)
	if !ok {
		return models.NewErrorResult("content must be a string"), nil
	}

	expanded := expandPath(path)
	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}

	if err := os.WriteFile(expanded, []byte(content), 0644); err != nil {
		if os.IsPermission(err) {
			return models.NewErrorResult(fmt.Sprintf("Permission denied: %s", path)), nil
		}
		return nil, fmt.Errorf("writing file: %w", err)
	}

	return models.NewToolResult(fmt.Sprintf("Wrote %d bytes to %s", len(content), path), ""), nil
}

// EditFileTool edits a file by replacing text.
type EditFileTool struct{}

func (t *EditFileTool) Name() string {
	return "edit_file"
}

func (t *EditFileTool) Description() string {
	return "Edit a file by replacing old_text with new_text. The old_text must exist exactly in the file."
}

func (t *EditFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "The file path to edit",
			},
			"old_text": map[string]interface{}{
				"type":        "string",
				"description": "The exact text to find and replace",
			},
			"new_text": map[string]interface{}{
				"type":        "string",
				"description": "The text to replace with",
			},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(args map[string]interface{}) (*models.ToolResult, error) {
	path, ok := args["path"].(string)
	if !ok {
		return models.NewErrorResult("path must be a string"), nil
	}
	oldText, ok := args["old_text"].(string)
	if !ok {
		return models.NewErrorResult("old_text must be a string"), nil
	}
	newText, ok := args["new_text"].(string)
	if !ok {
		return models.NewErrorResult("new_text must be a string"), nil
	}

	expanded := expandPath(path)
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return models.NewErrorResult(fmt.Sprintf("File not found: %s", path)), nil
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}

	content := string(data)
	if !strings.Contains(content, oldText) {
		return models.NewErrorResult("old_text not found in file. Make sure it matches exactly."), nil
	}

	count := strings.Count(content, oldText)
	if count > 1 {
		return models.NewErrorResult(fmt.Sprintf("old_text appears %d times. Provide more context to make it unique.", count)), nil
	}

	newContent := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(expanded, []byte(newContent), 0644); err != nil {
		return nil, fmt.Errorf("writing file: %w", err)
	}

	return models.NewToolResult(fmt.Sprintf("Edited %s", path), ""), nil
}

// AppendFileTool appends content to a file.
type AppendFileTool struct{}

func (t *AppendFileTool) Name() string {
	return "append_file"
}

func (t *AppendFileTool) Description() string {
	return "Append content to the end of a file. Creates the file if it doesn't exist."
}

func (t *AppendFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "The file path to append to",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The content to append",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *AppendFileTool) Execute(args map[string]interface{}) (*models.ToolResult, error) {
	path, ok := args["path"].(string)
	if !ok {
		return models.NewErrorResult("path must be a string"), nil
	}
	content, ok := args["content"].(string)
	if !ok {
		return models.NewErrorResult("content must be a string"), nil
	}

	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	expanded := expandPath(path)
	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}

	f, err := os.OpenFile(expanded, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsPermission(err) {
			return models.NewErrorResult(fmt.Sprintf("Permission denied: %s", path)), nil
		}
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		return nil, fmt.Errorf("writing to file: %w", err)
	}

	return models.NewToolResult(fmt.Sprintf("Appended to %s", path), ""), nil
}

// ListDirTool lists directory contents.
type ListDirTool struct{}

func (t *ListDirTool) Name() string {
	return "list_dir"
}

func (t *ListDirTool) Description() string {
	return "List the contents of a directory."
}

func (t *ListDirTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "The directory path to list",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ListDirTool) Execute(args map[string]interface{}) (*models.ToolResult, error) {
	path, ok := args["path"].(string)
	if !ok {
		return models.NewErrorResult("path must be a string"), nil
	}

	entries, err := os.ReadDir(expandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return models.NewErrorResult(fmt.Sprintf("Directory not found: %s", path)), nil
		}
		return nil, fmt.Errorf("listing directory: %w", err)
	}

	var items []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		items = append(items, name)
	}
	sort.Strings(items)

	if len(items) == 0 {
		return models.NewToolResult(fmt.Sprintf("Directory %s is empty", path), ""), nil
	}

	return models.NewToolResult(strings.Join(items, "\n"), ""), nil
}
