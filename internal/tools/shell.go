package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultExecTimeout = 60 * time.Second

// ExecTool runs shell commands in the workspace. The subprocess is killed
// when its timeout expires or the request is cancelled.
type ExecTool struct {
	workingDir string
	timeout    time.Duration
}

// NewExecTool creates the tool. timeout of 0 uses the default.
func NewExecTool(workingDir string, timeout time.Duration) *ExecTool {
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	return &ExecTool{workingDir: workingDir, timeout: timeout}
}

func (t *ExecTool) Name() string { return "exec" }

func (t *ExecTool) Description() string {
	return "Execute a shell command and return its combined output. Long-running commands are killed after a timeout."
}

func (t *ExecTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds (optional)",
			},
		},
		"required": []string{"command"},
	})
}

func (t *ExecTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	command, err := requireString(params, "command")
	if err != nil {
		return "", err
	}

	timeout := t.timeout
	if secs := intParam(params, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = t.workingDir
	output, err := cmd.CombinedOutput()

	result := strings.TrimSpace(string(output))
	if execCtx.Err() == context.DeadlineExceeded {
		if result != "" {
			return "", fmt.Errorf("command timed out after %s\npartial output:\n%s", timeout, result)
		}
		return "", fmt.Errorf("command timed out after %s", timeout)
	}
	if err != nil {
		if result != "" {
			return fmt.Sprintf("command failed (%v):\n%s", err, result), nil
		}
		return "", fmt.Errorf("command failed: %w", err)
	}
	if result == "" {
		return "(no output)", nil
	}
	return result, nil
}
