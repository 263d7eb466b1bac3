// Package tools contains the built-in agent tools: filesystem access,
// shell execution, web search and fetch, messaging, subagent spawning,
// cron management, and object-store uploads.
package tools

import (
	"encoding/json"
	"fmt"
)

// mustSchema marshals a schema literal, falling back to a permissive
// object schema on error.
func mustSchema(schema map[string]any) json.RawMessage {
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func boolParam(params map[string]any, key string, fallback bool) bool {
	v, ok := params[key].(bool)
	if !ok {
		return fallback
	}
	return v
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func requireString(params map[string]any, key string) (string, error) {
	v := stringParam(params, key)
	if v == "" {
		return "", fmt.Errorf("%s parameter is required", key)
	}
	return v, nil
}
