package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/courier-ai/courier/internal/agent"
)

// WeatherTool queries wttr.in, which needs no API key.
type WeatherTool struct {
	client *http.Client
}

func NewWeatherTool() *WeatherTool {
	return &WeatherTool{client: &http.Client{Timeout: 10 * time.Second}}
}

func (t *WeatherTool) Name() string { return "weather" }

func (t *WeatherTool) Description() string {
	return "Get current weather and forecasts for a location. Supports city names, airport codes, and coordinates (lat,lon)."
}

func (t *WeatherTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{
				"type":        "string",
				"description": "City name, airport code, or coordinates",
			},
			"format": map[string]any{
				"type":        "string",
				"enum":        []string{"compact", "full"},
				"description": "Output format (default compact)",
			},
			"units": map[string]any{
				"type":        "string",
				"enum":        []string{"metric", "imperial"},
				"description": "Temperature units (default metric)",
			},
		},
		"required": []string{"location"},
	})
}

func (t *WeatherTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	location, err := requireString(params, "location")
	if err != nil {
		return "", err
	}

	query := []string{}
	if stringParam(params, "format") == "full" {
		query = append(query, "T")
	} else {
		query = append(query, "format=3")
	}
	if stringParam(params, "units") == "imperial" {
		query = append(query, "u")
	} else {
		query = append(query, "m")
	}

	endpoint := fmt.Sprintf("https://wttr.in/%s?%s",
		url.PathEscape(strings.TrimSpace(location)), strings.Join(query, "&"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build weather request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("location not found: %s", location)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read weather response: %w", err)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", fmt.Errorf("no weather data returned for %s", location)
	}
	return text, nil
}

func init() {
	agent.RegisterFactory("weather", agent.ToolFactory{
		Build: func(deps map[string]any) agent.Tool {
			return NewWeatherTool()
		},
	})
}
