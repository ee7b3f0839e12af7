package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const maxTrackingContent = 20000

// TrackingPageTool fetches a courier tracking page and extracts its main
// content as clean text. It is registered as a dynamic plugin, so the model
// may address it as "fetch_tracking_page" as well.
type TrackingPageTool struct {
	UserAgent string
	Client    *http.Client
}

func NewTrackingPageTool() *TrackingPageTool {
	return &TrackingPageTool{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *TrackingPageTool) Describe() Descriptor {
	return Descriptor{
		Name:        "Fetch Tracking Page",
		Description: "Fetch a courier tracking page URL and return its readable text (title, excerpt, content).",
		Risk:        RiskLow,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The full tracking URL, e.g. https://courier.example/track?awb=123",
				},
			},
			"required": []string{"url"},
		},
	}
}

func (s *TrackingPageTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	raw := stringArg(args, "url")
	if raw == "" {
		return Errorf("url is required"), nil
	}
	parsedURL, err := url.Parse(raw)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return Errorf("invalid url %q", raw), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		res := Errorf("failed to fetch %s: %v", raw, err)
		res["retryable"] = true
		return res, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		res := Errorf("failed to fetch %s: status code %d", raw, resp.StatusCode)
		res["retryable"] = resp.StatusCode >= 500
		return res, nil
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return Errorf("failed to parse page: %v", err), nil
	}

	content, truncated := truncateText(bluemonday.StrictPolicy().Sanitize(article.TextContent), maxTrackingContent)

	return Result{
		"type":      "tracking_page",
		"url":       raw,
		"title":     article.Title,
		"excerpt":   article.Excerpt,
		"content":   content,
		"truncated": truncated,
	}, nil
}

// truncateText cuts s to at most limit bytes without splitting a rune.
func truncateText(s string, limit int) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n], true
}
