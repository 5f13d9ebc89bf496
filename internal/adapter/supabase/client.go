// Package supabase talks to the hosted report backend: the PostgREST
// "reports" table and the GoTrue email/password auth endpoints.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/microsense/internal/domain"
)

const selectColumns = "id,created_at,lat,lng,condition,note,user_id,location"

// SessionSource provides the currently signed-in session, if any.
type SessionSource interface {
	Current() (domain.Session, bool)
}

// Config configures the report repository client.
type Config struct {
	BaseURL      string
	AnonKey      string
	RecentWindow time.Duration
	RecentLimit  int
	UserLimit    int
}

// Client reads and writes weather reports.
type Client struct {
	baseURL      string
	anonKey      string
	httpClient   *http.Client
	sessions     SessionSource
	geocoder     domain.Geocoder
	logger       *slog.Logger
	recentWindow time.Duration
	recentLimit  int
	userLimit    int
}

// NewClient creates a repository client. geocoder may be nil, in which case
// submitted reports are labelled with their coordinates.
func NewClient(cfg Config, sessions SessionSource, geocoder domain.Geocoder, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		anonKey:      cfg.AnonKey,
		httpClient:   &http.Client{},
		sessions:     sessions,
		geocoder:     geocoder,
		logger:       logger,
		recentWindow: cfg.RecentWindow,
		recentLimit:  cfg.RecentLimit,
		userLimit:    cfg.UserLimit,
	}
	if c.recentWindow <= 0 {
		c.recentWindow = 7 * 24 * time.Hour
	}
	if c.recentLimit <= 0 {
		c.recentLimit = 500
	}
	if c.userLimit <= 0 {
		c.userLimit = 100
	}
	return c
}

// LoadRecentReports returns reports created within the recent window, newest first.
func (c *Client) LoadRecentReports(ctx context.Context) ([]domain.Report, error) {
	since := domain.Now().Add(-c.recentWindow).UTC().Format("2006-01-02T15:04:05.000Z")
	path := fmt.Sprintf("/rest/v1/reports?select=%s&created_at=gte.%s&order=created_at.desc&limit=%d",
		selectColumns, url.QueryEscape(since), c.recentLimit)
	reports, err := c.loadReports(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load recent reports: %w", err)
	}
	return reports, nil
}

// LoadReportsForUser returns the user's own reports, newest first, with no time filter.
func (c *Client) LoadReportsForUser(ctx context.Context, userID string) ([]domain.Report, error) {
	path := fmt.Sprintf("/rest/v1/reports?select=%s&user_id=eq.%s&order=created_at.desc&limit=%d",
		selectColumns, url.QueryEscape(userID), c.userLimit)
	reports, err := c.loadReports(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load user reports: %w", err)
	}
	return reports, nil
}

func (c *Client) loadReports(ctx context.Context, path string) ([]domain.Report, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reports []domain.Report
	if err := json.NewDecoder(resp.Body).Decode(&reports); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	return domain.WithLocationFallback(reports), nil
}

type insertPayload struct {
	Lat       float64          `json:"lat"`
	Lng       float64          `json:"lng"`
	Condition domain.Condition `json:"condition"`
	Note      *string          `json:"note"`
	Location  string           `json:"location"`
	UserID    string           `json:"user_id"`
}

// SubmitReport stores a new report owned by the signed-in user. The location
// label is resolved once here, falling back to coordinates.
func (c *Client) SubmitReport(ctx context.Context, sub domain.Submission) error {
	session, ok := c.sessions.Current()
	if !ok {
		return domain.ErrAuthRequired
	}

	payload := insertPayload{
		Lat:       sub.Lat,
		Lng:       sub.Lng,
		Condition: sub.Condition,
		Note:      sub.Note,
		Location:  domain.ResolveLocation(ctx, c.geocoder, sub.Lat, sub.Lng, c.logger),
		UserID:    session.UserID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/rest/v1/reports", bytes.NewReader(body),
		map[string]string{"Prefer": "return=minimal"})
	if err != nil {
		return fmt.Errorf("submit report: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Info("report submitted", "condition", sub.Condition, "location", payload.Location)
	return nil
}

// do sends a request with the backend's auth headers. A non-2xx response is
// returned as *domain.BackendError and the body is closed.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token := c.anonKey
	if s, ok := c.sessions.Current(); ok && s.AccessToken != "" {
		token = s.AccessToken
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		text, _ := io.ReadAll(resp.Body)
		return nil, &domain.BackendError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       string(text),
		}
	}
	return resp, nil
}
