package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/microsense/internal/domain"
)

// AuthClient calls the GoTrue email/password endpoints.
type AuthClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// NewAuthClient creates an auth client for the backend at baseURL.
func NewAuthClient(baseURL, anonKey string, timeout time.Duration) *AuthClient {
	return &AuthClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type user struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *user  `json:"user"`

	// Present when sign-up returns the bare user (confirmation pending).
	ID    string `json:"id"`
	Email string `json:"email"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// SignInWithPassword exchanges email and password for a session.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (domain.Session, error) {
	var tr tokenResponse
	if err := a.post(ctx, "/auth/v1/token?grant_type=password", "", credentials{email, password}, &tr); err != nil {
		return domain.Session{}, err
	}
	return tr.session(), nil
}

// SignUp registers an account. The returned session has no access token when
// the backend requires email confirmation first.
func (a *AuthClient) SignUp(ctx context.Context, email, password string) (domain.Session, error) {
	var tr tokenResponse
	if err := a.post(ctx, "/auth/v1/signup", "", credentials{email, password}, &tr); err != nil {
		return domain.Session{}, err
	}
	return tr.session(), nil
}

// Refresh exchanges a refresh token for a new session.
func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (domain.Session, error) {
	var tr tokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := a.post(ctx, "/auth/v1/token?grant_type=refresh_token", "", body, &tr); err != nil {
		return domain.Session{}, err
	}
	return tr.session(), nil
}

// SignOut revokes the access token on the backend.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	return a.post(ctx, "/auth/v1/logout", accessToken, nil, nil)
}

func (tr tokenResponse) session() domain.Session {
	s := domain.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		UserID:       tr.ID,
		Email:        tr.Email,
	}
	if tr.User != nil {
		s.UserID = tr.User.ID
		s.Email = tr.User.Email
	}
	switch {
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0).UTC()
	case tr.ExpiresIn > 0:
		s.ExpiresAt = domain.Now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC()
	}
	return s
}

func (a *AuthClient) post(ctx context.Context, path, accessToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	token := a.anonKey
	if accessToken != "" {
		token = accessToken
	}
	req.Header.Set("apikey", a.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return &domain.AuthError{Status: resp.StatusCode, Message: authMessage(text)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	return nil
}

// authMessage extracts the human-readable message from a GoTrue error body.
func authMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		for _, m := range []string{er.ErrorDescription, er.Msg, er.Message, er.Error} {
			if m != "" {
				return m
			}
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return "An error occurred"
}
