package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/microsense/internal/adapter/http"
	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/couchcryptid/microsense/internal/form"
	"github.com/couchcryptid/microsense/internal/mapview"
	"github.com/couchcryptid/microsense/internal/session"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockFeed struct {
	reports []domain.Report
	user    []domain.Report
	status  string
	last    time.Time
}

func (m *mockFeed) Reports() []domain.Report     { return m.reports }
func (m *mockFeed) UserReports() []domain.Report { return m.user }
func (m *mockFeed) Status() string               { return m.status }
func (m *mockFeed) LastSync() time.Time          { return m.last }

type mockSessions struct {
	session *domain.Session
}

func (m *mockSessions) Current() (domain.Session, bool) {
	if m.session == nil {
		return domain.Session{}, false
	}
	return *m.session, true
}

type mockMarkers struct {
	snap mapview.Snapshot
	err  error
}

func (m *mockMarkers) Snapshot(_ context.Context) (mapview.Snapshot, error) { return m.snap, m.err }

type mockScript struct {
	body []byte
	err  error
}

func (m *mockScript) Get(_ context.Context) ([]byte, error) { return m.body, m.err }

type mockWriter struct {
	subs []domain.Submission
	err  error
}

func (m *mockWriter) SubmitReport(_ context.Context, sub domain.Submission) error {
	if m.err != nil {
		return m.err
	}
	m.subs = append(m.subs, sub)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(readyErr error, api httpadapter.API) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, api, nil, discardLogger())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	rec := do(t, newTestServer(nil, httpadapter.API{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := do(t, newTestServer(nil, httpadapter.API{}), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := do(t, newTestServer(fmt.Errorf("not ready yet"), httpadapter.API{}), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(nil, httpadapter.API{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnmountedRoutesReturn404(t *testing.T) {
	rec := do(t, newTestServer(nil, httpadapter.API{}), http.MethodGet, "/api/reports", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- reports ---

func TestReports(t *testing.T) {
	last := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	feed := &mockFeed{
		reports: []domain.Report{{ID: 3, Condition: domain.Rainy, Location: "Matina"}},
		status:  "1 reports loaded",
		last:    last,
	}
	srv := newTestServer(nil, httpadapter.API{Feed: feed})

	rec := do(t, srv, http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status   string          `json:"status"`
		LastSync time.Time       `json:"last_sync"`
		Reports  []domain.Report `json:"reports"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "1 reports loaded", body.Status)
	assert.True(t, last.Equal(body.LastSync))
	require.Len(t, body.Reports, 1)
	assert.Equal(t, "Matina", body.Reports[0].Location)
}

func TestReports_EmptyListIsArray(t *testing.T) {
	srv := newTestServer(nil, httpadapter.API{Feed: &mockFeed{status: "Loading reports..."}})
	rec := do(t, srv, http.MethodGet, "/api/reports", "")
	assert.Contains(t, rec.Body.String(), `"reports":[]`)
	assert.NotContains(t, rec.Body.String(), "last_sync")
}

func TestUserReports_RequiresSession(t *testing.T) {
	feed := &mockFeed{user: []domain.Report{{ID: 1}}}
	sessions := &mockSessions{}
	srv := newTestServer(nil, httpadapter.API{Feed: feed, Sessions: sessions})

	rec := do(t, srv, http.MethodGet, "/api/reports/mine", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	sessions.session = &domain.Session{UserID: "u1", Email: "a@b.c"}
	rec = do(t, srv, http.MethodGet, "/api/reports/mine", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":1`)
}

func TestContentRoutes_RequireSession(t *testing.T) {
	feed := &mockFeed{reports: []domain.Report{{ID: 1, Condition: domain.Sunny, Location: "Toril"}}}
	sessions := &mockSessions{}
	srv := newTestServer(nil, httpadapter.API{
		Feed:              feed,
		Sessions:          sessions,
		Markers:           &mockMarkers{snap: mapview.Snapshot{Markers: []mapview.MarkerView{{ID: 1}}}},
		DashboardLocation: time.UTC,
	})

	for _, path := range []string{"/api/reports", "/api/dashboard", "/api/markers"} {
		rec := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "Toril", path)
	}
	rec := do(t, srv, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, rec.Code, "status stays public for the sign-in screen")

	sessions.session = &domain.Session{UserID: "u1"}
	for _, path := range []string{"/api/reports", "/api/dashboard", "/api/markers"} {
		rec := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestStatus(t *testing.T) {
	sessions := &mockSessions{session: &domain.Session{UserID: "u1", Email: "juan@example.com"}}
	srv := newTestServer(nil, httpadapter.API{Feed: &mockFeed{status: "Failed to load reports"}, Sessions: sessions})

	rec := do(t, srv, http.MethodGet, "/api/status", "")
	assert.JSONEq(t, `{"status":"Failed to load reports","signed_in":true,"email":"juan@example.com"}`, rec.Body.String())
}

func TestDashboard(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	feed := &mockFeed{reports: []domain.Report{
		{ID: 1, Condition: domain.Storm, CreatedAt: now.Add(-time.Hour)},
		{ID: 2, Condition: domain.Storm, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: 3, Condition: domain.Sunny, CreatedAt: now.Add(-3 * time.Hour)},
	}}
	srv := newTestServer(nil, httpadapter.API{Feed: feed, DashboardLocation: time.UTC})

	rec := do(t, srv, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		TotalReports int `json:"totalReports"`
		Severe       int `json:"severeWeatherCount"`
		Distribution []struct {
			Name       string `json:"name"`
			Percentage string `json:"percentage"`
		} `json:"distribution"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 3, body.TotalReports)
	assert.Equal(t, 2, body.Severe)
	require.Len(t, body.Distribution, 2)
	assert.Equal(t, "66.7", body.Distribution[1].Percentage)
}

// --- markers and script ---

func TestMarkers(t *testing.T) {
	snap := mapview.Snapshot{Center: mapview.DefaultCenter, Zoom: mapview.DefaultZoom,
		Markers: []mapview.MarkerView{{ID: 5, Glyph: "🌊"}}}
	srv := newTestServer(nil, httpadapter.API{Markers: &mockMarkers{snap: snap}})

	rec := do(t, srv, http.MethodGet, "/api/markers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got mapview.Snapshot
	decodeBody(t, rec, &got)
	assert.Equal(t, snap, got)
}

func TestMarkers_WidgetUnavailable(t *testing.T) {
	srv := newTestServer(nil, httpadapter.API{Markers: &mockMarkers{err: errors.New("script blocked")}})
	rec := do(t, srv, http.MethodGet, "/api/markers", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMapsScript(t *testing.T) {
	srv := newTestServer(nil, httpadapter.API{Script: &mockScript{body: []byte("init();")}})
	rec := do(t, srv, http.MethodGet, "/maps.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
	assert.Equal(t, "init();", rec.Body.String())
}

func TestMapsScript_UpstreamDown(t *testing.T) {
	srv := newTestServer(nil, httpadapter.API{Script: &mockScript{err: errors.New("dial tcp: timeout")}})
	rec := do(t, srv, http.MethodGet, "/maps.js", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Offline - API unavailable", rec.Body.String())
}

// --- form ---

func newFormServer(w *mockWriter, locator form.Locator) (*httpadapter.Server, *form.Engine) {
	engine := form.New(form.Deps{Writer: w, Locator: locator, Logger: discardLogger()})
	return newTestServer(nil, httpadapter.API{Form: engine}), engine
}

func TestForm_ConditionSwitch(t *testing.T) {
	srv, _ := newFormServer(&mockWriter{}, nil)

	rec := do(t, srv, http.MethodPost, "/api/form/condition", `{"condition":"Storm"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var view form.View
	decodeBody(t, rec, &view)
	assert.Equal(t, domain.Storm, view.Condition)

	rec = do(t, srv, http.MethodPost, "/api/form/condition", `{"condition":"Hail"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/form/condition", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForm_SubmitWithoutLocationRejected(t *testing.T) {
	w := &mockWriter{}
	srv, _ := newFormServer(w, nil)

	rec := do(t, srv, http.MethodPost, "/api/form/submit", `{"note":"hi"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var view form.View
	decodeBody(t, rec, &view)
	assert.Equal(t, form.MsgEnableLocation, view.Error)
	assert.Empty(t, w.subs)
}

func TestForm_LocationDeniedThenSubmit(t *testing.T) {
	w := &mockWriter{}
	srv, _ := newFormServer(w, nil)

	rec := do(t, srv, http.MethodPost, "/api/form/location", `{"error":{"code":1,"message":"User denied"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var view form.View
	decodeBody(t, rec, &view)
	assert.Equal(t, form.LocationFailed, view.LocationStatus)
	assert.Equal(t, "Davao City", view.LocationLabel)

	rec = do(t, srv, http.MethodPost, "/api/form/submit", `{"note":"cloudburst","sliders":{"intensity":80}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, w.subs, 1)
	assert.InDelta(t, form.DefaultPosition.Lat, w.subs[0].Lat, 1e-9)
	require.NotNil(t, w.subs[0].Note)
	assert.Equal(t, "cloudburst", *w.subs[0].Note)

	decodeBody(t, rec, &view)
	assert.Empty(t, view.Note, "note is cleared after a successful post")
	assert.Equal(t, 80, view.Values[form.Intensity])
}

func TestForm_PushedPosition(t *testing.T) {
	srv, _ := newFormServer(&mockWriter{}, nil)

	rec := do(t, srv, http.MethodPost, "/api/form/location", `{"lat":7.1,"lng":125.5}`)
	var view form.View
	decodeBody(t, rec, &view)
	assert.Equal(t, form.LocationReady, view.LocationStatus)
	assert.Equal(t, "7.1000, 125.5000", view.LocationLabel)
}

func TestForm_DetectWithServerLocator(t *testing.T) {
	srv, _ := newFormServer(&mockWriter{}, form.StaticLocator{Lat: 7.2, Lng: 125.4})

	rec := do(t, srv, http.MethodPost, "/api/form/location", "")
	var view form.View
	decodeBody(t, rec, &view)
	assert.InDelta(t, 7.2, view.Lat, 1e-9)
}

func TestForm_SubmitAuthRequired(t *testing.T) {
	w := &mockWriter{err: domain.ErrAuthRequired}
	srv, _ := newFormServer(w, form.StaticLocator{Lat: 7.2, Lng: 125.4})
	do(t, srv, http.MethodPost, "/api/form/location", "")

	rec := do(t, srv, http.MethodPost, "/api/form/submit", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var view form.View
	decodeBody(t, rec, &view)
	assert.Equal(t, form.MsgLoginRequired, view.Error)
}

func TestForm_SubmitBackendFailure(t *testing.T) {
	w := &mockWriter{err: &domain.BackendError{Status: 500, StatusText: "Internal Server Error", Body: "boom"}}
	srv, _ := newFormServer(w, form.StaticLocator{Lat: 7.2, Lng: 125.4})
	do(t, srv, http.MethodPost, "/api/form/location", "")

	rec := do(t, srv, http.MethodPost, "/api/form/submit", `{"note":"keep me"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var view form.View
	decodeBody(t, rec, &view)
	assert.Equal(t, "keep me", view.Note)
}

// --- auth ---

type mockAuth struct {
	signInErr  error
	signUpErr  error
	signOutErr error
	signedOut  bool
}

func (m *mockAuth) SignIn(context.Context, string, string) error { return m.signInErr }
func (m *mockAuth) SignUp(context.Context, string, string) error { return m.signUpErr }
func (m *mockAuth) SignOut(context.Context) error {
	m.signedOut = true
	return m.signOutErr
}

func TestAuth_SignIn(t *testing.T) {
	auth := &mockAuth{}
	srv := newTestServer(nil, httpadapter.API{Auth: auth})

	rec := do(t, srv, http.MethodPost, "/api/auth/signin", `{"email":"a@b.c","password":"secret1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	auth.signInErr = &domain.AuthError{Status: 400, Message: "Invalid login credentials"}
	rec = do(t, srv, http.MethodPost, "/api/auth/signin", `{"email":"a@b.c","password":"wrong12"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid login credentials"}`, rec.Body.String())
}

func TestAuth_SignInValidation(t *testing.T) {
	auth := &mockAuth{signInErr: session.ErrPasswordTooShort}
	srv := newTestServer(nil, httpadapter.API{Auth: auth})

	rec := do(t, srv, http.MethodPost, "/api/auth/signin", `{"email":"a@b.c","password":"123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	auth.signInErr = errors.New("dial tcp: connection refused")
	rec = do(t, srv, http.MethodPost, "/api/auth/signin", `{"email":"a@b.c","password":"secret1"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAuth_SignUpNeedsConfirmation(t *testing.T) {
	srv := newTestServer(nil, httpadapter.API{Auth: &mockAuth{signUpErr: domain.ErrConfirmationRequired}})

	rec := do(t, srv, http.MethodPost, "/api/auth/signup", `{"email":"new@b.c","password":"secret1"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "confirm your account")
}

func TestAuth_SignOutAlwaysSucceedsLocally(t *testing.T) {
	auth := &mockAuth{signOutErr: errors.New("network down")}
	srv := newTestServer(nil, httpadapter.API{Auth: auth})

	rec := do(t, srv, http.MethodPost, "/api/auth/signout", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, auth.signedOut)
}
