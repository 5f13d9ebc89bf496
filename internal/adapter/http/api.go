package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/microsense/internal/dashboard"
	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/couchcryptid/microsense/internal/form"
	"github.com/couchcryptid/microsense/internal/mapview"
	"github.com/couchcryptid/microsense/internal/session"
)

const offlineAPIBody = "Offline - API unavailable"

// Feed is the synchronized report view.
type Feed interface {
	Reports() []domain.Report
	UserReports() []domain.Report
	Status() string
	LastSync() time.Time
}

// Sessions reports the signed-in user.
type Sessions interface {
	Current() (domain.Session, bool)
}

// Markers describes the map.
type Markers interface {
	Snapshot(ctx context.Context) (mapview.Snapshot, error)
}

// Form is the submission form engine.
type Form interface {
	Snapshot() form.View
	SetCondition(c domain.Condition) error
	SetSlider(axis form.Axis, v int)
	SetOdor(odor string) error
	SetNote(note string)
	DetectLocation(ctx context.Context)
	ApplyPosition(ctx context.Context, pos form.Position, err error)
	Submit(ctx context.Context) error
}

// Auth signs users in and out.
type Auth interface {
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
}

// Script serves the cached map provider bootstrap script.
type Script interface {
	Get(ctx context.Context) ([]byte, error)
}

// API holds the collaborators behind the JSON routes. Nil fields leave their
// routes unmounted.
type API struct {
	Feed              Feed
	Sessions          Sessions
	Auth              Auth
	Markers           Markers
	Form              Form
	Script            Script
	DashboardLocation *time.Location

	logger *slog.Logger
}

func (a *API) register(mux *http.ServeMux) {
	if a.Feed != nil {
		mux.HandleFunc("GET /api/reports", a.handleReports)
		mux.HandleFunc("GET /api/dashboard", a.handleDashboard)
		mux.HandleFunc("GET /api/status", a.handleStatus)
		if a.Sessions != nil {
			mux.HandleFunc("GET /api/reports/mine", a.handleUserReports)
		}
	}
	if a.Auth != nil {
		mux.HandleFunc("POST /api/auth/signin", a.handleSignIn)
		mux.HandleFunc("POST /api/auth/signup", a.handleSignUp)
		mux.HandleFunc("POST /api/auth/signout", a.handleSignOut)
	}
	if a.Markers != nil {
		mux.HandleFunc("GET /api/markers", a.handleMarkers)
	}
	if a.Form != nil {
		mux.HandleFunc("GET /api/form", a.handleForm)
		mux.HandleFunc("POST /api/form/condition", a.handleCondition)
		mux.HandleFunc("POST /api/form/location", a.handleLocation)
		mux.HandleFunc("POST /api/form/submit", a.handleSubmit)
	}
	if a.Script != nil {
		mux.HandleFunc("GET /maps.js", a.handleScript)
	}
}

type reportsResponse struct {
	Status   string          `json:"status"`
	LastSync *time.Time      `json:"last_sync,omitempty"`
	Reports  []domain.Report `json:"reports"`
}

// signedIn writes a 401 and returns false when Sessions is set and nobody is
// signed in. Content routes sit behind this gate.
func (a *API) signedIn(w http.ResponseWriter) bool {
	if a.Sessions == nil {
		return true
	}
	if _, ok := a.Sessions.Current(); !ok {
		writeError(w, http.StatusUnauthorized, domain.ErrAuthRequired)
		return false
	}
	return true
}

func (a *API) handleReports(w http.ResponseWriter, _ *http.Request) {
	if !a.signedIn(w) {
		return
	}
	resp := reportsResponse{Status: a.Feed.Status(), Reports: nonNil(a.Feed.Reports())}
	if t := a.Feed.LastSync(); !t.IsZero() {
		resp.LastSync = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleUserReports(w http.ResponseWriter, _ *http.Request) {
	if !a.signedIn(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": nonNil(a.Feed.UserReports())})
}

func (a *API) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	if !a.signedIn(w) {
		return
	}
	writeJSON(w, http.StatusOK, dashboard.Compute(domain.Now(), a.DashboardLocation, a.Feed.Reports()))
}

type statusResponse struct {
	Status   string `json:"status"`
	SignedIn bool   `json:"signed_in"`
	Email    string `json:"email,omitempty"`
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Status: a.Feed.Status()}
	if a.Sessions != nil {
		if s, ok := a.Sessions.Current(); ok {
			resp.SignedIn = true
			resp.Email = s.Email
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.Auth.SignIn(r.Context(), req.Email, req.Password); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"signed_in": true})
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := a.Auth.SignUp(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]bool{"signed_in": true})
	case errors.Is(err, domain.ErrConfirmationRequired):
		writeJSON(w, http.StatusAccepted, map[string]any{"signed_in": false, "message": err.Error()})
	default:
		writeAuthError(w, err)
	}
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := a.Auth.SignOut(r.Context()); err != nil {
		// The local session is already gone.
		a.logger.Warn("remote sign-out failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"signed_in": false})
}

// writeAuthError surfaces the backend's message verbatim.
func writeAuthError(w http.ResponseWriter, err error) {
	var authErr *domain.AuthError
	switch {
	case errors.As(err, &authErr):
		status := authErr.Status
		if status < 400 || status > 499 {
			status = http.StatusUnauthorized
		}
		writeError(w, status, err)
	case errors.Is(err, session.ErrEmailRequired), errors.Is(err, session.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func (a *API) handleMarkers(w http.ResponseWriter, r *http.Request) {
	if !a.signedIn(w) {
		return
	}
	snap, err := a.Markers.Snapshot(r.Context())
	if err != nil {
		a.logger.Warn("map snapshot failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleForm(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Form.Snapshot())
}

type conditionRequest struct {
	Condition domain.Condition `json:"condition"`
}

func (a *API) handleCondition(w http.ResponseWriter, r *http.Request) {
	var req conditionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.Form.SetCondition(req.Condition); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Form.Snapshot())
}

// locationRequest carries either a fix or a geolocation failure. With
// neither, the server-side locator is asked.
type locationRequest struct {
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *API) handleLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch {
	case req.Error != nil:
		a.Form.ApplyPosition(r.Context(), form.Position{}, &domain.GeolocationError{
			Code:    req.Error.Code,
			Message: req.Error.Message,
		})
	case req.Lat != nil && req.Lng != nil:
		a.Form.ApplyPosition(r.Context(), form.Position{Lat: *req.Lat, Lng: *req.Lng}, nil)
	default:
		a.Form.DetectLocation(r.Context())
	}
	writeJSON(w, http.StatusOK, a.Form.Snapshot())
}

type submitRequest struct {
	Sliders map[form.Axis]int `json:"sliders"`
	Odor    *string           `json:"odor"`
	Note    *string           `json:"note"`
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for axis, v := range req.Sliders {
		a.Form.SetSlider(axis, v)
	}
	if req.Odor != nil {
		if err := a.Form.SetOdor(*req.Odor); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Note != nil {
		a.Form.SetNote(*req.Note)
	}

	err := a.Form.Submit(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, a.Form.Snapshot())
	case errors.Is(err, form.ErrLocationRequired):
		writeJSON(w, http.StatusUnprocessableEntity, a.Form.Snapshot())
	case errors.Is(err, domain.ErrAuthRequired):
		writeJSON(w, http.StatusUnauthorized, a.Form.Snapshot())
	case errors.Is(err, form.ErrSubmitInProgress):
		writeError(w, http.StatusConflict, err)
	default:
		writeJSON(w, http.StatusBadGateway, a.Form.Snapshot())
	}
}

func (a *API) handleScript(w http.ResponseWriter, r *http.Request) {
	body, err := a.Script.Get(r.Context())
	if err != nil {
		a.logger.Warn("maps script unavailable", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(offlineAPIBody))
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(body)
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func nonNil(reports []domain.Report) []domain.Report {
	if reports == nil {
		return []domain.Report{}
	}
	return reports
}
