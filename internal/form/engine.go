// Package form implements the report submission form: condition-dependent
// slider layouts, device location detection with a city fallback, and the
// submit flow with local validation.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/couchcryptid/microsense/internal/observability"
)

// MaxNoteLength bounds the note in characters.
const MaxNoteLength = 120

// User-facing messages.
const (
	MsgEnableLocation  = "Enable location first so we can place your weather pin."
	MsgLoginRequired   = "You must be logged in to post a weather report"
	MsgPosting         = "Posting update..."
	MsgPosted          = "Posted! Loading updates…"
	MsgPostFailed      = "Failed to post."
	msgDeniedFallback  = "Location access denied. Using Davao City as default."
	msgNoFixFallback   = "Location unavailable. Using Davao City as default."
	msgTimeoutFallback = "Location request timed out. Using Davao City as default."
	msgErrorFallback   = "Location error. Using Davao City as default."
)

var (
	// ErrLocationRequired is returned by Submit when no position has been set.
	ErrLocationRequired = errors.New("location required before submitting")
	// ErrSubmitInProgress is returned when Submit is called while a write is pending.
	ErrSubmitInProgress = errors.New("submission already in progress")
	// ErrUnknownOdor is returned by SetOdor for options outside the active layout.
	ErrUnknownOdor = errors.New("odor not offered for this condition")
)

// LocationStatus tracks device location detection.
type LocationStatus string

const (
	LocationIdle      LocationStatus = "idle"
	LocationDetecting LocationStatus = "detecting"
	LocationReady     LocationStatus = "ready"
	LocationFailed    LocationStatus = "failed"
)

// ReportWriter stores a submission.
type ReportWriter interface {
	SubmitReport(ctx context.Context, sub domain.Submission) error
}

// Refresher reloads the report feed after a successful write.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// StatusSetter receives user-visible status lines.
type StatusSetter interface {
	SetStatus(msg string)
}

// Deps are the collaborators of an Engine. Only Writer is required.
type Deps struct {
	Writer          ReportWriter
	Geocoder        domain.Geocoder
	Locator         Locator
	Refresher       Refresher
	Status          StatusSetter
	Metrics         *observability.Metrics
	Logger          *slog.Logger
	LocatorTimeout  time.Duration
	GeocodeDeadline time.Duration
}

// Engine holds the state of one submission form. It is safe for concurrent use.
type Engine struct {
	deps Deps

	mu         sync.Mutex
	state      state
	locSeq     uint64
	submitting bool
	observers  []func(lat, lng float64)

	bg sync.WaitGroup
}

type state struct {
	condition      domain.Condition
	values         map[Axis]int
	odor           string
	note           string
	lat, lng       float64
	locationLabel  string
	locationStatus LocationStatus
	inlineError    string
}

// New creates an Engine in its initial state.
func New(deps Deps) *Engine {
	if deps.LocatorTimeout <= 0 {
		deps.LocatorTimeout = 5 * time.Second
	}
	if deps.GeocodeDeadline <= 0 {
		deps.GeocodeDeadline = 15 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetricsForTesting()
	}
	e := &Engine{deps: deps}
	e.state = state{locationStatus: LocationIdle}
	e.resetFields()
	return e
}

func (e *Engine) resetFields() {
	e.state.condition = domain.Sunny
	e.state.values = map[Axis]int{
		Intensity:   50,
		Visibility:  70,
		Humidity:    65,
		WindSpeed:   10,
		Temperature: 50,
	}
	e.state.odor = LayoutFor(domain.Sunny).Odors[0]
	e.state.note = ""
}

// OnLocationChange registers fn to be called whenever the form's position changes.
func (e *Engine) OnLocationChange(fn func(lat, lng float64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// SetCondition switches the layout and resets the odor to the layout's first
// option. Raw slider values are left as they are.
func (e *Engine) SetCondition(c domain.Condition) error {
	if !c.Known() {
		return fmt.Errorf("unknown condition %q", c)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.condition = c
	e.state.odor = LayoutFor(c).Odors[0]
	return nil
}

// SetSlider sets a raw axis value, clamped to 0-100.
func (e *Engine) SetSlider(axis Axis, v int) {
	v = min(max(v, 0), 100)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.state.values[axis]; ok {
		e.state.values[axis] = v
	}
}

// SetOdor selects one of the active layout's odor options.
func (e *Engine) SetOdor(odor string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range LayoutFor(e.state.condition).Odors {
		if o == odor {
			e.state.odor = odor
			return nil
		}
	}
	return ErrUnknownOdor
}

// SetNote sets the note, truncated to MaxNoteLength characters.
func (e *Engine) SetNote(note string) {
	if r := []rune(note); len(r) > MaxNoteLength {
		note = string(r[:MaxNoteLength])
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.note = note
}

// Reset restores condition, sliders, odor and note to their initial values.
// The location is kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetFields()
}

// DetectLocation asks the locator for a fresh fix and applies the result.
// Without a locator the default city is used.
func (e *Engine) DetectLocation(ctx context.Context) {
	e.mu.Lock()
	e.state.locationStatus = LocationDetecting
	e.state.inlineError = ""
	e.mu.Unlock()

	if e.deps.Locator == nil {
		e.applyDefault("")
		return
	}

	lctx, cancel := context.WithTimeout(ctx, e.deps.LocatorTimeout)
	defer cancel()
	pos, err := e.deps.Locator.CurrentPosition(lctx, Options{Timeout: e.deps.LocatorTimeout, MaximumAge: 0})
	if err != nil && errors.Is(lctx.Err(), context.DeadlineExceeded) {
		var geoErr *domain.GeolocationError
		if !errors.As(err, &geoErr) {
			err = &domain.GeolocationError{Code: domain.GeolocationTimeout, Message: err.Error()}
		}
	}
	e.ApplyPosition(ctx, pos, err)
}

// ApplyPosition applies a device fix or failure, e.g. one pushed by a browser.
// On success the coordinate label is shown at once and replaced by the
// geocoded name when it arrives.
func (e *Engine) ApplyPosition(ctx context.Context, pos Position, err error) {
	if err != nil {
		e.deps.Logger.Warn("geolocation failed", "error", err)
		e.applyDefault(fallbackMessage(err))
		return
	}

	e.mu.Lock()
	e.locSeq++
	seq := e.locSeq
	e.state.lat, e.state.lng = pos.Lat, pos.Lng
	e.state.locationLabel = domain.LocationFallback(pos.Lat, pos.Lng)
	e.state.locationStatus = LocationReady
	e.state.inlineError = ""
	observers := append([]func(float64, float64){}, e.observers...)
	e.mu.Unlock()

	for _, fn := range observers {
		fn(pos.Lat, pos.Lng)
	}

	if e.deps.Geocoder == nil {
		return
	}
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.deps.GeocodeDeadline)
		defer cancel()
		result, err := e.deps.Geocoder.ReverseGeocode(gctx, pos.Lat, pos.Lng)
		if err != nil || result.PlaceName == "" {
			e.deps.Logger.Debug("keeping coordinate label", "error", err)
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		// A newer detection supersedes this result.
		if e.locSeq == seq {
			e.state.locationLabel = result.PlaceName
		}
	}()
}

func (e *Engine) applyDefault(msg string) {
	e.mu.Lock()
	e.locSeq++
	e.state.lat, e.state.lng = DefaultPosition.Lat, DefaultPosition.Lng
	e.state.locationLabel = DefaultLocationLabel
	e.state.locationStatus = LocationFailed
	e.state.inlineError = msg
	observers := append([]func(float64, float64){}, e.observers...)
	e.mu.Unlock()

	for _, fn := range observers {
		fn(DefaultPosition.Lat, DefaultPosition.Lng)
	}
}

func fallbackMessage(err error) string {
	var geoErr *domain.GeolocationError
	if !errors.As(err, &geoErr) {
		return msgErrorFallback
	}
	switch geoErr.Code {
	case domain.GeolocationPermissionDenied:
		return msgDeniedFallback
	case domain.GeolocationPositionUnavailable:
		return msgNoFixFallback
	case domain.GeolocationTimeout:
		return msgTimeoutFallback
	default:
		return msgErrorFallback
	}
}

// Submit validates the form locally and sends it. On success only the note
// is cleared and the feed is refreshed; on failure all fields are kept.
func (e *Engine) Submit(ctx context.Context) error {
	e.mu.Lock()
	if e.state.lat == 0 || e.state.lng == 0 {
		e.state.inlineError = MsgEnableLocation
		e.mu.Unlock()
		e.deps.Metrics.Submissions.WithLabelValues("rejected").Inc()
		return ErrLocationRequired
	}
	if e.submitting {
		e.mu.Unlock()
		return ErrSubmitInProgress
	}
	e.submitting = true
	e.state.inlineError = ""
	sub := domain.Submission{
		Lat:       e.state.lat,
		Lng:       e.state.lng,
		Condition: e.state.condition,
	}
	if note := strings.TrimSpace(e.state.note); note != "" {
		sub.Note = &note
	}
	e.mu.Unlock()

	e.setStatus(MsgPosting)
	err := e.deps.Writer.SubmitReport(ctx, sub)

	e.mu.Lock()
	e.submitting = false
	if err != nil {
		e.state.inlineError = submitErrorMessage(err)
		e.mu.Unlock()
		e.setStatus(MsgPostFailed)
		e.deps.Metrics.Submissions.WithLabelValues("error").Inc()
		e.deps.Logger.Error("submit report failed", "error", err)
		return err
	}
	e.state.note = ""
	e.mu.Unlock()

	e.deps.Metrics.Submissions.WithLabelValues("success").Inc()
	e.setStatus(MsgPosted)
	if e.deps.Refresher != nil {
		if err := e.deps.Refresher.Refresh(ctx); err != nil {
			e.deps.Logger.Warn("refresh after submit failed", "error", err)
		}
	}
	return nil
}

func submitErrorMessage(err error) string {
	if errors.Is(err, domain.ErrAuthRequired) {
		return MsgLoginRequired
	}
	return err.Error()
}

func (e *Engine) setStatus(msg string) {
	if e.deps.Status != nil {
		e.deps.Status.SetStatus(msg)
	}
}

// Wait blocks until background geocoding started by ApplyPosition has finished.
func (e *Engine) Wait() {
	e.bg.Wait()
}
