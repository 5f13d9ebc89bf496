package mapview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/couchcryptid/microsense/internal/loader"
	"github.com/couchcryptid/microsense/internal/observability"
)

var errNoSnapshot = errors.New("map widget does not support snapshots")

// Reconciler applies the minimal marker additions and removals needed to make
// the widget show exactly the given reports.
type Reconciler struct {
	widgets *loader.Loader[Widget]
	metrics *observability.Metrics
	logger  *slog.Logger

	mu         sync.Mutex
	placed     map[int64]struct{}
	userPlaced bool
}

// NewReconciler returns a Reconciler over the widget produced by widgets.
func NewReconciler(widgets *loader.Loader[Widget], metrics *observability.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		widgets: widgets,
		metrics: metrics,
		logger:  logger,
		placed:  make(map[int64]struct{}),
	}
}

// Reconcile removes markers whose report is gone and adds markers for new
// reports. Markers already placed are never updated. An empty list does not
// load the widget when it is not up yet, since nothing is placed.
func (r *Reconciler) Reconcile(ctx context.Context, reports []domain.Report) error {
	if len(reports) == 0 && !r.widgets.Loaded() {
		return nil
	}
	w, err := r.widgets.Get(ctx)
	if err != nil {
		return fmt.Errorf("load map widget: %w", err)
	}

	want := make(map[int64]domain.Report, len(reports))
	for _, rep := range reports {
		if _, dup := want[rep.ID]; !dup {
			want[rep.ID] = rep
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed, added int
	for id := range r.placed {
		if _, ok := want[id]; !ok {
			w.RemoveMarker(id)
			delete(r.placed, id)
			removed++
		}
	}
	for _, rep := range reports {
		if _, ok := r.placed[rep.ID]; ok {
			continue
		}
		w.AddMarker(markerFor(rep))
		r.placed[rep.ID] = struct{}{}
		added++
	}

	r.metrics.MarkersActive.Set(float64(len(r.placed)))
	if added > 0 || removed > 0 {
		r.logger.Debug("markers reconciled", "added", added, "removed", removed, "active", len(r.placed))
	}
	return nil
}

// SetUserLocation places the user marker on first call and moves it after
// that. The map is recentered on it at UserZoom.
func (r *Reconciler) SetUserLocation(ctx context.Context, lat, lng float64) error {
	w, err := r.widgets.Get(ctx)
	if err != nil {
		return fmt.Errorf("load map widget: %w", err)
	}
	pos := LatLng{Lat: lat, Lng: lng}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userPlaced {
		w.MoveUserMarker(pos)
	} else {
		w.PlaceUserMarker(pos)
		r.userPlaced = true
	}
	w.SetCenter(pos)
	w.SetZoom(UserZoom)
	return nil
}

// MarkerIDs returns the ids of placed markers in ascending order.
func (r *Reconciler) MarkerIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.placed))
	for id := range r.placed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Snapshot describes the widget if it supports it.
func (r *Reconciler) Snapshot(ctx context.Context) (Snapshot, error) {
	w, err := r.widgets.Get(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load map widget: %w", err)
	}
	s, ok := w.(Snapshotter)
	if !ok {
		return Snapshot{}, errNoSnapshot
	}
	return s.Snapshot(domain.Now()), nil
}

func markerFor(rep domain.Report) Marker {
	return Marker{
		ID:        rep.ID,
		Position:  LatLng{Lat: rep.Lat, Lng: rep.Lng},
		Glyph:     domain.Glyph(rep.Condition),
		Condition: rep.Condition,
		CreatedAt: rep.CreatedAt,
		Note:      rep.NoteText(),
	}
}
