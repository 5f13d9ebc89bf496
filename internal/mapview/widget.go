// Package mapview keeps a map widget's marker set in step with the loaded
// report list.
package mapview

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/microsense/internal/domain"
)

// Map defaults.
const (
	DefaultZoom = 12
	UserZoom    = 15
)

// DefaultCenter is where the map opens before the user is located.
var DefaultCenter = LatLng{Lat: 7.070200, Lng: 125.607596}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Marker is a report projected onto the map.
type Marker struct {
	ID        int64
	Position  LatLng
	Glyph     string
	Condition domain.Condition
	CreatedAt time.Time
	Note      string
}

// Popup is the detail shown when a marker is opened. Age is rendered
// relative to now.
func (m Marker) Popup(now time.Time) Popup {
	return Popup{
		Title: m.Glyph + " " + string(m.Condition),
		Age:   domain.RelativeAge(now, m.CreatedAt),
		Note:  m.Note,
	}
}

// Popup is the rendered marker detail.
type Popup struct {
	Title string `json:"title"`
	Age   string `json:"age"`
	Note  string `json:"note,omitempty"`
}

// Widget is the push-only surface of a map. Nothing is read back from it.
type Widget interface {
	AddMarker(m Marker)
	RemoveMarker(id int64)
	PlaceUserMarker(pos LatLng)
	MoveUserMarker(pos LatLng)
	SetCenter(pos LatLng)
	SetZoom(zoom int)
}

// Snapshotter is implemented by widgets that can describe what they show.
type Snapshotter interface {
	Snapshot(now time.Time) Snapshot
}

// Snapshot is the visible state of a widget.
type Snapshot struct {
	Center  LatLng       `json:"center"`
	Zoom    int          `json:"zoom"`
	User    *LatLng      `json:"user,omitempty"`
	Markers []MarkerView `json:"markers"`
}

// MarkerView is a marker as published over the API.
type MarkerView struct {
	ID    int64   `json:"id"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Glyph string  `json:"glyph"`
	Popup Popup   `json:"popup"`
}

// MemoryWidget is an in-process Widget.
type MemoryWidget struct {
	mu      sync.RWMutex
	center  LatLng
	zoom    int
	user    *LatLng
	markers map[int64]Marker
}

// NewMemoryWidget returns a widget at the default center and zoom.
func NewMemoryWidget() *MemoryWidget {
	return &MemoryWidget{
		center:  DefaultCenter,
		zoom:    DefaultZoom,
		markers: make(map[int64]Marker),
	}
}

func (w *MemoryWidget) AddMarker(m Marker) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.markers[m.ID] = m
}

func (w *MemoryWidget) RemoveMarker(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.markers, id)
}

func (w *MemoryWidget) PlaceUserMarker(pos LatLng) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.user = &pos
}

func (w *MemoryWidget) MoveUserMarker(pos LatLng) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.user != nil {
		*w.user = pos
	}
}

func (w *MemoryWidget) SetCenter(pos LatLng) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.center = pos
}

func (w *MemoryWidget) SetZoom(zoom int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.zoom = zoom
}

// Snapshot returns the widget state with markers ordered newest id first.
func (w *MemoryWidget) Snapshot(now time.Time) Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Snapshot{Center: w.center, Zoom: w.zoom, Markers: make([]MarkerView, 0, len(w.markers))}
	if w.user != nil {
		u := *w.user
		s.User = &u
	}
	for _, m := range w.markers {
		s.Markers = append(s.Markers, MarkerView{
			ID:    m.ID,
			Lat:   m.Position.Lat,
			Lng:   m.Position.Lng,
			Glyph: m.Glyph,
			Popup: m.Popup(now),
		})
	}
	slices.SortFunc(s.Markers, func(a, b MarkerView) int { return cmp.Compare(b.ID, a.ID) })
	return s
}
