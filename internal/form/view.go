package form

import "github.com/couchcryptid/microsense/internal/domain"

// SliderView is one visible slider with its rendered value.
type SliderView struct {
	Axis    Axis   `json:"axis"`
	Label   string `json:"label"`
	Unit    string `json:"unit,omitempty"`
	Value   int    `json:"value"`
	Display string `json:"display"`
}

// View is an immutable snapshot of the form.
type View struct {
	Condition      domain.Condition `json:"condition"`
	Sliders        []SliderView     `json:"sliders"`
	Values         map[Axis]int     `json:"values"`
	Odor           string           `json:"odor"`
	OdorOptions    []string         `json:"odor_options"`
	Note           string           `json:"note"`
	Lat            float64          `json:"lat"`
	Lng            float64          `json:"lng"`
	LocationLabel  string           `json:"location_label"`
	LocationStatus LocationStatus   `json:"location_status"`
	Error          string           `json:"error,omitempty"`
	Submitting     bool             `json:"submitting"`
}

// Snapshot returns the current form state with slider values rendered for
// the active condition.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	layout := LayoutFor(e.state.condition)
	v := View{
		Condition:      e.state.condition,
		Values:         make(map[Axis]int, len(e.state.values)),
		Odor:           e.state.odor,
		OdorOptions:    append([]string(nil), layout.Odors...),
		Note:           e.state.note,
		Lat:            e.state.lat,
		Lng:            e.state.lng,
		LocationLabel:  e.state.locationLabel,
		LocationStatus: e.state.locationStatus,
		Error:          e.state.inlineError,
		Submitting:     e.submitting,
	}
	for axis, val := range e.state.values {
		v.Values[axis] = val
	}
	for _, s := range layout.Sliders {
		val := e.state.values[s.Axis]
		v.Sliders = append(v.Sliders, SliderView{
			Axis:    s.Axis,
			Label:   s.Label,
			Unit:    s.Unit,
			Value:   val,
			Display: s.Describe(val),
		})
	}
	return v
}
