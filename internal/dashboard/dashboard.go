// Package dashboard derives the analytics view model from a loaded report
// list. Everything here is a pure function of its inputs.
package dashboard

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/microsense/internal/domain"
)

const (
	days                   = 7
	lowVisibilityThreshold = 30
	noReportsToday         = "No reports yet"
	noPeakHour             = "N/A"
	dateLayout             = "2006-01-02"
)

// Day is one column of the seven-day condition tally.
type Day struct {
	Date   string                   `json:"date"`
	Label  string                   `json:"day"`
	Counts map[domain.Condition]int `json:"counts"`
	// Total counts recognized conditions only.
	Total int `json:"total"`
}

// Slice is one segment of the condition distribution.
type Slice struct {
	Condition  domain.Condition `json:"name"`
	Glyph      string           `json:"glyph"`
	Count      int              `json:"value"`
	Percentage string           `json:"percentage"`
}

// TrendPoint is one day of report activity.
type TrendPoint struct {
	Label   string `json:"day"`
	Reports int    `json:"reports"`
	Average int    `json:"avgReports"`
}

// ViewModel is everything the dashboard renders.
type ViewModel struct {
	Daily              []Day        `json:"daily"`
	Distribution       []Slice      `json:"distribution"`
	TotalReports       int          `json:"totalReports"`
	Trend              []TrendPoint `json:"trend"`
	ReportsToday       int          `json:"reportsToday"`
	TopConditionsToday string       `json:"conditionSummary"`
	SevereLast24h      int          `json:"severeWeatherCount"`
	LowVisibilityToday int          `json:"lowVisibilityCount"`
	PeakHour           string       `json:"peakHour"`
}

// Compute builds the view model at now. Calendar days are UTC dates; the
// peak hour is taken in loc (UTC when nil).
func Compute(now time.Time, loc *time.Location, reports []domain.Report) ViewModel {
	if loc == nil {
		loc = time.UTC
	}
	now = now.UTC()

	byDate := make(map[string][]domain.Report)
	for _, r := range reports {
		d := r.CreatedAt.UTC().Format(dateLayout)
		byDate[d] = append(byDate[d], r)
	}

	today := now.Format(dateLayout)
	todays := byDate[today]

	vm := ViewModel{
		Daily:              daily(now, byDate),
		ReportsToday:       len(todays),
		TopConditionsToday: topConditions(todays),
		SevereLast24h:      severeSince(now, reports),
		LowVisibilityToday: lowVisibility(todays),
		PeakHour:           peakHour(loc, reports),
	}
	vm.Distribution, vm.TotalReports = distribution(reports)
	vm.Trend = trend(vm.Daily, byDate)
	return vm
}

func daily(now time.Time, byDate map[string][]domain.Report) []Day {
	out := make([]Day, days)
	for i := range out {
		date := now.AddDate(0, 0, -(days - 1 - i))
		day := Day{
			Date:   date.Format(dateLayout),
			Label:  date.Format("Mon"),
			Counts: make(map[domain.Condition]int, len(domain.Conditions)),
		}
		for _, c := range domain.Conditions {
			day.Counts[c] = 0
		}
		for _, r := range byDate[day.Date] {
			if r.Condition.Known() {
				day.Counts[r.Condition]++
				day.Total++
			}
		}
		out[i] = day
	}
	return out
}

func distribution(reports []domain.Report) ([]Slice, int) {
	counts := make(map[domain.Condition]int)
	total := 0
	for _, r := range reports {
		if r.Condition.Known() {
			counts[r.Condition]++
			total++
		}
	}

	var out []Slice
	for _, c := range domain.Conditions {
		n := counts[c]
		if n == 0 {
			continue
		}
		out = append(out, Slice{
			Condition:  c,
			Glyph:      domain.Glyph(c),
			Count:      n,
			Percentage: domain.FormatFixed(float64(n)/float64(total)*100, 1),
		})
	}
	return out, total
}

// trend pairs each day's raw count with a three-day trailing average of the
// recognized totals. The first two days have no look-back.
func trend(daily []Day, byDate map[string][]domain.Report) []TrendPoint {
	out := make([]TrendPoint, len(daily))
	for i, d := range daily {
		raw := len(byDate[d.Date])
		avg := raw
		if i >= 2 {
			sum := daily[i-2].Total + daily[i-1].Total + d.Total
			avg = int(math.Floor(float64(sum)/3 + 0.5))
		}
		out[i] = TrendPoint{Label: d.Label, Reports: raw, Average: avg}
	}
	return out
}

// topConditions renders the three most reported conditions today, first seen
// winning ties.
func topConditions(todays []domain.Report) string {
	type tally struct {
		condition domain.Condition
		count     int
	}
	var order []tally
	index := make(map[domain.Condition]int)
	for _, r := range todays {
		i, ok := index[r.Condition]
		if !ok {
			i = len(order)
			index[r.Condition] = i
			order = append(order, tally{condition: r.Condition})
		}
		order[i].count++
	}
	if len(order) == 0 {
		return noReportsToday
	}

	sort.SliceStable(order, func(a, b int) bool { return order[a].count > order[b].count })
	if len(order) > 3 {
		order = order[:3]
	}
	parts := make([]string, len(order))
	for i, t := range order {
		parts[i] = fmt.Sprintf("%d %s", t.count, t.condition)
	}
	return strings.Join(parts, ", ")
}

func severeSince(now time.Time, reports []domain.Report) int {
	n := 0
	for _, r := range reports {
		if now.Sub(r.CreatedAt) < 24*time.Hour && r.Condition.Severe() {
			n++
		}
	}
	return n
}

func lowVisibility(todays []domain.Report) int {
	n := 0
	for _, r := range todays {
		if r.Visibility != nil && *r.Visibility != 0 && *r.Visibility < lowVisibilityThreshold {
			n++
		}
	}
	return n
}

// peakHour finds the busiest hour of day. Ties go to the earliest hour.
func peakHour(loc *time.Location, reports []domain.Report) string {
	var hours [24]int
	for _, r := range reports {
		hours[r.CreatedAt.In(loc).Hour()]++
	}
	best := -1
	for h, n := range hours {
		if n > 0 && (best < 0 || n > hours[best]) {
			best = h
		}
	}
	if best < 0 {
		return noPeakHour
	}
	return fmt.Sprintf("%02d:00 (%d reports)", best, hours[best])
}
