// Package stats derives dashboard aggregates from a snapshot.
package stats

import (
	"math"
	"time"

	"example.com/hybridtracker/internal/calendar"
	"example.com/hybridtracker/internal/domain"
)

// PlannedWorkouts is the weekly target: three runs and three lifts.
const PlannedWorkouts = 6

// DefaultWeeks is how many weeks Summarize covers when asked for zero.
const DefaultWeeks = 8

// Week is a rolling seven-day window starting at Key.
type Week struct {
	Key     string
	Label   string
	Records []domain.Record
}

// Sets counts completed lift sets by focus.
type Sets struct {
	Push int `json:"push"`
	Pull int `json:"pull"`
	Legs int `json:"legs"`
}

// WeekSummary aggregates one window.
type WeekSummary struct {
	WeekKey   string  `json:"weekKey"`
	Label     string  `json:"label"`
	Distance  float64 `json:"distance"`
	Sets      Sets    `json:"sets"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Rate      int     `json:"rate"`
}

// Summary is the dashboard payload.
type Summary struct {
	Weeks       []WeekSummary      `json:"weeks"`
	AveragePace map[string]float64 `json:"averagePace"`
}

// Recent returns the n windows ending at anchor, oldest first. Window i
// starts 7*i days before anchor.
func Recent(snapshot domain.Snapshot, anchor string, n int) ([]Week, error) {
	weeks := make([]Week, n)
	for i := 0; i < n; i++ {
		start, err := calendar.AddDays(anchor, -7*i)
		if err != nil {
			return nil, err
		}
		week := Week{Key: start, Label: label(start)}
		for j := 0; j < 7; j++ {
			day, err := calendar.AddDays(start, j)
			if err != nil {
				return nil, err
			}
			if rec, ok := snapshot[day]; ok {
				week.Records = append(week.Records, rec)
			}
		}
		weeks[n-1-i] = week
	}
	return weeks, nil
}

// Summarize computes every aggregate over the last n windows ending at
// anchor.
func Summarize(snapshot domain.Snapshot, anchor string, n int) (Summary, error) {
	if n <= 0 {
		n = DefaultWeeks
	}
	weeks, err := Recent(snapshot, anchor, n)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{Weeks: make([]WeekSummary, 0, len(weeks)), AveragePace: AveragePace(weeks)}
	for _, w := range weeks {
		completed := Completed(w)
		out.Weeks = append(out.Weeks, WeekSummary{
			WeekKey:   w.Key,
			Label:     w.Label,
			Distance:  Distance(w),
			Sets:      SetsByFocus(w),
			Completed: completed,
			Total:     PlannedWorkouts,
			Rate:      int(math.Round(float64(completed) / PlannedWorkouts * 100)),
		})
	}
	return out, nil
}

// Distance sums totalDistance over run records, rounded to one decimal.
func Distance(w Week) float64 {
	var total float64
	for _, rec := range w.Records {
		if rec.Kind != domain.KindRun {
			continue
		}
		if d, ok := rec.Float("totalDistance"); ok {
			total += d
		}
	}
	return round(total, 1)
}

// SetsByFocus sums the sets of completed exercises per lift focus.
func SetsByFocus(w Week) Sets {
	var sets Sets
	for _, rec := range w.Records {
		if rec.Kind != domain.KindLift {
			continue
		}
		n := 0
		for _, ex := range rec.Exercises() {
			if ex.Completed {
				n += ex.Sets
			}
		}
		switch rec.String("focus") {
		case "push":
			sets.Push += n
		case "pull":
			sets.Pull += n
		case "legs":
			sets.Legs += n
		}
	}
	return sets
}

// Completed counts records that are marked complete, runs with a distance,
// and lifts with at least one completed exercise.
func Completed(w Week) int {
	n := 0
	for _, rec := range w.Records {
		switch {
		case rec.Completed:
			n++
		case rec.Kind == domain.KindRun && hasDistance(rec):
			n++
		case rec.Kind == domain.KindLift && anyExerciseDone(rec):
			n++
		}
	}
	return n
}

// AveragePace averages positive averagePace values per run type across
// weeks, rounded to two decimals. Run types without data are omitted.
func AveragePace(weeks []Week) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, w := range weeks {
		for _, rec := range w.Records {
			if rec.Kind != domain.KindRun {
				continue
			}
			runType := rec.String("runType")
			switch runType {
			case "speed", "easy", "long":
			default:
				continue
			}
			pace, ok := rec.Float("averagePace")
			if !ok || pace <= 0 {
				continue
			}
			sums[runType] += pace
			counts[runType]++
		}
	}

	out := make(map[string]float64, len(sums))
	for runType, sum := range sums {
		out[runType] = round(sum/float64(counts[runType]), 2)
	}
	return out
}

func hasDistance(rec domain.Record) bool {
	if rec.String("totalDistance") != "" {
		return true
	}
	d, ok := rec.Float("totalDistance")
	return ok && d != 0
}

func anyExerciseDone(rec domain.Record) bool {
	for _, ex := range rec.Exercises() {
		if ex.Completed {
			return true
		}
	}
	return false
}

func label(weekKey string) string {
	c, err := calendar.Parse(weekKey)
	if err != nil {
		return weekKey
	}
	return time.Date(c.Year, c.Month, c.Day, 0, 0, 0, 0, time.UTC).Format("Jan 2")
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
