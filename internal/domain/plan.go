package domain

import "strings"

// PlannedExercise is a prescribed movement in a lift day's plan.
type PlannedExercise struct {
	Name string `json:"name"`
	Sets string `json:"sets"`
	Reps string `json:"reps"`
}

// DayPlan is the fixed template for one weekday of the hybrid week.
type DayPlan struct {
	Name     string            `json:"name"`
	Focus    string            `json:"focus"`
	Duration string            `json:"duration"`
	Kind     Kind              `json:"type"`
	RunType  string            `json:"runType,omitempty"`
	LiftArea string            `json:"liftFocus,omitempty"`
	Options  []string          `json:"workoutOptions,omitempty"`
	Exercise []PlannedExercise `json:"exercises,omitempty"`
}

// WeeklyPlan is the "3 runs + 3 lifts + 1 recovery" week keyed by weekday label.
var WeeklyPlan = map[string]DayPlan{
	"monday": {
		Name: "Upper Push", Focus: "Chest, Shoulders, Triceps", Duration: "40-50 minutes",
		Kind: KindLift, LiftArea: "push",
		Exercise: []PlannedExercise{
			{Name: "Bench/DB Press", Sets: "3-4", Reps: "6-8"},
			{Name: "Incline DB Press", Sets: "3", Reps: "8-10"},
			{Name: "Shoulder Press", Sets: "3", Reps: "8-10"},
			{Name: "Dips/Triceps Pushdowns", Sets: "3", Reps: "10-12"},
			{Name: "Lateral Raises", Sets: "3", Reps: "12-15"},
		},
	},
	"tuesday": {
		Name: "Speed Run", Focus: "Get faster, boost VO2max", Duration: "45-60 minutes",
		Kind: KindRun, RunType: "speed",
		Options: []string{
			"6x400 m @ 5K pace (90 s rest)",
			"10x200 m fast (walk/jog recovery)",
			`20 min tempo @ "comfortably hard"`,
		},
	},
	"wednesday": {
		Name: "Upper Pull", Focus: "Back, Biceps, Posture", Duration: "40-50 minutes",
		Kind: KindLift, LiftArea: "pull",
		Exercise: []PlannedExercise{
			{Name: "Pull-ups/Lat Pulldown", Sets: "3-4", Reps: "6-10"},
			{Name: "Barbell/Seated Row", Sets: "3", Reps: "8-10"},
			{Name: "Face Pulls", Sets: "3", Reps: "12-15"},
			{Name: "Hammer Curls", Sets: "3", Reps: "10-12"},
			{Name: "Reverse Fly", Sets: "3", Reps: "12-15"},
		},
	},
	"thursday": {
		Name: "Easy Run", Focus: "Build engine in Zone 2", Duration: "30-50 minutes",
		Kind: KindRun, RunType: "easy",
	},
	"friday": {
		Name: "Lower Body", Focus: "Strong legs without ruining long run", Duration: "40-50 minutes",
		Kind: KindLift, LiftArea: "legs",
		Exercise: []PlannedExercise{
			{Name: "Squat/Leg Press", Sets: "3-4", Reps: "6-8"},
			{Name: "Romanian Deadlift", Sets: "3", Reps: "8-10"},
			{Name: "Bulgarian Split Squat", Sets: "3", Reps: "8-10 each"},
			{Name: "Leg Curls", Sets: "3", Reps: "10-12"},
			{Name: "Calf Raises", Sets: "3", Reps: "12-15"},
		},
	},
	"saturday": {
		Name: "Long Run", Focus: "Endurance, practice fueling and mental toughness", Duration: "60-120 minutes",
		Kind: KindRun, RunType: "long",
	},
	"sunday": {
		Name: "Off / Mobility", Focus: "Recovery", Duration: "Optional mobility session",
		Kind:    KindMobility,
		Options: []string{"Foam rolling", "Stretching", "Light yoga"},
	},
}

// PlanFor returns the plan for a weekday label.
func PlanFor(dayName string) (DayPlan, bool) {
	plan, ok := WeeklyPlan[strings.ToLower(strings.TrimSpace(dayName))]
	return plan, ok
}

// NewDefaultRecord builds the unsaved record shown the first time a day is
// opened. It carries no UpdatedAt until the store persists it.
func NewDefaultRecord(dateKey, weekKey, dayName string) Record {
	dayName = strings.ToLower(strings.TrimSpace(dayName))
	rec := Record{
		DateKey: dateKey,
		WeekKey: weekKey,
		DayName: dayName,
		Payload: make(map[string]any),
	}

	plan, ok := WeeklyPlan[dayName]
	if !ok {
		return rec
	}
	rec.Kind = plan.Kind

	switch plan.Kind {
	case KindRun:
		rec.Payload["runType"] = plan.RunType
	case KindLift:
		rec.Payload["focus"] = plan.LiftArea
		exercises := make([]any, 0, len(plan.Exercise))
		for _, ex := range plan.Exercise {
			exercises = append(exercises, map[string]any{
				"name":      ex.Name,
				"sets":      "",
				"reps":      "",
				"weight":    "",
				"rpe":       "",
				"completed": false,
			})
		}
		rec.Payload["exercises"] = exercises
	}
	return rec
}
