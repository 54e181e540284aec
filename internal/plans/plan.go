package plans

import (
	"time"

	"github.com/2beens/fitjourney/internal/exercises"
	"github.com/2beens/fitjourney/internal/weekday"
)

// Plan is a recurring workout plan, owned by a single user and repeated
// on the weekdays in RepeatDays. Plans are deactivated, never deleted.
type Plan struct {
	ID               int            `json:"id"`
	UserID           string         `json:"userId"`
	RepeatDays       []weekday.Day  `json:"repeatDays"`
	Label            string         `json:"label,omitempty"`
	NotificationTime *time.Time     `json:"notificationTime,omitempty"`
	Active           bool           `json:"isActive"`
	CreatedAt        time.Time      `json:"createdAt"`
	Exercises        []PlanExercise `json:"exercises,omitempty"`
}

// PlanExercise is one prescribed exercise within a plan. Completion is
// tracked with a timestamp rather than a boolean: the exercise counts as
// completed only for the occurrence (local calendar day) the timestamp
// falls on, so the flag "resets" by itself when the next scheduled day
// comes around.
type PlanExercise struct {
	ID          int        `json:"id"`
	PlanID      int        `json:"planId"`
	ExerciseID  int        `json:"exerciseId"`
	Sets        int        `json:"sets"`
	Reps        int        `json:"reps"`
	Order       int        `json:"order"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Exercise *exercises.Exercise `json:"exercise,omitempty"`
}

// CompletedOn reports whether this exercise was completed on the same
// local calendar day as the given instant, in the given timezone.
func (pe *PlanExercise) CompletedOn(instant time.Time, timezone string) bool {
	if pe.CompletedAt == nil {
		return false
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	completed := pe.CompletedAt.In(loc)
	day := instant.In(loc)
	return completed.Year() == day.Year() &&
		completed.Month() == day.Month() &&
		completed.Day() == day.Day()
}

// ScheduledOn reports whether the plan repeats on the weekday of the
// given instant in the given timezone.
func (p *Plan) ScheduledOn(instant time.Time, timezone string) bool {
	day := weekday.Resolve(instant, timezone)
	for _, d := range p.RepeatDays {
		if d == day {
			return true
		}
	}
	return false
}
