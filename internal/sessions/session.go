package sessions

import "time"

type Status string

const (
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusUncompleted Status = "uncompleted"
)

// Session is a finished (committed) workout session for one exercise,
// created atomically with its set records and immutable afterwards.
type Session struct {
	ID         int         `json:"id"`
	UserID     string      `json:"userId"`
	PlanID     int         `json:"planId"`
	ExerciseID int         `json:"exerciseId"`
	StartTime  time.Time   `json:"startTime"`
	EndTime    time.Time   `json:"endTime"`
	TotalSets  int         `json:"totalSets"`
	TotalReps  int         `json:"totalReps"`
	Status     Status      `json:"status"`
	Notes      string      `json:"notes,omitempty"`
	Sets       []SetRecord `json:"sets,omitempty"`
}

// SetRecord is one performed set within a committed session.
// Duration is in seconds.
type SetRecord struct {
	SetNumber int `json:"setNumber"`
	Reps      int `json:"reps"`
	Duration  int `json:"duration"`
}

// DurationSeconds is the whole session duration, in seconds.
func (s *Session) DurationSeconds() int {
	return int(s.EndTime.Sub(s.StartTime).Seconds())
}
