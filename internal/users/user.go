package users

import "time"

// User holds the progression state of an account. Identity and
// credentials live with the auth collaborator; this core only ever
// reads the id and mutates level / experience / journey start.
type User struct {
	ID               string     `json:"id"`
	Level            int        `json:"level"`
	Experience       int        `json:"experience"`
	JourneyStartedAt *time.Time `json:"journeyStartedAt,omitempty"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func (u *User) JourneyStarted() bool {
	return u.JourneyStartedAt != nil
}
