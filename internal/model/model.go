package model

import (
	"slices"
	"time"
)

type Event struct {
	ID              string    `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description,omitempty" json:"description,omitempty"`
	Date            time.Time `db:"date" json:"date"`
	Time            string    `db:"time,omitempty" json:"time,omitempty"`
	Location        string    `db:"location,omitempty" json:"location,omitempty"`
	Category        string    `db:"category,omitempty" json:"category,omitempty"`
	Organizer       string    `db:"organizer,omitempty" json:"organizer,omitempty"`
	ImageURL        string    `db:"image_url,omitempty" json:"image_url,omitempty"`
	Capacity        int       `db:"capacity" json:"capacity"`
	RegisteredUsers []string  `db:"registered_users" json:"registered_users"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Unlimited reports whether the event has no seat limit. Zero capacity means unlimited.
func (e *Event) Unlimited() bool {
	return e.Capacity <= 0
}

func (e *Event) IsFull() bool {
	return !e.Unlimited() && len(e.RegisteredUsers) >= e.Capacity
}

func (e *Event) HasMember(userID string) bool {
	return slices.Contains(e.RegisteredUsers, userID)
}

// AvailableSeats returns -1 for unlimited events.
func (e *Event) AvailableSeats() int {
	if e.Unlimited() {
		return -1
	}
	return max(e.Capacity-len(e.RegisteredUsers), 0)
}

type Registration struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	EventID          string    `db:"event_id" json:"event_id"`
	RegistrationDate time.Time `db:"registration_date" json:"registration_date"`
	ProofArtifact    string    `db:"proof_artifact" json:"proof_artifact"`
}

// Participant is a registration joined with the display fields of its user.
type Participant struct {
	Registration
	Name  string `json:"name"`
	Email string `json:"email"`
}

type User struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
	Role  string `db:"role" json:"role"`
}

type EventFilter struct {
	Category string
	Search   string
}

type Stats struct {
	TotalEvents int `json:"total_events"`
	TotalUsers  int `json:"total_users"`
	Upcoming    int `json:"upcoming"`
}
