package audit

import "time"

// Action names a country mutation.
type Action string

const (
	ActionCountrySubmitted Action = "country_submitted"
	ActionCountryUpdated   Action = "country_updated"
	ActionCountryDeleted   Action = "country_deleted"
)

// Event is emitted from the country service after a successful mutation. Keep
// it transport-agnostic so sinks can fan out.
type Event struct {
	ID              string    `json:"id"`
	Action          Action    `json:"action"`
	Country         string    `json:"country"`
	PreviousCountry string    `json:"previous_country,omitempty"`
	Capital         string    `json:"capital,omitempty"`
	Population      int64     `json:"population,omitempty"`
	RequestID       string    `json:"request_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
