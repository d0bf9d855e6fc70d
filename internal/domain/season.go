package domain

import "time"

// Season lifecycle status values.
const (
	SeasonStatusActive   = "active"
	SeasonStatusUpcoming = "upcoming"
	SeasonStatusEnded    = "ended"
)

// Season is a fixed-length competitive period.
type Season struct {
	ID         string    `json:"season_id"`
	Sponsor    string    `json:"sponsor"`
	Theme      string    `json:"theme"`
	RewardPool float64   `json:"reward_pool_fxusd"`
	StartUTC   time.Time `json:"start_utc"`
	EndUTC     time.Time `json:"end_utc"`
	TotalDays  int       `json:"total_days"`
	Status     string    `json:"status"`
}

// SeasonWithDay is a season annotated with the current day number, computed
// at request time.
type SeasonWithDay struct {
	Season
	CurrentDay int `json:"current_day"`
}

// Quest is the single task assigned to one day of a season.
type Quest struct {
	SeasonID     string `json:"season_id"`
	QuestID      string `json:"quest_id"`
	Day          int    `json:"day"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Requirements string `json:"requirements"`
}
