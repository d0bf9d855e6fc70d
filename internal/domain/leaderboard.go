package domain

import (
	"sort"
	"time"
)

// LeaderboardEntry is one row of the ranked season leaderboard, derived
// from the leaderboard cache table.
type LeaderboardEntry struct {
	Rank             int       `json:"rank"`
	AgentName        string    `json:"agent_name"`
	DaysCompleted    int       `json:"days_completed"`
	TotalScore       int       `json:"score"`
	LastSubmissionAt time.Time `json:"last_submission_at"`
}

// LeaderboardPage is the leaderboard response payload.
type LeaderboardPage struct {
	SeasonID          string             `json:"season_id"`
	TotalParticipants int                `json:"total_participants"`
	Leaderboard       []LeaderboardEntry `json:"leaderboard"`
}

// less orders entries by total_score desc, days_completed desc,
// last_submission_at asc (earlier is better), agent_name asc.
func less(a, b LeaderboardEntry) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	if a.DaysCompleted != b.DaysCompleted {
		return a.DaysCompleted > b.DaysCompleted
	}
	if !a.LastSubmissionAt.Equal(b.LastSubmissionAt) {
		return a.LastSubmissionAt.Before(b.LastSubmissionAt)
	}
	return a.AgentName < b.AgentName
}

// SortLeaderboard sorts entries into ranking order. The agent name tiebreak
// makes the order total, so the result is deterministic.
func SortLeaderboard(entries []LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})
}

// AssignRanks fills in competition ("1224") ranks over sorted entries:
// agents equal on score, days completed and last submission time share a
// rank number; the agent name tiebreak affects order only.
func AssignRanks(entries []LeaderboardEntry) {
	for i := range entries {
		if i > 0 && sameRankKey(entries[i], entries[i-1]) {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}

func sameRankKey(a, b LeaderboardEntry) bool {
	return a.TotalScore == b.TotalScore &&
		a.DaysCompleted == b.DaysCompleted &&
		a.LastSubmissionAt.Equal(b.LastSubmissionAt)
}

// AgentStatus is the per-agent season progress view. Its rank is computed
// from total score alone and may disagree with the leaderboard's multi-key
// rank when scores tie; that divergence is intentional.
type AgentStatus struct {
	AgentName      string       `json:"agent_name"`
	SeasonID       string       `json:"season_id"`
	Eligible       bool         `json:"eligible"`
	DaysCompleted  int          `json:"days_completed"`
	MissingDays    []int        `json:"missing_days"`
	Score          int          `json:"score"`
	Rank           int          `json:"rank"`
	LastReceiptURL string       `json:"last_receipt_url,omitempty"`
	Submissions    []Submission `json:"submissions"`
}

