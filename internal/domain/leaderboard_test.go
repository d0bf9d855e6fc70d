package domain

import (
	"testing"
	"time"
)

func ts(hour int) time.Time {
	return time.Date(2025, 6, 1, hour, 0, 0, 0, time.UTC)
}

func TestSortLeaderboard(t *testing.T) {
	entries := []LeaderboardEntry{
		{AgentName: "carol", TotalScore: 5, DaysCompleted: 5, LastSubmissionAt: ts(10)},
		{AgentName: "alice", TotalScore: 7, DaysCompleted: 7, LastSubmissionAt: ts(12)},
		{AgentName: "bob", TotalScore: 7, DaysCompleted: 7, LastSubmissionAt: ts(9)},
		{AgentName: "dave", TotalScore: 7, DaysCompleted: 6, LastSubmissionAt: ts(8)},
	}

	SortLeaderboard(entries)

	// score desc, then days desc, then earlier submission first
	want := []string{"bob", "alice", "dave", "carol"}
	for i, name := range want {
		if entries[i].AgentName != name {
			t.Errorf("position %d = %q, want %q", i, entries[i].AgentName, name)
		}
	}
}

func TestSortLeaderboardNameTiebreak(t *testing.T) {
	entries := []LeaderboardEntry{
		{AgentName: "zed", TotalScore: 3, DaysCompleted: 3, LastSubmissionAt: ts(10)},
		{AgentName: "amy", TotalScore: 3, DaysCompleted: 3, LastSubmissionAt: ts(10)},
		{AgentName: "mia", TotalScore: 3, DaysCompleted: 3, LastSubmissionAt: ts(10)},
	}

	SortLeaderboard(entries)

	want := []string{"amy", "mia", "zed"}
	for i, name := range want {
		if entries[i].AgentName != name {
			t.Errorf("position %d = %q, want %q", i, entries[i].AgentName, name)
		}
	}
}

func TestAssignRanks(t *testing.T) {
	entries := []LeaderboardEntry{
		{AgentName: "alice", TotalScore: 7, DaysCompleted: 7, LastSubmissionAt: ts(9)},
		{AgentName: "bob", TotalScore: 7, DaysCompleted: 7, LastSubmissionAt: ts(9)},
		{AgentName: "carol", TotalScore: 7, DaysCompleted: 7, LastSubmissionAt: ts(10)},
		{AgentName: "dave", TotalScore: 5, DaysCompleted: 5, LastSubmissionAt: ts(8)},
	}

	AssignRanks(entries)

	// alice and bob tie on all three rank keys and share rank 1; carol's
	// later submission drops her to 3 (competition ranking skips 2)
	want := []int{1, 1, 3, 4}
	for i, rank := range want {
		if entries[i].Rank != rank {
			t.Errorf("%s rank = %d, want %d", entries[i].AgentName, entries[i].Rank, rank)
		}
	}
}

func TestAssignRanksEmpty(t *testing.T) {
	AssignRanks(nil)
	AssignRanks([]LeaderboardEntry{})
}
