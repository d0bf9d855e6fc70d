package service

import (
	"context"

	"github.com/quest-league/internal/domain"
)

// Leaderboard returns the ranked season leaderboard. The limit is clamped
// to [1, max]; zero or negative values fall back to the default. Ranked
// pages are served from the snapshot cache when fresh; Postgres remains
// the source of truth.
func (s *LeagueService) Leaderboard(ctx context.Context, seasonID string, limit int) (*domain.LeaderboardPage, error) {
	seasonID, err := s.resolveSeasonID(ctx, seasonID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}

	entries, err := s.rankedSnapshot(ctx, seasonID)
	if err != nil {
		return nil, err
	}

	if limit < len(entries) {
		entries = entries[:limit]
	}
	return &domain.LeaderboardPage{
		SeasonID:          seasonID,
		TotalParticipants: len(entries),
		Leaderboard:       entries,
	}, nil
}

// rankedSnapshot returns the season's top entries, sorted and ranked. The
// full max-limit page is cached so any narrower limit slices out of it
// without recomputing ranks.
func (s *LeagueService) rankedSnapshot(ctx context.Context, seasonID string) ([]domain.LeaderboardEntry, error) {
	if s.cache != nil {
		entries, err := s.cache.GetLeaderboardSnapshot(ctx, seasonID)
		if err != nil {
			s.logger.Warn("leaderboard snapshot lookup failed", "season_id", seasonID, "error", err)
		} else if entries != nil {
			return entries, nil
		}
	}

	entries, err := s.store.TopLeaderboard(ctx, seasonID, s.config.MaxLimit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	domain.SortLeaderboard(entries)
	domain.AssignRanks(entries)

	if s.cache != nil {
		if err := s.cache.SetLeaderboardSnapshot(ctx, seasonID, entries); err != nil {
			s.logger.Warn("leaderboard snapshot store failed", "season_id", seasonID, "error", err)
		}
	}
	return entries, nil
}

// Status returns the per-agent season progress view. Its rank counts agents
// with a strictly greater total score, which can disagree with the
// leaderboard's multi-key rank on score ties; both views are kept as is.
func (s *LeagueService) Status(ctx context.Context, agent *domain.Agent, requestedAgent, seasonID string) (*domain.AgentStatus, error) {
	if requestedAgent != "" && requestedAgent != agent.Name {
		return nil, domain.NewError(domain.KindForbidden, "Can only view own status")
	}

	seasonID, err := s.resolveSeasonID(ctx, seasonID)
	if err != nil {
		return nil, err
	}

	subs, err := s.store.ListAgentSubmissions(ctx, seasonID, agent.Name)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []domain.Submission{}
	}

	completed := make(map[int]bool, len(subs))
	score := 0
	lastReceipt := ""
	for _, sub := range subs {
		completed[sub.Day] = true
		if sub.Status == domain.SubmissionStatusVerified {
			score += sub.Score
		}
		lastReceipt = sub.ReceiptURL
	}

	missing := make([]int, 0, s.config.EligibilityDays)
	for day := 1; day <= s.config.EligibilityDays; day++ {
		if !completed[day] {
			missing = append(missing, day)
		}
	}

	above, err := s.store.CountAgentsAbove(ctx, seasonID, score)
	if err != nil {
		return nil, err
	}

	return &domain.AgentStatus{
		AgentName:      agent.Name,
		SeasonID:       seasonID,
		Eligible:       len(completed) == s.config.EligibilityDays,
		DaysCompleted:  len(completed),
		MissingDays:    missing,
		Score:          score,
		Rank:           above + 1,
		LastReceiptURL: lastReceipt,
		Submissions:    subs,
	}, nil
}

// Settlement returns the agent's payout record for a season, or a
// not_eligible placeholder when none exists.
func (s *LeagueService) Settlement(ctx context.Context, agent *domain.Agent, seasonID string) (*domain.SettlementStatus, error) {
	seasonID, err := s.resolveSeasonID(ctx, seasonID)
	if err != nil {
		return nil, err
	}

	settlement, err := s.store.GetSettlement(ctx, seasonID, agent.Name)
	if err != nil {
		if domain.IsNotFound(err) {
			return &domain.SettlementStatus{
				SeasonID:  seasonID,
				AgentName: agent.Name,
				Status:    domain.SettlementStatusNotEligible,
				Message:   "Settlement not yet available or agent not eligible",
			}, nil
		}
		return nil, err
	}

	return &domain.SettlementStatus{
		SeasonID:     settlement.SeasonID,
		AgentName:    settlement.AgentName,
		Status:       settlement.Status,
		AmountFxUSD:  &settlement.AmountFxUSD,
		PayoutTxHash: settlement.PayoutTxHash,
		CreatedAt:    &settlement.CreatedAt,
		FinalizedAt:  settlement.FinalizedAt,
	}, nil
}
