package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/quest-league/internal/domain"
	"github.com/quest-league/internal/season"
)

// Submit validates and records a quest submission. Checks run in a fixed
// order and the first failure wins: identity, required fields, receipt URL,
// content hash, season existence/activity/window, quest existence,
// duplicate submission. On success the submission is stored as verified
// with a flat score and the agent's leaderboard cache row is recomputed.
func (s *LeagueService) Submit(ctx context.Context, agent *domain.Agent, req domain.SubmitRequest) (*domain.Submission, error) {
	if req.AgentName != agent.Name {
		return nil, domain.NewError(domain.KindForbidden, "agent_name does not match authenticated agent")
	}

	if !req.HasRequiredFields() {
		return nil, domain.NewError(domain.KindBadRequest,
			"Missing required fields: season_id, day, quest_id, moltbook_post_id, receipt_url, content_hash")
	}

	if !domain.ValidReceiptURL(req.ReceiptURL, s.config.ReceiptURLPrefix) {
		return nil, domain.Errorf(domain.KindBadRequest, "receipt_url must start with %s", s.config.ReceiptURLPrefix)
	}

	if !domain.ValidContentHash(req.ContentHash) {
		return nil, domain.NewError(domain.KindBadRequest, "content_hash must be in format sha256:64hexchars")
	}

	sn, err := s.store.GetSeason(ctx, req.SeasonID)
	if err != nil {
		return nil, err
	}
	if sn.Status != domain.SeasonStatusActive {
		return nil, domain.NewError(domain.KindBadRequest, "Season is not active")
	}
	if !season.InWindow(s.now(), sn.StartUTC, sn.EndUTC) {
		return nil, domain.NewError(domain.KindBadRequest, "Submission window is closed")
	}

	if _, err := s.store.GetQuest(ctx, req.SeasonID, req.Day, req.QuestID); err != nil {
		return nil, err
	}

	// Duplicate pre-check for idempotent-conflict reporting. The unique
	// constraint behind InsertSubmission closes the remaining race window.
	existing, err := s.store.GetSubmission(ctx, req.SeasonID, req.Day, agent.Name)
	if err != nil && !domain.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, &domain.DuplicateSubmissionError{
			SubmissionID: existing.ID,
			Status:       existing.Status,
		}
	}

	payoutAddress := req.PayoutAddress
	if payoutAddress == "" {
		payoutAddress = agent.PayoutAddress
	}
	proof := req.Proof
	if len(proof) == 0 {
		proof = json.RawMessage("[]")
	}

	sub := &domain.Submission{
		SeasonID:       req.SeasonID,
		Day:            req.Day,
		QuestID:        req.QuestID,
		AgentName:      agent.Name,
		MoltbookPostID: req.MoltbookPostID,
		ReceiptURL:     req.ReceiptURL,
		ContentHash:    req.ContentHash,
		Proof:          proof,
		PayoutAddress:  payoutAddress,
		Status:         domain.SubmissionStatusVerified,
		Score:          domain.SubmissionScore,
	}
	if err := s.store.InsertSubmission(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("submission accepted",
		"agent_name", agent.Name,
		"season_id", sub.SeasonID,
		"day", sub.Day,
		"quest_id", sub.QuestID,
	)

	// The submission is durable at this point; a cache refresh failure is
	// logged and swallowed, and the next refresh heals it.
	if err := s.RefreshLeaderboard(ctx, sub.SeasonID, agent.Name); err != nil {
		s.logger.Error("leaderboard cache refresh failed",
			"season_id", sub.SeasonID,
			"agent_name", agent.Name,
			"error", err,
		)
	} else {
		s.broadcastUpdates(ctx, sub)
	}

	return sub, nil
}

// RefreshLeaderboard recomputes one agent's leaderboard cache row from
// scratch: count, score sum and latest timestamp over their verified
// submissions. A full recompute rather than an increment, so redundant or
// out-of-order calls converge on the same row.
func (s *LeagueService) RefreshLeaderboard(ctx context.Context, seasonID, agentName string) error {
	daysCompleted, totalScore, lastSubmissionAt, err := s.store.AgentSeasonStats(ctx, seasonID, agentName)
	if err != nil {
		return err
	}
	if err := s.store.UpsertLeaderboardEntry(ctx, seasonID, agentName, daysCompleted, totalScore, lastSubmissionAt); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateLeaderboard(ctx, seasonID); err != nil {
			s.logger.Warn("leaderboard snapshot invalidation failed", "season_id", seasonID, "error", err)
		}
	}
	return nil
}

// broadcastUpdates pushes the accepted submission and the refreshed
// leaderboard to subscribed clients. Best effort only.
func (s *LeagueService) broadcastUpdates(ctx context.Context, sub *domain.Submission) {
	if s.hub == nil {
		return
	}

	s.hub.BroadcastSubmissionAccepted(sub.SeasonID, *sub)

	page, err := s.Leaderboard(ctx, sub.SeasonID, s.config.DefaultLimit)
	if err != nil {
		s.logger.Warn("leaderboard broadcast skipped", "season_id", sub.SeasonID, "error", err)
		return
	}
	s.hub.BroadcastLeaderboardUpdate(sub.SeasonID, page.Leaderboard, page.TotalParticipants)
}

// IsDuplicateSubmission reports whether err is the idempotency conflict.
func IsDuplicateSubmission(err error) (*domain.DuplicateSubmissionError, bool) {
	var dup *domain.DuplicateSubmissionError
	if errors.As(err, &dup) {
		return dup, true
	}
	return nil, false
}
