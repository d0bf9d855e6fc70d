package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quest-league/internal/config"
	"github.com/quest-league/internal/domain"
	"github.com/quest-league/internal/season"
)

// Store is the relational persistence contract the league logic depends on.
type Store interface {
	CreateAgent(ctx context.Context, agent *domain.Agent) error
	GetAgentByAPIKey(ctx context.Context, apiKey string) (*domain.Agent, error)
	GetAgentByName(ctx context.Context, name string) (*domain.Agent, error)
	UpdateAgentProfile(ctx context.Context, name string, upd domain.ProfileUpdate) (*domain.Agent, error)

	ActiveSeason(ctx context.Context) (*domain.Season, error)
	GetSeason(ctx context.Context, seasonID string) (*domain.Season, error)

	GetQuest(ctx context.Context, seasonID string, day int, questID string) (*domain.Quest, error)
	QuestForDay(ctx context.Context, seasonID string, day int) (*domain.Quest, error)
	ListQuests(ctx context.Context, seasonID string, day int) ([]domain.Quest, error)

	GetSubmission(ctx context.Context, seasonID string, day int, agentName string) (*domain.Submission, error)
	InsertSubmission(ctx context.Context, sub *domain.Submission) error
	ListAgentSubmissions(ctx context.Context, seasonID, agentName string) ([]domain.Submission, error)
	AgentSeasonStats(ctx context.Context, seasonID, agentName string) (daysCompleted, totalScore int, lastSubmissionAt time.Time, err error)

	UpsertLeaderboardEntry(ctx context.Context, seasonID, agentName string, daysCompleted, totalScore int, lastSubmissionAt time.Time) error
	TopLeaderboard(ctx context.Context, seasonID string, limit int) ([]domain.LeaderboardEntry, error)
	CountAgentsAbove(ctx context.Context, seasonID string, score int) (int, error)

	GetSettlement(ctx context.Context, seasonID, agentName string) (*domain.Settlement, error)
}

// Cache is the hot-path cache contract. Implementations may be nil-safe
// dropped entirely; the service treats a nil Cache as disabled and every
// cache failure as a miss.
type Cache interface {
	GetAgent(ctx context.Context, apiKey string) (*domain.Agent, error)
	SetAgent(ctx context.Context, agent *domain.Agent) error
	InvalidateAgent(ctx context.Context, apiKey string) error

	GetLeaderboardSnapshot(ctx context.Context, seasonID string) ([]domain.LeaderboardEntry, error)
	SetLeaderboardSnapshot(ctx context.Context, seasonID string, entries []domain.LeaderboardEntry) error
	InvalidateLeaderboard(ctx context.Context, seasonID string) error
}

// Hub pushes live updates to subscribed clients.
type Hub interface {
	BroadcastLeaderboardUpdate(seasonID string, entries []domain.LeaderboardEntry, totalParticipants int)
	BroadcastSubmissionAccepted(seasonID string, sub domain.Submission)
}

// LeagueService provides the quest-league business logic.
type LeagueService struct {
	store  Store
	cache  Cache
	hub    Hub
	config *config.LeagueConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewLeagueService creates a new league service.
func NewLeagueService(store Store, cache Cache, cfg *config.LeagueConfig, logger *slog.Logger) *LeagueService {
	return &LeagueService{
		store:  store,
		cache:  cache,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetHub attaches the broadcast hub for live leaderboard updates.
func (s *LeagueService) SetHub(hub Hub) {
	s.hub = hub
}

// Register creates a new agent and mints its API key. The key is returned
// exactly once.
func (s *LeagueService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	agent := &domain.Agent{
		Name:          req.AgentName,
		MoltbookName:  req.MoltbookName,
		Description:   req.Description,
		PayoutAddress: req.PayoutAddress,
		APIKey:        uuid.NewString(),
	}
	if err := s.store.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}

	s.logger.Info("agent registered", "agent_name", agent.Name)

	return &domain.RegisterResponse{
		Message:   "Agent registered successfully",
		AgentName: agent.Name,
		APIKey:    agent.APIKey,
		CreatedAt: agent.CreatedAt,
	}, nil
}

// Authenticate resolves an agent from its bearer credential. The key must
// be a well-formed UUID; unknown keys report Unauthorized.
func (s *LeagueService) Authenticate(ctx context.Context, apiKey string) (*domain.Agent, error) {
	if _, err := uuid.Parse(apiKey); err != nil {
		return nil, domain.NewError(domain.KindUnauthorized, "Invalid API key format")
	}

	if s.cache != nil {
		agent, err := s.cache.GetAgent(ctx, apiKey)
		if err != nil {
			s.logger.Warn("agent cache lookup failed", "error", err)
		} else if agent != nil {
			return agent, nil
		}
	}

	agent, err := s.store.GetAgentByAPIKey(ctx, apiKey)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewError(domain.KindUnauthorized, "Invalid API key")
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetAgent(ctx, agent); err != nil {
			s.logger.Warn("agent cache store failed", "error", err)
		}
	}
	return agent, nil
}

// UpdateProfile applies a self-service profile change for the
// authenticated agent.
func (s *LeagueService) UpdateProfile(ctx context.Context, agent *domain.Agent, upd domain.ProfileUpdate) (*domain.Agent, error) {
	updated, err := s.store.UpdateAgentProfile(ctx, agent.Name, upd)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateAgent(ctx, agent.APIKey); err != nil {
			s.logger.Warn("agent cache invalidation failed", "error", err)
		}
	}
	return updated, nil
}

// CurrentSeason returns the active season annotated with the current day.
// The day is recomputed on every call; it is never cached.
func (s *LeagueService) CurrentSeason(ctx context.Context) (*domain.SeasonWithDay, error) {
	active, err := s.store.ActiveSeason(ctx)
	if err != nil {
		return nil, err
	}
	resolved := season.Resolve(*active, s.now())
	return &resolved, nil
}

// TodayQuest returns the quest assigned to the current season day.
func (s *LeagueService) TodayQuest(ctx context.Context) (*domain.Quest, error) {
	active, err := s.store.ActiveSeason(ctx)
	if err != nil {
		return nil, err
	}

	day := season.CurrentDay(s.now(), active.StartUTC, active.EndUTC, active.TotalDays)
	if day < 1 {
		return nil, domain.NewError(domain.KindNotFound, "Season has not started yet")
	}
	if day > active.TotalDays {
		return nil, domain.NewError(domain.KindNotFound, "Season has ended")
	}

	return s.store.QuestForDay(ctx, active.ID, day)
}

// ListQuests returns quests filtered by optional season and day.
func (s *LeagueService) ListQuests(ctx context.Context, seasonID string, day int) ([]domain.Quest, error) {
	quests, err := s.store.ListQuests(ctx, seasonID, day)
	if err != nil {
		return nil, err
	}
	if quests == nil {
		quests = []domain.Quest{}
	}
	return quests, nil
}

// resolveSeasonID defaults an empty season id to the active season.
func (s *LeagueService) resolveSeasonID(ctx context.Context, seasonID string) (string, error) {
	if seasonID != "" {
		return seasonID, nil
	}
	active, err := s.store.ActiveSeason(ctx)
	if err != nil {
		return "", err
	}
	return active.ID, nil
}
