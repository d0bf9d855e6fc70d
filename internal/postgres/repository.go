package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quest-league/internal/config"
	"github.com/quest-league/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations; it is the authoritative duplicate signal for agents and
// submissions.
const uniqueViolation = "23505"

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			agent_name VARCHAR(64) PRIMARY KEY,
			moltbook_name VARCHAR(64) NOT NULL,
			description TEXT,
			payout_address TEXT,
			api_key VARCHAR(36) NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS seasons (
			season_id VARCHAR(64) PRIMARY KEY,
			sponsor TEXT NOT NULL,
			theme TEXT NOT NULL,
			reward_pool_fxusd NUMERIC(18,2) NOT NULL DEFAULT 0,
			start_utc TIMESTAMPTZ NOT NULL,
			end_utc TIMESTAMPTZ NOT NULL,
			total_days INT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'active'
		)`,
		`CREATE TABLE IF NOT EXISTS quests (
			season_id VARCHAR(64) NOT NULL REFERENCES seasons(season_id) ON DELETE CASCADE,
			quest_id VARCHAR(64) NOT NULL,
			day INT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			requirements TEXT NOT NULL,
			PRIMARY KEY (season_id, quest_id),
			UNIQUE (season_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id BIGSERIAL PRIMARY KEY,
			season_id VARCHAR(64) NOT NULL REFERENCES seasons(season_id),
			day INT NOT NULL,
			quest_id VARCHAR(64) NOT NULL,
			agent_name VARCHAR(64) NOT NULL REFERENCES agents(agent_name),
			moltbook_post_id TEXT NOT NULL,
			receipt_url TEXT NOT NULL,
			content_hash VARCHAR(71) NOT NULL,
			proof JSONB NOT NULL DEFAULT '[]',
			payout_address TEXT,
			status VARCHAR(16) NOT NULL,
			score INT NOT NULL,
			submitted_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (season_id, day, agent_name)
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_cache (
			season_id VARCHAR(64) NOT NULL,
			agent_name VARCHAR(64) NOT NULL,
			days_completed INT NOT NULL,
			total_score INT NOT NULL,
			last_submission_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (season_id, agent_name)
		)`,
		`CREATE TABLE IF NOT EXISTS settlements (
			season_id VARCHAR(64) NOT NULL,
			agent_name VARCHAR(64) NOT NULL,
			amount_fxusd NUMERIC(18,2) NOT NULL,
			status VARCHAR(32) NOT NULL,
			payout_tx_hash TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finalized_at TIMESTAMPTZ,
			PRIMARY KEY (season_id, agent_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_season_agent ON submissions(season_id, agent_name)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_cache_score ON leaderboard_cache(season_id, total_score DESC)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// CreateAgent registers a new agent. A duplicate agent name maps to Conflict.
func (r *Repository) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	query := `
		INSERT INTO agents (agent_name, moltbook_name, description, payout_address, api_key)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		agent.Name,
		agent.MoltbookName,
		agent.Description,
		agent.PayoutAddress,
		agent.APIKey,
	).Scan(&agent.CreatedAt, &agent.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewError(domain.KindConflict, "Agent name already registered")
		}
		return fmt.Errorf("creating agent: %w", err)
	}
	return nil
}

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var a domain.Agent
	var description, payoutAddress *string
	err := row.Scan(
		&a.Name,
		&a.MoltbookName,
		&description,
		&payoutAddress,
		&a.APIKey,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if description != nil {
		a.Description = *description
	}
	if payoutAddress != nil {
		a.PayoutAddress = *payoutAddress
	}
	return &a, nil
}

const agentColumns = `agent_name, moltbook_name, description, payout_address, api_key, created_at, updated_at`

// GetAgentByAPIKey looks up an agent by its credential.
func (r *Repository) GetAgentByAPIKey(ctx context.Context, apiKey string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE api_key = $1`
	agent, err := scanAgent(r.pool.QueryRow(ctx, query, apiKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "agent not found")
		}
		return nil, fmt.Errorf("getting agent by api key: %w", err)
	}
	return agent, nil
}

// GetAgentByName looks up an agent by name.
func (r *Repository) GetAgentByName(ctx context.Context, name string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE agent_name = $1`
	agent, err := scanAgent(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "agent not found")
		}
		return nil, fmt.Errorf("getting agent by name: %w", err)
	}
	return agent, nil
}

// UpdateAgentProfile applies a self-service profile change. Nil fields keep
// their stored values.
func (r *Repository) UpdateAgentProfile(ctx context.Context, name string, upd domain.ProfileUpdate) (*domain.Agent, error) {
	query := `
		UPDATE agents
		SET description = COALESCE($1, description),
		    payout_address = COALESCE($2, payout_address),
		    updated_at = CURRENT_TIMESTAMP
		WHERE agent_name = $3
		RETURNING ` + agentColumns
	agent, err := scanAgent(r.pool.QueryRow(ctx, query, upd.Description, upd.PayoutAddress, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "agent not found")
		}
		return nil, fmt.Errorf("updating agent profile: %w", err)
	}
	return agent, nil
}

const seasonColumns = `season_id, sponsor, theme, reward_pool_fxusd, start_utc, end_utc, total_days, status`

func scanSeason(row pgx.Row) (*domain.Season, error) {
	var s domain.Season
	err := row.Scan(
		&s.ID,
		&s.Sponsor,
		&s.Theme,
		&s.RewardPool,
		&s.StartUTC,
		&s.EndUTC,
		&s.TotalDays,
		&s.Status,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ActiveSeason returns the active season. When multiple seasons are active
// the most recently started one wins.
func (r *Repository) ActiveSeason(ctx context.Context) (*domain.Season, error) {
	query := `
		SELECT ` + seasonColumns + `
		FROM seasons
		WHERE status = 'active'
		ORDER BY start_utc DESC
		LIMIT 1
	`
	s, err := scanSeason(r.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "No active season found")
		}
		return nil, fmt.Errorf("getting active season: %w", err)
	}
	return s, nil
}

// GetSeason returns a season by id.
func (r *Repository) GetSeason(ctx context.Context, seasonID string) (*domain.Season, error) {
	query := `SELECT ` + seasonColumns + ` FROM seasons WHERE season_id = $1`
	s, err := scanSeason(r.pool.QueryRow(ctx, query, seasonID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "Season not found")
		}
		return nil, fmt.Errorf("getting season: %w", err)
	}
	return s, nil
}

const questColumns = `season_id, quest_id, day, title, description, requirements`

func scanQuest(row pgx.Row) (*domain.Quest, error) {
	var q domain.Quest
	err := row.Scan(&q.SeasonID, &q.QuestID, &q.Day, &q.Title, &q.Description, &q.Requirements)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuest returns the quest matching the exact (season, day, quest) triple.
func (r *Repository) GetQuest(ctx context.Context, seasonID string, day int, questID string) (*domain.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests WHERE season_id = $1 AND day = $2 AND quest_id = $3`
	q, err := scanQuest(r.pool.QueryRow(ctx, query, seasonID, day, questID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "Quest not found for this season/day")
		}
		return nil, fmt.Errorf("getting quest: %w", err)
	}
	return q, nil
}

// QuestForDay returns the quest assigned to a season day.
func (r *Repository) QuestForDay(ctx context.Context, seasonID string, day int) (*domain.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests WHERE season_id = $1 AND day = $2`
	q, err := scanQuest(r.pool.QueryRow(ctx, query, seasonID, day))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "No quest found for today")
		}
		return nil, fmt.Errorf("getting quest for day: %w", err)
	}
	return q, nil
}

// ListQuests returns quests ordered by day, optionally filtered by season
// and day. A zero day means no day filter.
func (r *Repository) ListQuests(ctx context.Context, seasonID string, day int) ([]domain.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests WHERE 1=1`
	args := []interface{}{}

	if seasonID != "" {
		args = append(args, seasonID)
		query += fmt.Sprintf(" AND season_id = $%d", len(args))
	}
	if day != 0 {
		args = append(args, day)
		query += fmt.Sprintf(" AND day = $%d", len(args))
	}
	query += " ORDER BY day ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing quests: %w", err)
	}
	defer rows.Close()

	var quests []domain.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning quest: %w", err)
		}
		quests = append(quests, *q)
	}
	return quests, rows.Err()
}

const submissionColumns = `id, season_id, day, quest_id, agent_name, moltbook_post_id, receipt_url, content_hash, proof, payout_address, status, score, submitted_at`

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var s domain.Submission
	var payoutAddress *string
	err := row.Scan(
		&s.ID,
		&s.SeasonID,
		&s.Day,
		&s.QuestID,
		&s.AgentName,
		&s.MoltbookPostID,
		&s.ReceiptURL,
		&s.ContentHash,
		&s.Proof,
		&payoutAddress,
		&s.Status,
		&s.Score,
		&s.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	if payoutAddress != nil {
		s.PayoutAddress = *payoutAddress
	}
	return &s, nil
}

// GetSubmission returns the submission for (season, day, agent).
func (r *Repository) GetSubmission(ctx context.Context, seasonID string, day int, agentName string) (*domain.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE season_id = $1 AND day = $2 AND agent_name = $3`
	s, err := scanSubmission(r.pool.QueryRow(ctx, query, seasonID, day, agentName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "submission not found")
		}
		return nil, fmt.Errorf("getting submission: %w", err)
	}
	return s, nil
}

// InsertSubmission persists a new submission, filling in its id and
// timestamp. The unique constraint on (season_id, day, agent_name) is the
// duplicate guard; a violation is reported as a DuplicateSubmissionError
// carrying the existing row's identity.
func (r *Repository) InsertSubmission(ctx context.Context, sub *domain.Submission) error {
	query := `
		INSERT INTO submissions
			(season_id, day, quest_id, agent_name, moltbook_post_id, receipt_url, content_hash, proof, payout_address, status, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
		RETURNING id, submitted_at
	`
	err := r.pool.QueryRow(ctx, query,
		sub.SeasonID,
		sub.Day,
		sub.QuestID,
		sub.AgentName,
		sub.MoltbookPostID,
		sub.ReceiptURL,
		sub.ContentHash,
		sub.Proof,
		sub.PayoutAddress,
		sub.Status,
		sub.Score,
	).Scan(&sub.ID, &sub.SubmittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := r.GetSubmission(ctx, sub.SeasonID, sub.Day, sub.AgentName)
			if lookupErr != nil {
				return fmt.Errorf("looking up conflicting submission: %w", lookupErr)
			}
			return &domain.DuplicateSubmissionError{
				SubmissionID: existing.ID,
				Status:       existing.Status,
			}
		}
		return fmt.Errorf("inserting submission: %w", err)
	}
	return nil
}

// ListAgentSubmissions returns an agent's submissions for a season, ordered
// by day.
func (r *Repository) ListAgentSubmissions(ctx context.Context, seasonID, agentName string) ([]domain.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE season_id = $1 AND agent_name = $2
		ORDER BY day ASC
	`
	rows, err := r.pool.Query(ctx, query, seasonID, agentName)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// AgentSeasonStats aggregates an agent's verified submissions for a season.
func (r *Repository) AgentSeasonStats(ctx context.Context, seasonID, agentName string) (daysCompleted, totalScore int, lastSubmissionAt time.Time, err error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(score), 0),
		       COALESCE(MAX(submitted_at), to_timestamp(0))
		FROM submissions
		WHERE season_id = $1 AND agent_name = $2 AND status = 'verified'
	`
	err = r.pool.QueryRow(ctx, query, seasonID, agentName).Scan(&daysCompleted, &totalScore, &lastSubmissionAt)
	if err != nil {
		err = fmt.Errorf("aggregating submission stats: %w", err)
	}
	return daysCompleted, totalScore, lastSubmissionAt, err
}

// UpsertLeaderboardEntry overwrites the cache row for (season, agent). This
// is the only write path into leaderboard_cache besides the reconciler,
// which calls the same recompute.
func (r *Repository) UpsertLeaderboardEntry(ctx context.Context, seasonID, agentName string, daysCompleted, totalScore int, lastSubmissionAt time.Time) error {
	query := `
		INSERT INTO leaderboard_cache
			(season_id, agent_name, days_completed, total_score, last_submission_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		ON CONFLICT (season_id, agent_name)
		DO UPDATE SET
			days_completed = $3,
			total_score = $4,
			last_submission_at = $5,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.pool.Exec(ctx, query, seasonID, agentName, daysCompleted, totalScore, lastSubmissionAt); err != nil {
		return fmt.Errorf("upserting leaderboard entry: %w", err)
	}
	return nil
}

// TopLeaderboard returns up to limit cache rows in ranking order. Rank
// numbers are assigned by the caller.
func (r *Repository) TopLeaderboard(ctx context.Context, seasonID string, limit int) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT agent_name, days_completed, total_score, last_submission_at
		FROM leaderboard_cache
		WHERE season_id = $1
		ORDER BY total_score DESC, days_completed DESC, last_submission_at ASC, agent_name ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, seasonID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.AgentName, &e.DaysCompleted, &e.TotalScore, &e.LastSubmissionAt); err != nil {
			return nil, fmt.Errorf("scanning leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountAgentsAbove counts agents with a strictly greater total score.
func (r *Repository) CountAgentsAbove(ctx context.Context, seasonID string, score int) (int, error) {
	query := `SELECT COUNT(*) FROM leaderboard_cache WHERE season_id = $1 AND total_score > $2`
	var count int
	if err := r.pool.QueryRow(ctx, query, seasonID, score).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting higher-scored agents: %w", err)
	}
	return count, nil
}

// GetSettlement returns the payout record for (season, agent).
func (r *Repository) GetSettlement(ctx context.Context, seasonID, agentName string) (*domain.Settlement, error) {
	query := `
		SELECT season_id, agent_name, amount_fxusd, status, payout_tx_hash, created_at, finalized_at
		FROM settlements
		WHERE season_id = $1 AND agent_name = $2
	`
	var s domain.Settlement
	var txHash *string
	err := r.pool.QueryRow(ctx, query, seasonID, agentName).Scan(
		&s.SeasonID,
		&s.AgentName,
		&s.AmountFxUSD,
		&s.Status,
		&txHash,
		&s.CreatedAt,
		&s.FinalizedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "Settlement not yet available or agent not eligible")
		}
		return nil, fmt.Errorf("getting settlement: %w", err)
	}
	if txHash != nil {
		s.PayoutTxHash = *txHash
	}
	return &s, nil
}

// ListSeasonIDs returns every season id.
func (r *Repository) ListSeasonIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT season_id FROM seasons ORDER BY start_utc DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing seasons: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning season id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SeasonAgents returns the distinct agents that have submitted in a season.
func (r *Repository) SeasonAgents(ctx context.Context, seasonID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT agent_name FROM submissions WHERE season_id = $1`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("listing season agents: %w", err)
	}
	defer rows.Close()

	var agents []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning agent name: %w", err)
		}
		agents = append(agents, name)
	}
	return agents, rows.Err()
}
