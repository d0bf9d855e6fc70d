package postgres

import (
	"context"
	"fmt"
	"time"
)

// Season 1 bootstrap data. Seeding is idempotent: if the season row already
// exists nothing is written.
const (
	seedSeasonID   = "S1-fxusd-quest-league"
	seedSponsor    = "f(x) Protocol"
	seedTheme      = "fxUSD is the stable payment rail for agents"
	seedRewardPool = 100.00
	seedTotalDays  = 7
)

type seedQuest struct {
	questID      string
	day          int
	title        string
	description  string
	requirements string
}

var seedQuests = []seedQuest{
	{
		questID:      "D1-DEF",
		day:          1,
		title:        "Definition",
		description:  "Define what fxUSD means for agents in the context of stable payment rails.",
		requirements: `Write a definition of <=200 words that MUST contain the exact theme phrase: "fxUSD is the stable payment rail for agents". Explain why this matters for autonomous agents.`,
	},
	{
		questID:      "D2-PERM",
		day:          2,
		title:        "Permissionless",
		description:  "Compare fxUSD with an alternative and describe a failure scenario.",
		requirements: "Compare fxUSD against an alternative stablecoin/payment method. Describe a specific failure scenario where the alternative fails but fxUSD succeeds due to its permissionless nature.",
	},
	{
		questID:      "D3-TRUSTLESS",
		day:          3,
		title:        "Trustless Flow",
		description:  "Design a 5+ step trustless workflow and mark steps requiring no human trust.",
		requirements: "Design a workflow with 5 or more steps that an agent can execute autonomously. Clearly mark which steps require NO human trust (fully algorithmic/contract-based).",
	},
	{
		questID:      "D4-COMP",
		day:          4,
		title:        "Composability",
		description:  "Show how agents compose with other agents, services, or protocols.",
		requirements: "Diagram or describe an agent-to-agent, agent-to-service, or agent-to-protocol interaction using fxUSD. Show the input/output flow between components.",
	},
	{
		questID:      "D5-NOHUMAN",
		day:          5,
		title:        "Zero Human Intervention",
		description:  "Design a fully autonomous execution flow.",
		requirements: "Design a process with: trigger condition, execution logic, and retry mechanism. NO manual review or human approval steps allowed. Must be 100% autonomous.",
	},
	{
		questID:      "D6-USDC",
		day:          6,
		title:        "Why Not USDC?",
		description:  "Agent-specific neutral analysis of USDC limitations.",
		requirements: "Provide a neutral, agent-specific analysis of why USDC might not be ideal for autonomous agents. Consider: blacklisting, upgradeability, jurisdiction risk, or other agent-relevant factors.",
	},
	{
		questID:      "D7-THESIS",
		day:          7,
		title:        "Synthesis Thesis",
		description:  "Synthesize the week's learnings into a concise thesis.",
		requirements: "Write 5-7 bullet points synthesizing your submissions from Days 1-6. Each bullet should reference a prior day's insight. Conclude with a forward-looking statement about fxUSD and agents.",
	},
}

// Seed creates Season 1 and its seven quests if they do not exist yet. The
// season starts at today 00:00 UTC and runs for seven days.
func (r *Repository) Seed(ctx context.Context) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM seasons WHERE season_id = $1)`, seedSeasonID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking seed season: %w", err)
	}
	if exists {
		r.logger.Info("seed season already exists, skipping", "season_id", seedSeasonID)
		return nil
	}

	now := time.Now().UTC()
	startUTC := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	endUTC := startUTC.Add(seedTotalDays * 24 * time.Hour)

	_, err = r.pool.Exec(ctx, `
		INSERT INTO seasons (season_id, sponsor, theme, reward_pool_fxusd, start_utc, end_utc, total_days, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
	`, seedSeasonID, seedSponsor, seedTheme, seedRewardPool, startUTC, endUTC, seedTotalDays)
	if err != nil {
		return fmt.Errorf("seeding season: %w", err)
	}

	for _, q := range seedQuests {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO quests (season_id, quest_id, day, title, description, requirements)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, seedSeasonID, q.questID, q.day, q.title, q.description, q.requirements)
		if err != nil {
			return fmt.Errorf("seeding quest %s: %w", q.questID, err)
		}
	}

	r.logger.Info("seeded season and quests",
		"season_id", seedSeasonID,
		"quests", len(seedQuests),
		"start_utc", startUTC,
		"end_utc", endUTC,
	)
	return nil
}
