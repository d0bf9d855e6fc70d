package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quest-league/internal/config"
	"github.com/quest-league/internal/domain"
	"github.com/quest-league/internal/service"
	"github.com/quest-league/internal/websocket"
)

const testHash = "sha256:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

// memStore is a minimal in-memory service.Store for endpoint tests. The
// season window brackets the real clock so submissions land mid-season.
type memStore struct {
	agents      map[string]*domain.Agent
	byAPIKey    map[string]*domain.Agent
	season      *domain.Season
	quests      map[string]*domain.Quest      // day/questID
	submissions map[string]*domain.Submission // day/agentName
	board       map[string]domain.LeaderboardEntry
	nextSubID   int64
}

func newMemStore() *memStore {
	now := time.Now().UTC()
	start := now.Add(-2 * 24 * time.Hour).Truncate(24 * time.Hour)
	s := &memStore{
		agents:      make(map[string]*domain.Agent),
		byAPIKey:    make(map[string]*domain.Agent),
		quests:      make(map[string]*domain.Quest),
		submissions: make(map[string]*domain.Submission),
		board:       make(map[string]domain.LeaderboardEntry),
		season: &domain.Season{
			ID:        "S1",
			Sponsor:   "f(x) Protocol",
			StartUTC:  start,
			EndUTC:    start.Add(7 * 24 * time.Hour),
			TotalDays: 7,
			Status:    domain.SeasonStatusActive,
		},
	}
	for day := 1; day <= 7; day++ {
		questID := fmt.Sprintf("D%d-QUEST", day)
		s.quests[fmt.Sprintf("%d/%s", day, questID)] = &domain.Quest{
			SeasonID: "S1", QuestID: questID, Day: day,
		}
	}
	return s
}

func (m *memStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	if _, ok := m.agents[agent.Name]; ok {
		return domain.NewError(domain.KindConflict, "Agent name already registered")
	}
	agent.CreatedAt = time.Now().UTC()
	m.agents[agent.Name] = agent
	m.byAPIKey[agent.APIKey] = agent
	return nil
}

func (m *memStore) GetAgentByAPIKey(ctx context.Context, apiKey string) (*domain.Agent, error) {
	if a, ok := m.byAPIKey[apiKey]; ok {
		return a, nil
	}
	return nil, domain.NewError(domain.KindNotFound, "Agent not found")
}

func (m *memStore) GetAgentByName(ctx context.Context, name string) (*domain.Agent, error) {
	if a, ok := m.agents[name]; ok {
		return a, nil
	}
	return nil, domain.NewError(domain.KindNotFound, "Agent not found")
}

func (m *memStore) UpdateAgentProfile(ctx context.Context, name string, upd domain.ProfileUpdate) (*domain.Agent, error) {
	a, ok := m.agents[name]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "Agent not found")
	}
	if upd.Description != nil {
		a.Description = *upd.Description
	}
	if upd.PayoutAddress != nil {
		a.PayoutAddress = *upd.PayoutAddress
	}
	return a, nil
}

func (m *memStore) ActiveSeason(ctx context.Context) (*domain.Season, error) {
	return m.season, nil
}

func (m *memStore) GetSeason(ctx context.Context, seasonID string) (*domain.Season, error) {
	if seasonID == m.season.ID {
		return m.season, nil
	}
	return nil, domain.NewError(domain.KindNotFound, "Season not found")
}

func (m *memStore) GetQuest(ctx context.Context, seasonID string, day int, questID string) (*domain.Quest, error) {
	if q, ok := m.quests[fmt.Sprintf("%d/%s", day, questID)]; ok && seasonID == m.season.ID {
		return q, nil
	}
	return nil, domain.NewError(domain.KindNotFound, "Quest not found for this season/day")
}

func (m *memStore) QuestForDay(ctx context.Context, seasonID string, day int) (*domain.Quest, error) {
	for _, q := range m.quests {
		if q.Day == day {
			return q, nil
		}
	}
	return nil, domain.NewError(domain.KindNotFound, "No quest found for today")
}

func (m *memStore) ListQuests(ctx context.Context, seasonID string, day int) ([]domain.Quest, error) {
	var quests []domain.Quest
	for _, q := range m.quests {
		if day == 0 || q.Day == day {
			quests = append(quests, *q)
		}
	}
	return quests, nil
}

func (m *memStore) GetSubmission(ctx context.Context, seasonID string, day int, agentName string) (*domain.Submission, error) {
	if sub, ok := m.submissions[fmt.Sprintf("%d/%s", day, agentName)]; ok {
		return sub, nil
	}
	return nil, domain.NewError(domain.KindNotFound, "Submission not found")
}

func (m *memStore) InsertSubmission(ctx context.Context, sub *domain.Submission) error {
	key := fmt.Sprintf("%d/%s", sub.Day, sub.AgentName)
	if existing, ok := m.submissions[key]; ok {
		return &domain.DuplicateSubmissionError{SubmissionID: existing.ID, Status: existing.Status}
	}
	m.nextSubID++
	sub.ID = m.nextSubID
	sub.SubmittedAt = time.Now().UTC()
	m.submissions[key] = sub
	return nil
}

func (m *memStore) ListAgentSubmissions(ctx context.Context, seasonID, agentName string) ([]domain.Submission, error) {
	var subs []domain.Submission
	for day := 1; day <= 7; day++ {
		if sub, ok := m.submissions[fmt.Sprintf("%d/%s", day, agentName)]; ok {
			subs = append(subs, *sub)
		}
	}
	return subs, nil
}

func (m *memStore) AgentSeasonStats(ctx context.Context, seasonID, agentName string) (int, int, time.Time, error) {
	days, score := 0, 0
	var last time.Time
	for _, sub := range m.submissions {
		if sub.AgentName != agentName {
			continue
		}
		days++
		score += sub.Score
		if sub.SubmittedAt.After(last) {
			last = sub.SubmittedAt
		}
	}
	return days, score, last, nil
}

func (m *memStore) UpsertLeaderboardEntry(ctx context.Context, seasonID, agentName string, daysCompleted, totalScore int, lastSubmissionAt time.Time) error {
	m.board[agentName] = domain.LeaderboardEntry{
		AgentName:        agentName,
		DaysCompleted:    daysCompleted,
		TotalScore:       totalScore,
		LastSubmissionAt: lastSubmissionAt,
	}
	return nil
}

func (m *memStore) TopLeaderboard(ctx context.Context, seasonID string, limit int) ([]domain.LeaderboardEntry, error) {
	var entries []domain.LeaderboardEntry
	for _, e := range m.board {
		entries = append(entries, e)
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *memStore) CountAgentsAbove(ctx context.Context, seasonID string, score int) (int, error) {
	count := 0
	for _, e := range m.board {
		if e.TotalScore > score {
			count++
		}
	}
	return count, nil
}

func (m *memStore) GetSettlement(ctx context.Context, seasonID, agentName string) (*domain.Settlement, error) {
	return nil, domain.NewError(domain.KindNotFound, "Settlement not yet available or agent not eligible")
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.LeagueConfig{
		ReceiptURLPrefix: "https://www.moltbook.com/",
		DefaultLimit:     50,
		MaxLimit:         100,
		EligibilityDays:  7,
	}

	svc := service.NewLeagueService(newMemStore(), nil, cfg, logger)
	h := NewHandler(svc, websocket.NewHub(logger), logger)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, apiKey string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && err != io.EOF {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func register(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents/register", "", map[string]string{
		"agent_name":    name,
		"moltbook_name": name + "_mb",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, body %v", resp.StatusCode, body)
	}
	key, _ := body["api_key"].(string)
	if key == "" {
		t.Fatal("register returned no api_key")
	}
	return key
}

func submitBody(name string, day int) map[string]interface{} {
	return map[string]interface{}{
		"season_id":        "S1",
		"day":              day,
		"quest_id":         fmt.Sprintf("D%d-QUEST", day),
		"agent_name":       name,
		"moltbook_post_id": fmt.Sprintf("%s-%d", name, day),
		"receipt_url":      fmt.Sprintf("https://www.moltbook.com/p/%s-%d", name, day),
		"content_hash":     testHash,
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/api/v1/health"} {
		resp, body := doJSON(t, http.MethodGet, srv.URL+path, "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
		if body["status"] != "ok" {
			t.Errorf("%s status field = %v", path, body["status"])
		}
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	paths := []string{"/api/v1/status", "/api/v1/leaderboard", "/api/v1/season/current", "/api/v1/agents/me"}
	for _, path := range paths {
		resp, body := doJSON(t, http.MethodGet, srv.URL+path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s without auth: status = %d, want 401", path, resp.StatusCode)
		}
		if body["error"] != "Unauthorized" {
			t.Errorf("%s error field = %v", path, body["error"])
		}
	}

	// garbage bearer token
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/status", "not-a-uuid", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage key status = %d, want 401", resp.StatusCode)
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "Invalid API key format") {
		t.Errorf("garbage key message = %v", body["message"])
	}
}

func TestRegisterEndpoint(t *testing.T) {
	srv := newTestServer(t)

	key := register(t, srv, "alice")
	if key == "" {
		t.Fatal("empty api key")
	}

	// same name again conflicts
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents/register", "", map[string]string{
		"agent_name":    "alice",
		"moltbook_name": "other_mb",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", resp.StatusCode)
	}
	if body["error"] != "Conflict" {
		t.Errorf("duplicate register error = %v", body["error"])
	}

	// missing moltbook_name
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents/register", "", map[string]string{
		"agent_name": "bob",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("incomplete register status = %d, want 400", resp.StatusCode)
	}
}

func TestSubmitEndpoint(t *testing.T) {
	srv := newTestServer(t)
	key := register(t, srv, "alice")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/submit", key, submitBody("alice", 3))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d, body %v", resp.StatusCode, body)
	}
	if body["message"] != "Submission received and verified" {
		t.Errorf("message = %v", body["message"])
	}
	sub, _ := body["submission"].(map[string]interface{})
	if sub == nil || sub["status"] != "verified" {
		t.Errorf("submission = %v", body["submission"])
	}

	// resubmission for the same day reports the existing submission
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/submit", key, submitBody("alice", 3))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", resp.StatusCode)
	}
	if body["error"] != "Conflict" || body["status"] != "verified" {
		t.Errorf("conflict body = %v", body)
	}
	if id, ok := body["submission_id"].(float64); !ok || id != 1 {
		t.Errorf("submission_id = %v, want 1", body["submission_id"])
	}

	// malformed content hash
	bad := submitBody("alice", 4)
	bad["content_hash"] = "sha256:nope"
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/submit", key, bad)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad hash status = %d, want 400", resp.StatusCode)
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "content_hash") {
		t.Errorf("bad hash message = %v", body["message"])
	}

	// submitting for someone else
	other := submitBody("bob", 5)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/submit", key, other)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("mismatched agent status = %d, want 403", resp.StatusCode)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv := newTestServer(t)

	aliceKey := register(t, srv, "alice")
	bobKey := register(t, srv, "bob")

	for day := 1; day <= 2; day++ {
		if resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/submit", aliceKey, submitBody("alice", day)); resp.StatusCode != http.StatusCreated {
			t.Fatalf("alice day %d: %d %v", day, resp.StatusCode, body)
		}
	}
	if resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/submit", bobKey, submitBody("bob", 1)); resp.StatusCode != http.StatusCreated {
		t.Fatalf("bob day 1: %d %v", resp.StatusCode, body)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/leaderboard", aliceKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leaderboard status = %d", resp.StatusCode)
	}
	if body["season_id"] != "S1" {
		t.Errorf("season_id = %v", body["season_id"])
	}
	entries, _ := body["leaderboard"].([]interface{})
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	first, _ := entries[0].(map[string]interface{})
	if first["agent_name"] != "alice" || first["rank"] != float64(1) {
		t.Errorf("first entry = %v, want alice rank 1", first)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)
	key := register(t, srv, "alice")

	if resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/submit", key, submitBody("alice", 2)); resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %v", resp.StatusCode, body)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/status", key, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["eligible"] != false {
		t.Errorf("eligible = %v, want false", body["eligible"])
	}
	if body["days_completed"] != float64(1) {
		t.Errorf("days_completed = %v, want 1", body["days_completed"])
	}
	missing, _ := body["missing_days"].([]interface{})
	if len(missing) != 6 {
		t.Errorf("missing_days = %v, want 6 entries", missing)
	}

	// another agent's status is off limits
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/status?agent_name=bob", key, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("other agent status = %d, want 403", resp.StatusCode)
	}
}

func TestSeasonAndQuestEndpoints(t *testing.T) {
	srv := newTestServer(t)
	key := register(t, srv, "alice")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/season/current", key, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("season status = %d", resp.StatusCode)
	}
	if body["season_id"] != "S1" {
		t.Errorf("season_id = %v", body["season_id"])
	}
	if day, ok := body["current_day"].(float64); !ok || day < 1 || day > 7 {
		t.Errorf("current_day = %v, want in-window day", body["current_day"])
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/quests/today", key, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("today quest status = %d, body %v", resp.StatusCode, body)
	}
	if body["quest_id"] == "" {
		t.Error("today quest missing quest_id")
	}
}

func TestSettlementEndpoint(t *testing.T) {
	srv := newTestServer(t)
	key := register(t, srv, "alice")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/settlement", key, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("settlement status = %d", resp.StatusCode)
	}
	if body["status"] != domain.SettlementStatusNotEligible {
		t.Errorf("status = %v, want not_eligible", body["status"])
	}
}

func TestProfileEndpoints(t *testing.T) {
	srv := newTestServer(t)
	key := register(t, srv, "alice")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/agents/me", key, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile status = %d", resp.StatusCode)
	}
	if body["agent_name"] != "alice" {
		t.Errorf("agent_name = %v", body["agent_name"])
	}
	if _, leaked := body["api_key"]; leaked {
		t.Error("profile response leaks api_key")
	}

	resp, body = doJSON(t, http.MethodPatch, srv.URL+"/api/v1/agents/me", key, map[string]string{
		"description": "updated",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}
	if body["description"] != "updated" {
		t.Errorf("description = %v, want updated", body["description"])
	}
}
