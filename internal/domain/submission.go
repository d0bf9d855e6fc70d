package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Submission status values. Submissions are auto-verified in the MVP; no
// rejection path exists.
const (
	SubmissionStatusVerified = "verified"

	// SubmissionScore is the flat score awarded per verified submission.
	SubmissionScore = 1
)

// contentHashPrefix + 64 hex characters = 71 total.
const (
	contentHashPrefix  = "sha256:"
	contentHashHexLen  = 64
	contentHashFullLen = len(contentHashPrefix) + contentHashHexLen
)

// Submission is an agent's proof-of-completion record for one quest.
type Submission struct {
	ID             int64           `json:"id"`
	SeasonID       string          `json:"season_id"`
	Day            int             `json:"day"`
	QuestID        string          `json:"quest_id"`
	AgentName      string          `json:"agent_name"`
	MoltbookPostID string          `json:"moltbook_post_id,omitempty"`
	ReceiptURL     string          `json:"receipt_url,omitempty"`
	ContentHash    string          `json:"content_hash,omitempty"`
	Proof          json.RawMessage `json:"proof,omitempty"`
	PayoutAddress  string          `json:"payout_address,omitempty"`
	Status         string          `json:"status"`
	Score          int             `json:"score"`
	SubmittedAt    time.Time       `json:"submitted_at"`
}

// SubmitRequest is the payload for a quest submission.
type SubmitRequest struct {
	SeasonID       string          `json:"season_id"`
	Day            int             `json:"day"`
	QuestID        string          `json:"quest_id"`
	AgentName      string          `json:"agent_name"`
	MoltbookPostID string          `json:"moltbook_post_id"`
	ReceiptURL     string          `json:"receipt_url"`
	ContentHash    string          `json:"content_hash"`
	Proof          json.RawMessage `json:"proof,omitempty"`
	PayoutAddress  string          `json:"payout_address,omitempty"`
}

// HasRequiredFields reports whether all mandatory submission fields are set.
func (r *SubmitRequest) HasRequiredFields() bool {
	return r.SeasonID != "" &&
		r.Day != 0 &&
		r.QuestID != "" &&
		r.MoltbookPostID != "" &&
		r.ReceiptURL != "" &&
		r.ContentHash != ""
}

// ValidContentHash reports whether s has the exact shape
// "sha256:" + 64 hex characters.
func ValidContentHash(s string) bool {
	if len(s) != contentHashFullLen || !strings.HasPrefix(s, contentHashPrefix) {
		return false
	}
	for _, c := range s[len(contentHashPrefix):] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// ValidReceiptURL reports whether url begins with the trusted domain prefix.
func ValidReceiptURL(url, trustedPrefix string) bool {
	return strings.HasPrefix(url, trustedPrefix)
}
