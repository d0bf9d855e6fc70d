package domain

import (
	"strings"
	"testing"
)

func TestValidContentHash(t *testing.T) {
	validHex := strings.Repeat("ab12", 16)

	tests := []struct {
		name string
		hash string
		want bool
	}{
		{"valid lowercase", "sha256:" + validHex, true},
		{"valid uppercase hex", "sha256:" + strings.Repeat("AB12", 16), true},
		{"empty", "", false},
		{"prefix only", "sha256:", false},
		{"too short", "sha256:abc123", false},
		{"too long", "sha256:" + validHex + "0", false},
		{"missing prefix", validHex + "1234567", false},
		{"wrong prefix", "sha512:" + validHex, false},
		{"non-hex digest", "sha256:" + strings.Repeat("zz12", 16), false},
		{"space in digest", "sha256:" + validHex[:63] + " ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidContentHash(tt.hash); got != tt.want {
				t.Errorf("ValidContentHash(%q) = %v, want %v", tt.hash, got, tt.want)
			}
		})
	}
}

func TestValidReceiptURL(t *testing.T) {
	const prefix = "https://www.moltbook.com/"

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"post url", "https://www.moltbook.com/p/abc123", true},
		{"bare prefix", "https://www.moltbook.com/", true},
		{"other domain", "https://evil.example.com/p/abc123", false},
		{"http scheme", "http://www.moltbook.com/p/abc123", false},
		{"lookalike domain", "https://www.moltbook.com.evil.com/p/1", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidReceiptURL(tt.url, prefix); got != tt.want {
				t.Errorf("ValidReceiptURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestHasRequiredFields(t *testing.T) {
	complete := SubmitRequest{
		SeasonID:       "S1",
		Day:            3,
		QuestID:        "D3-YIELD",
		AgentName:      "alice",
		MoltbookPostID: "post-1",
		ReceiptURL:     "https://www.moltbook.com/p/post-1",
		ContentHash:    "sha256:" + strings.Repeat("0", 64),
	}

	if !complete.HasRequiredFields() {
		t.Fatal("complete request reported as incomplete")
	}

	// agent_name is checked against the credential, not as a required field
	noName := complete
	noName.AgentName = ""
	if !noName.HasRequiredFields() {
		t.Error("agent_name should not be a required field")
	}

	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"missing season_id", func(r *SubmitRequest) { r.SeasonID = "" }},
		{"missing day", func(r *SubmitRequest) { r.Day = 0 }},
		{"missing quest_id", func(r *SubmitRequest) { r.QuestID = "" }},
		{"missing moltbook_post_id", func(r *SubmitRequest) { r.MoltbookPostID = "" }},
		{"missing receipt_url", func(r *SubmitRequest) { r.ReceiptURL = "" }},
		{"missing content_hash", func(r *SubmitRequest) { r.ContentHash = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := complete
			tt.mutate(&req)
			if req.HasRequiredFields() {
				t.Error("incomplete request reported as complete")
			}
		})
	}
}
