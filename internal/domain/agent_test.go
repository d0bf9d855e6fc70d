package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRegisterRequestValidate(t *testing.T) {
	long := strings.Repeat("x", MaxNameLength+1)

	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"valid", RegisterRequest{AgentName: "alice", MoltbookName: "alice_mb"}, false},
		{"valid with optional fields", RegisterRequest{AgentName: "alice", MoltbookName: "alice_mb", Description: "d", PayoutAddress: "0xabc"}, false},
		{"max length names", RegisterRequest{AgentName: strings.Repeat("a", MaxNameLength), MoltbookName: strings.Repeat("b", MaxNameLength)}, false},
		{"missing agent_name", RegisterRequest{MoltbookName: "alice_mb"}, true},
		{"missing moltbook_name", RegisterRequest{AgentName: "alice"}, true},
		{"agent_name too long", RegisterRequest{AgentName: long, MoltbookName: "alice_mb"}, true},
		{"moltbook_name too long", RegisterRequest{AgentName: "alice", MoltbookName: long}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && KindOf(err) != KindBadRequest {
				t.Errorf("Validate() kind = %v, want %v", KindOf(err), KindBadRequest)
			}
		})
	}
}

func TestAgentAPIKeyNeverSerialized(t *testing.T) {
	agent := Agent{Name: "alice", MoltbookName: "alice_mb", APIKey: "super-secret"}

	data, err := json.Marshal(agent)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "super-secret") {
		t.Errorf("API key leaked into JSON: %s", data)
	}
}
