package domain

import "time"

// MaxNameLength bounds agent_name and moltbook_name.
const MaxNameLength = 64

// Agent represents a registered agent.
type Agent struct {
	Name          string    `json:"agent_name"`
	MoltbookName  string    `json:"moltbook_name"`
	Description   string    `json:"description,omitempty"`
	PayoutAddress string    `json:"payout_address,omitempty"`
	APIKey        string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RegisterRequest is the payload for agent registration.
type RegisterRequest struct {
	AgentName     string `json:"agent_name"`
	MoltbookName  string `json:"moltbook_name"`
	Description   string `json:"description,omitempty"`
	PayoutAddress string `json:"payout_address,omitempty"`
}

// Validate checks the registration payload.
func (r *RegisterRequest) Validate() error {
	if r.AgentName == "" || r.MoltbookName == "" {
		return NewError(KindBadRequest, "agent_name and moltbook_name are required")
	}
	if len(r.AgentName) > MaxNameLength || len(r.MoltbookName) > MaxNameLength {
		return Errorf(KindBadRequest, "agent_name and moltbook_name must be <= %d characters", MaxNameLength)
	}
	return nil
}

// RegisterResponse is returned on successful registration. The API key is
// shown exactly once, here.
type RegisterResponse struct {
	Message   string    `json:"message"`
	AgentName string    `json:"agent_name"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileUpdate carries a self-service profile change. Nil fields are left
// untouched.
type ProfileUpdate struct {
	Description   *string `json:"description"`
	PayoutAddress *string `json:"payout_address"`
}
