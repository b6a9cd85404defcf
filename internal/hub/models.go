package hub

import (
	"github.com/p-blackswan/synapse/internal/session"
	"github.com/p-blackswan/synapse/internal/submit"
	"github.com/p-blackswan/synapse/internal/wizard"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// SessionResponse is returned by every /session route.
type SessionResponse struct {
	session.State
	HasToken bool `json:"hasToken"`
}

// LoginRequest is the body of POST /api/v1/session/login. With a verifier
// configured, email and password are checked first; otherwise the name is
// recorded as-is.
type LoginRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	AccessToken string `json:"access_token"`
}

// EntityResponse wraps a created entity.
type EntityResponse struct {
	Entity submit.EntityRecord `json:"entity"`
	Local  bool                `json:"local"`
}

// LocalEntitiesResponse lists the local queue.
type LocalEntitiesResponse struct {
	Entities []submit.EntityRecord `json:"entities"`
	Total    int                   `json:"total"`
}

// DraftListResponse lists open drafts.
type DraftListResponse struct {
	Drafts []wizard.Snapshot `json:"drafts"`
	Total  int               `json:"total"`
}

// DraftPatch updates scalar draft fields. Nil fields are left alone.
type DraftPatch struct {
	Name          *string            `json:"name"`
	Category      *string            `json:"category"`
	Priority      *wizard.Priority   `json:"priority"`
	Description   *string            `json:"description"`
	StartDate     *string            `json:"start_date"`
	EndDate       *string            `json:"end_date"`
	DurationWeeks *string            `json:"duration_weeks"`
	GitHubRepo    *string            `json:"github_repo"`
	DiscordServer *string            `json:"discord_server"`
	Visibility    *wizard.Visibility `json:"visibility"`
}

// StepRequest navigates a draft. Action is next, prev or set.
type StepRequest struct {
	Action string `json:"action"`
	Step   int    `json:"step"`
}

// ValueRequest carries a single tag or technology.
type ValueRequest struct {
	Value string `json:"value"`
}

// FileRequest attaches a local file to a draft.
type FileRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// MemberUpdateRequest sets one member field.
type MemberUpdateRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// MemberResponse is a member with its derived display attributes.
type MemberResponse struct {
	Member wizard.Member `json:"member"`
}
