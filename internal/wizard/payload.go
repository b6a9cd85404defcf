package wizard

import (
	"strconv"
	"strings"
)

// UnknownLeader names the leader when the session carries no display name.
const UnknownLeader = "Unknown"

// ProjectPayload is the body posted to /projects/. Optional strings are
// sent as null when empty.
type ProjectPayload struct {
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	Category             string          `json:"category"`
	Priority             Priority        `json:"priority"`
	StartDate            *string         `json:"start_date"`
	EndDate              *string         `json:"end_date"`
	DurationWeeks        *int            `json:"duration_weeks"`
	LeaderName           string          `json:"leader_name"`
	TeamMembers          []MemberPayload `json:"team_members"`
	GitHubRepoURL        *string         `json:"github_repo_url"`
	DiscordServerURL     *string         `json:"discord_server_url"`
	TechStackPreferences []string        `json:"tech_stack_preferences"`
	Tags                 []string        `json:"tags"`
	Visibility           Visibility      `json:"visibility"`
}

// MemberPayload is a team member as the API expects it.
type MemberPayload struct {
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	GitHubUsername  *string `json:"github_username"`
	DiscordUsername *string `json:"discord_username"`
	Role            Role    `json:"role"`
}

// Payload assembles the submission body from the current fields.
func (d *Draft) Payload(leader string) ProjectPayload {
	return d.Snapshot().Payload(leader)
}

// Payload assembles the submission body from the snapshot.
func (s Snapshot) Payload(leader string) ProjectPayload {
	if strings.TrimSpace(leader) == "" {
		leader = UnknownLeader
	}
	members := make([]MemberPayload, 0, len(s.Team.Members))
	for _, m := range s.Team.Members {
		members = append(members, MemberPayload{
			Name:            m.Name,
			Email:           m.Email,
			GitHubUsername:  optional(m.GitHubUsername),
			DiscordUsername: optional(m.DiscordUsername),
			Role:            m.Role,
		})
	}
	return ProjectPayload{
		Title:                s.Identity.Name,
		Description:          s.Details.Description,
		Category:             s.Identity.Category,
		Priority:             s.Identity.Priority,
		StartDate:            optional(s.Timeline.StartDate),
		EndDate:              optional(s.Timeline.EndDate),
		DurationWeeks:        leadingInt(s.Timeline.DurationWeeks),
		LeaderName:           leader,
		TeamMembers:          members,
		GitHubRepoURL:        optional(s.Team.GitHubRepo),
		DiscordServerURL:     optional(s.Team.DiscordServer),
		TechStackPreferences: s.Team.TechStack,
		Tags:                 s.Details.Tags,
		Visibility:           s.Team.Visibility,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// leadingInt parses the optional sign and digits at the start of s, so
// "12 weeks" yields 12. Anything without leading digits yields nil.
func leadingInt(s string) *int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return nil
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return nil
	}
	return &n
}
