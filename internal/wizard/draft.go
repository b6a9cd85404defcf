// Package wizard holds the project-creation draft: four ordered steps of
// field data, saturating navigation, and the submitting/complete flags that
// gate a single submission.
package wizard

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-blackswan/synapse/internal/api"
	perrors "github.com/p-blackswan/synapse/internal/errors"
)

// Draft is an in-progress project. All methods are safe for concurrent use.
type Draft struct {
	mu        sync.Mutex
	id        string
	createdAt time.Time

	step     Step
	identity IdentityFields
	details  DetailsFields
	timeline TimelineFields
	team     TeamFields

	submitting bool
	complete   bool
}

// Snapshot is a point-in-time copy of a Draft.
type Snapshot struct {
	ID           string         `json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	Step         Step           `json:"step"`
	StepLabel    string         `json:"step_label"`
	Identity     IdentityFields `json:"identity"`
	Details      DetailsFields  `json:"details"`
	Timeline     TimelineFields `json:"timeline"`
	Team         TeamFields     `json:"team"`
	IsSubmitting bool           `json:"is_submitting"`
	IsComplete   bool           `json:"is_complete"`
}

// New starts an empty draft on the first step.
func New() *Draft {
	d := &Draft{id: uuid.NewString(), createdAt: time.Now().UTC()}
	d.clear()
	return d
}

// ID identifies the draft.
func (d *Draft) ID() string { return d.id }

// clear restores the initial field values. Callers must hold d.mu, except New.
func (d *Draft) clear() {
	d.step = FirstStep
	d.identity = IdentityFields{Priority: DefaultPriority}
	d.details = DetailsFields{Tags: []string{}, Files: []api.UploadFile{}}
	d.timeline = TimelineFields{}
	d.team = TeamFields{Members: []Member{}, TechStack: []string{}, Visibility: DefaultVisibility}
	d.submitting = false
	d.complete = false
}

// Snapshot returns a deep copy of the current state.
func (d *Draft) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		ID:        d.id,
		CreatedAt: d.createdAt,
		Step:      d.step,
		StepLabel: d.step.Label(),
		Identity:  d.identity,
		Details: DetailsFields{
			Description: d.details.Description,
			Tags:        append([]string{}, d.details.Tags...),
			Files:       append([]api.UploadFile{}, d.details.Files...),
		},
		Timeline: d.timeline,
		Team: TeamFields{
			Members:       append([]Member{}, d.team.Members...),
			GitHubRepo:    d.team.GitHubRepo,
			DiscordServer: d.team.DiscordServer,
			TechStack:     append([]string{}, d.team.TechStack...),
			Visibility:    d.team.Visibility,
		},
		IsSubmitting: d.submitting,
		IsComplete:   d.complete,
	}
}

// Step returns the current step.
func (d *Draft) Step() Step {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.step
}

// NextStep advances one step, saturating at the last.
func (d *Draft) NextStep() Step {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.step = clampStep(int(d.step) + 1)
	return d.step
}

// PrevStep goes back one step, saturating at the first.
func (d *Draft) PrevStep() Step {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.step = clampStep(int(d.step) - 1)
	return d.step
}

// SetStep jumps to step n. Out-of-range values are clamped; there is no
// per-step validation gate.
func (d *Draft) SetStep(n int) Step {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.step = clampStep(n)
	return d.step
}

// SetIdentity replaces the step 1 fields. An empty priority becomes the default.
func (d *Draft) SetIdentity(f IdentityFields) {
	if f.Priority == "" {
		f.Priority = DefaultPriority
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identity = f
}

func (d *Draft) SetName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identity.Name = name
}

func (d *Draft) SetCategory(category string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identity.Category = category
}

func (d *Draft) SetPriority(p Priority) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identity.Priority = p
}

func (d *Draft) SetDescription(description string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.details.Description = description
}

// SetTimeline replaces the step 3 fields. Date order is not checked.
func (d *Draft) SetTimeline(f TimelineFields) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeline = f
}

// SetIntegrations sets the repository and chat server URLs.
func (d *Draft) SetIntegrations(githubRepo, discordServer string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.team.GitHubRepo = githubRepo
	d.team.DiscordServer = discordServer
}

func (d *Draft) SetVisibility(v Visibility) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.team.Visibility = v
}

// AddTag appends a trimmed tag. Blank tags and tags beyond MaxTags are ignored.
func (d *Draft) AddTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	d.mu.Lock()
	defer d.mu.Unlock()
	if tag == "" || len(d.details.Tags) >= MaxTags {
		return false
	}
	d.details.Tags = append(d.details.Tags, tag)
	return true
}

// RemoveTag drops every occurrence of tag.
func (d *Draft) RemoveTag(tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.details.Tags = without(d.details.Tags, tag)
}

// AddTech appends a trimmed technology. Blank entries are ignored.
func (d *Draft) AddTech(tech string) bool {
	tech = strings.TrimSpace(tech)
	if tech == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.team.TechStack = append(d.team.TechStack, tech)
	return true
}

func (d *Draft) RemoveTech(tech string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.team.TechStack = without(d.team.TechStack, tech)
}

// AddFiles attaches files. Entries without a path are ignored.
func (d *Draft) AddFiles(files ...api.UploadFile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range files {
		if strings.TrimSpace(f.Path) == "" {
			continue
		}
		d.details.Files = append(d.details.Files, f)
	}
}

// RemoveFile detaches every file with the given name.
func (d *Draft) RemoveFile(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.details.Files[:0:0]
	for _, f := range d.details.Files {
		if f.Name != name {
			kept = append(kept, f)
		}
	}
	d.details.Files = kept
}

// AddTeamMember appends a blank member with the default role and the
// palette color for its position.
func (d *Draft) AddTeamMember() Member {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := Member{
		ID:       uuid.NewString(),
		Role:     DefaultRole,
		Gradient: gradientFor(len(d.team.Members)),
	}
	d.team.Members = append(d.team.Members, m)
	return m
}

// RemoveTeamMember drops the member with the given id. Other members keep
// their fields and colors.
func (d *Draft) RemoveTeamMember(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, m := range d.team.Members {
		if m.ID == id {
			d.team.Members = append(d.team.Members[:i:i], d.team.Members[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateTeamMember sets one field of a member. Initials and avatar follow
// the name and GitHub handle automatically.
func (d *Draft) UpdateTeamMember(id, field, value string) (Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := -1
	for i := range d.team.Members {
		if d.team.Members[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Member{}, fmt.Errorf("team member %q: %w", id, perrors.ErrNotFound)
	}

	m := d.team.Members[idx]
	switch field {
	case MemberFieldName:
		m.Name = value
	case MemberFieldEmail:
		m.Email = value
	case MemberFieldGitHubUsername:
		m.GitHubUsername = value
	case MemberFieldDiscordUsername:
		m.DiscordUsername = value
	case MemberFieldRole:
		role := Role(value)
		if !role.Valid() {
			return Member{}, fmt.Errorf("role %q: %w", value, perrors.ErrInvalidInput)
		}
		m.Role = role
	default:
		return Member{}, fmt.Errorf("member field %q: %w", field, perrors.ErrInvalidInput)
	}
	d.team.Members[idx] = m
	return m, nil
}

// StartSubmission marks the draft as submitting. It is only allowed from the
// last step and never twice concurrently.
func (d *Draft) StartSubmission() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.submitting:
		return perrors.ErrSubmissionInFlight
	case d.complete:
		return fmt.Errorf("draft already submitted: %w", perrors.ErrSubmissionInFlight)
	case d.step != LastStep:
		return perrors.ErrNotOnFinalStep
	}
	d.submitting = true
	return nil
}

// CompleteSubmission ends a confirmed submission: field data is cleared and
// the draft becomes terminal.
func (d *Draft) CompleteSubmission() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clear()
	d.complete = true
}

// FailSubmission re-enables submit and keeps every field for a retry.
func (d *Draft) FailSubmission() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitting = false
}

// Reset discards all data and returns to the first step.
func (d *Draft) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clear()
}

func without(list []string, v string) []string {
	kept := make([]string, 0, len(list))
	for _, x := range list {
		if x != v {
			kept = append(kept, x)
		}
	}
	return kept
}
