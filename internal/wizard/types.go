package wizard

import (
	"fmt"

	"github.com/p-blackswan/synapse/internal/api"
)

// Step is a wizard page, numbered from 1.
type Step int

const (
	StepIdentity Step = iota + 1
	StepDetails
	StepTimeline
	StepTeam
)

const (
	FirstStep = StepIdentity
	LastStep  = StepTeam
)

// Label returns the page title shown on the step pills.
func (s Step) Label() string {
	switch s {
	case StepIdentity:
		return "Identity"
	case StepDetails:
		return "Details"
	case StepTimeline:
		return "Timeline"
	case StepTeam:
		return "Team & Integrations"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// clampStep saturates n into [FirstStep, LastStep].
func clampStep(n int) Step {
	if n < int(FirstStep) {
		return FirstStep
	}
	if n > int(LastStep) {
		return LastStep
	}
	return Step(n)
}

type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"

	DefaultPriority = PriorityMedium
)

// Priorities lists the accepted priorities in display order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func (p Priority) Valid() bool { return contains(Priorities, p) }

type Visibility string

const (
	VisibilityPrivate      Visibility = "Private"
	VisibilityTeamOnly     Visibility = "Team Only"
	VisibilityOrganization Visibility = "Organization"
	VisibilityPublic       Visibility = "Public"

	DefaultVisibility = VisibilityTeamOnly
)

var Visibilities = []Visibility{VisibilityPrivate, VisibilityTeamOnly, VisibilityOrganization, VisibilityPublic}

func (v Visibility) Valid() bool { return contains(Visibilities, v) }

type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleDeveloper Role = "Developer"
	RoleDesigner  Role = "Designer"
	RoleTester    Role = "Tester"
	RoleViewer    Role = "Viewer"

	DefaultRole = RoleDeveloper
)

var Roles = []Role{RoleAdmin, RoleDeveloper, RoleDesigner, RoleTester, RoleViewer}

func (r Role) Valid() bool { return contains(Roles, r) }

// Categories are the project categories offered on the identity step.
var Categories = []string{
	"Web Development",
	"Mobile App",
	"AI/ML",
	"Data Science",
	"DevOps",
	"Design",
	"Blockchain",
	"Game Development",
	"Other",
}

// MaxTags caps the details step tag list.
const MaxTags = 10

// IdentityFields is step 1.
type IdentityFields struct {
	Name     string   `json:"name" yaml:"name"`
	Category string   `json:"category" yaml:"category"`
	Priority Priority `json:"priority" yaml:"priority"`
}

// DetailsFields is step 2.
type DetailsFields struct {
	Description string           `json:"description"`
	Tags        []string         `json:"tags"`
	Files       []api.UploadFile `json:"files"`
}

// TimelineFields is step 3. Dates are kept as entered (YYYY-MM-DD) and
// DurationWeeks as free text; neither is validated.
type TimelineFields struct {
	StartDate     string `json:"start_date" yaml:"start_date"`
	EndDate       string `json:"end_date" yaml:"end_date"`
	DurationWeeks string `json:"duration_weeks" yaml:"duration_weeks"`
}

// TeamFields is step 4.
type TeamFields struct {
	Members       []Member   `json:"members"`
	GitHubRepo    string     `json:"github_repo"`
	DiscordServer string     `json:"discord_server"`
	TechStack     []string   `json:"tech_stack"`
	Visibility    Visibility `json:"visibility"`
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
