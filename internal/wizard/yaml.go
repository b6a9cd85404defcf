package wizard

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/synapse/internal/api"
	perrors "github.com/p-blackswan/synapse/internal/errors"
)

// DraftFile is the YAML description of a project, used by the CLI to fill a
// draft non-interactively.
type DraftFile struct {
	Name          string       `yaml:"name"`
	Category      string       `yaml:"category"`
	Priority      Priority     `yaml:"priority"`
	Description   string       `yaml:"description"`
	Tags          []string     `yaml:"tags"`
	Files         []string     `yaml:"files"`
	StartDate     string       `yaml:"start_date"`
	EndDate       string       `yaml:"end_date"`
	DurationWeeks string       `yaml:"duration_weeks"`
	Members       []MemberFile `yaml:"members"`
	GitHubRepo    string       `yaml:"github_repo"`
	DiscordServer string       `yaml:"discord_server"`
	TechStack     []string     `yaml:"tech_stack"`
	Visibility    Visibility   `yaml:"visibility"`
}

// MemberFile is a team member entry in a DraftFile.
type MemberFile struct {
	Name            string `yaml:"name"`
	Email           string `yaml:"email"`
	GitHubUsername  string `yaml:"github_username"`
	DiscordUsername string `yaml:"discord_username"`
	Role            Role   `yaml:"role"`
}

// LoadDraftFile reads a YAML draft description. $VAR and ${VAR} references
// are expanded from the environment; relative file paths resolve against the
// YAML file's directory.
func LoadDraftFile(path string) (*Draft, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("draft: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))
	d, err := decodeDraft(strings.NewReader(expanded), filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("draft: parse %s: %w", path, err)
	}
	return d, nil
}

// DecodeDraft builds a draft from YAML read from r. The text is taken
// literally; only LoadDraftFile expands environment references.
func DecodeDraft(r io.Reader) (*Draft, error) {
	return decodeDraft(r, "")
}

// ParseDraftFile decodes a YAML draft description without applying it, so
// callers can vet fields such as file paths first.
func ParseDraftFile(r io.Reader) (*DraftFile, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var f DraftFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", perrors.ErrInvalidInput, err)
	}
	return &f, nil
}

func decodeDraft(r io.Reader, baseDir string) (*Draft, error) {
	f, err := ParseDraftFile(r)
	if err != nil {
		return nil, err
	}
	d := New()
	if err := f.Apply(d, baseDir); err != nil {
		return nil, err
	}
	return d, nil
}

// Apply fills d through its mutators, so tag caps and trimming apply as if
// the fields were entered by hand. The draft ends on the last step.
func (f DraftFile) Apply(d *Draft, baseDir string) error {
	if f.Priority != "" && !f.Priority.Valid() {
		return fmt.Errorf("priority %q: %w", f.Priority, perrors.ErrInvalidInput)
	}
	if f.Visibility != "" && !f.Visibility.Valid() {
		return fmt.Errorf("visibility %q: %w", f.Visibility, perrors.ErrInvalidInput)
	}

	d.SetIdentity(IdentityFields{Name: f.Name, Category: f.Category, Priority: f.Priority})
	d.SetDescription(f.Description)
	for _, t := range f.Tags {
		d.AddTag(t)
	}
	for _, p := range f.Files {
		if !filepath.IsAbs(p) && baseDir != "" {
			p = filepath.Join(baseDir, p)
		}
		d.AddFiles(api.UploadFile{Name: filepath.Base(p), Path: p})
	}
	d.SetTimeline(TimelineFields{StartDate: f.StartDate, EndDate: f.EndDate, DurationWeeks: f.DurationWeeks})

	for _, mf := range f.Members {
		m := d.AddTeamMember()
		updates := []struct{ field, value string }{
			{MemberFieldName, mf.Name},
			{MemberFieldEmail, mf.Email},
			{MemberFieldGitHubUsername, mf.GitHubUsername},
			{MemberFieldDiscordUsername, mf.DiscordUsername},
		}
		if mf.Role != "" {
			updates = append(updates, struct{ field, value string }{MemberFieldRole, string(mf.Role)})
		}
		for _, u := range updates {
			if _, err := d.UpdateTeamMember(m.ID, u.field, u.value); err != nil {
				return err
			}
		}
	}

	d.SetIntegrations(f.GitHubRepo, f.DiscordServer)
	for _, t := range f.TechStack {
		d.AddTech(t)
	}
	if f.Visibility != "" {
		d.SetVisibility(f.Visibility)
	}
	d.SetStep(int(LastStep))
	return nil
}
