package cli

import (
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/spf13/cobra"

	perrors "github.com/p-blackswan/synapse/internal/errors"
	"github.com/p-blackswan/synapse/internal/hub"
	"github.com/p-blackswan/synapse/internal/wizard"
)

func newProjectCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project commands",
	}
	cmd.AddCommand(newProjectCreateCmd(app))
	return cmd
}

func newProjectCreateCmd(app *App) *cobra.Command {
	var (
		from    string
		f       wizard.DraftFile
		members []string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Fill the project wizard and submit it",
		Long: strings.TrimSpace(`
Fills the four wizard steps from flags (or a YAML file) and submits the result.
Signed-in sessions create the project through the API; ghost and signed-out
sessions queue it locally.
`),
		Example: strings.TrimSpace(`
  synapse project create --name "Synapse" --category "Web Development" \
    --tag go --tag cli --member "Ada Lovelace <ada@example.com>" --visibility Public

  synapse project create --from project.yaml --dry-run
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDraft(from, f, members)
			if err != nil {
				return writeErr(cmd, err)
			}
			return withCore(cmd, app, func(c *core) error {
				if dryRun {
					return writeOut(cmd, app, d.Payload(c.sessions.DisplayName()))
				}
				rec, err := c.flow.Submit(cmd.Context(), d)
				if perrors.IsUnauthorized(err) {
					app.logger.Warn().Err(err).Msg("remote rejected credentials, session cleared")
					c.sessions.Logout()
					return fmt.Errorf("authentication expired, run `synapse login` and retry: %w", err)
				}
				if err != nil {
					return err
				}
				return writeOut(cmd, app, hub.EntityResponse{Entity: *rec, Local: rec.Local})
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "YAML file describing the project")
	cmd.Flags().StringVar(&f.Name, "name", "", "Project name")
	cmd.Flags().StringVar(&f.Category, "category", "", "Project category")
	cmd.Flags().StringVar((*string)(&f.Priority), "priority", "", "Priority (Low|Medium|High|Critical)")
	cmd.Flags().StringVar(&f.Description, "description", "", "Project description")
	cmd.Flags().StringArrayVar(&f.Tags, "tag", nil, "Tag (repeatable, at most 10)")
	cmd.Flags().StringArrayVar(&f.Files, "file", nil, "File to attach after creation (repeatable)")
	cmd.Flags().StringVar(&f.StartDate, "start", "", "Start date")
	cmd.Flags().StringVar(&f.EndDate, "end", "", "End date")
	cmd.Flags().StringVar(&f.DurationWeeks, "weeks", "", "Estimated duration in weeks")
	cmd.Flags().StringArrayVar(&members, "member", nil, `Team member as "Name <email>" (repeatable)`)
	cmd.Flags().StringVar(&f.GitHubRepo, "github", "", "GitHub repository URL")
	cmd.Flags().StringVar(&f.DiscordServer, "discord", "", "Discord server URL")
	cmd.Flags().StringArrayVar(&f.TechStack, "tech", nil, "Technology (repeatable)")
	cmd.Flags().StringVar((*string)(&f.Visibility), "visibility", "", `Visibility ("Private", "Team Only", "Organization", "Public")`)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the payload instead of submitting it")
	cmd.MarkFlagsMutuallyExclusive("from", "name")
	return cmd
}

func buildDraft(from string, f wizard.DraftFile, members []string) (*wizard.Draft, error) {
	if from != "" {
		return wizard.LoadDraftFile(from)
	}
	if strings.TrimSpace(f.Name) == "" {
		return nil, fmt.Errorf("--name or --from is required: %w", perrors.ErrInvalidInput)
	}
	for _, raw := range members {
		f.Members = append(f.Members, parseMember(raw))
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = ""
	}
	d := wizard.New()
	if err := f.Apply(d, wd); err != nil {
		return nil, err
	}
	return d, nil
}

// parseMember accepts "Name <email>", a bare email or a bare name.
func parseMember(raw string) wizard.MemberFile {
	raw = strings.TrimSpace(raw)
	if addr, err := mail.ParseAddress(raw); err == nil {
		return wizard.MemberFile{Name: addr.Name, Email: addr.Address}
	}
	return wizard.MemberFile{Name: raw}
}
