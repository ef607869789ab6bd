package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/boardsync/boardsync/internal/config"
	"github.com/boardsync/boardsync/internal/ui"
)

var initForce bool

// initFileConfig mirrors the keys config.Load reads from .boardsync.yaml.
type initFileConfig struct {
	Token        string `yaml:"token,omitempty"`
	Owner        string `yaml:"owner"`
	Repo         string `yaml:"repo"`
	ProjectTitle string `yaml:"project_title,omitempty"`
	LogLevel     string `yaml:"log_level,omitempty"`
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .boardsync.yaml using an interactive form",
	Long: `Create a .boardsync.yaml in the current directory using an interactive
terminal form.

The form uses keyboard navigation:
  - Tab/Shift+Tab: Move between fields
  - Enter: Submit the form (on the last field)
  - Ctrl+C: Cancel and exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		var (
			owner        string
			repo         string
			projectTitle string
			token        string
			logLevel     = "info"
			confirmed    = true
		)

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Owner").
					Description("GitHub user or organization that owns the repository (required)").
					Placeholder("e.g., acme").
					Value(&owner).
					Validate(requireField("owner")),

				huh.NewInput().
					Title("Repository").
					Description("Repository name without the owner prefix (required)").
					Placeholder("e.g., widgets").
					Value(&repo).
					Validate(requireField("repo")),

				huh.NewInput().
					Title("Project board").
					Description("Projects board title used for placement (optional)").
					Placeholder("e.g., Roadmap").
					Value(&projectTitle),
			),

			huh.NewGroup(
				huh.NewInput().
					Title("Token").
					Description("GitHub token; leave empty to use BOARDSYNC_TOKEN or GITHUB_TOKEN").
					EchoMode(huh.EchoModePassword).
					Value(&token),

				huh.NewSelect[string]().
					Title("Log level").
					Options(
						huh.NewOption("debug", "debug"),
						huh.NewOption("info (default)", "info"),
						huh.NewOption("warn", "warn"),
						huh.NewOption("error", "error"),
					).
					Value(&logLevel),

				huh.NewConfirm().
					Title("Write "+path+"?").
					Affirmative("Write").
					Negative("Cancel").
					Value(&confirmed),
			),
		).WithTheme(huh.ThemeDracula())

		if err := form.Run(); err != nil {
			if err == huh.ErrUserAborted {
				fmt.Fprintln(os.Stderr, "Init cancelled.")
				return nil
			}
			return fmt.Errorf("form error: %w", err)
		}
		if !confirmed {
			fmt.Fprintln(os.Stderr, "Init cancelled.")
			return nil
		}

		data, err := yaml.Marshal(initFileConfig{
			Token:        strings.TrimSpace(token),
			Owner:        strings.TrimSpace(owner),
			Repo:         strings.TrimSpace(repo),
			ProjectTitle: strings.TrimSpace(projectTitle),
			LogLevel:     logLevel,
		})
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}

		// The file may hold a token, so keep it owner-readable only.
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}

		fmt.Printf("%s Wrote %s\n", ui.RenderPass(ui.IconPass), path)
		if strings.TrimSpace(token) == "" {
			fmt.Println(ui.RenderMuted("No token stored; boardsync will read BOARDSYNC_TOKEN or GITHUB_TOKEN."))
		}
		fmt.Println(ui.RenderMuted("Run 'boardsync doctor' to verify access."))
		return nil
	},
}

func requireField(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
