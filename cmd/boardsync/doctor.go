package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/spf13/cobra"

	"github.com/boardsync/boardsync/internal/config"
	"github.com/boardsync/boardsync/internal/ui"
)

// Status constants for doctor checks
const (
	statusOK      = "ok"
	statusWarning = "warning"
	statusError   = "error"
)

type doctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // statusOK, statusWarning, or statusError
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`
}

type doctorResult struct {
	Checks     []doctorCheck `json:"checks"`
	OverallOK  bool          `json:"overall_ok"`
	CLIVersion string        `json:"cli_version"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check credentials, repository access, and permissions",
	Long: `Preflight the configuration before a sync: is a token present, is the
repository reachable with it, and does it allow the writes a sync
performs. The token is only ever shown masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		result := doctorResult{
			Checks:     runDoctorChecks(ctx, appConfig, newPreflightClient(appConfig)),
			OverallOK:  true,
			CLIVersion: Version,
		}
		for _, c := range result.Checks {
			if c.Status == statusError {
				result.OverallOK = false
			}
		}

		if jsonOutput {
			outputJSON(result)
		} else {
			for i := range result.Checks {
				fmt.Println(formatDoctorCheck(&result.Checks[i]))
			}
		}

		if !result.OverallOK {
			return fmt.Errorf("doctor found problems")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// newPreflightClient builds a go-github client against the configured API
// endpoint, authenticated when a token is present.
func newPreflightClient(cfg *config.Config) *gogithub.Client {
	client := gogithub.NewClient(nil)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.APIURL != "" {
		if base, err := url.Parse(strings.TrimRight(cfg.APIURL, "/") + "/"); err == nil {
			client.BaseURL = base
		}
	}
	return client
}

func runDoctorChecks(ctx context.Context, cfg *config.Config, gh *gogithub.Client) []doctorCheck {
	var checks []doctorCheck

	if cfg.Token == "" {
		checks = append(checks, doctorCheck{
			Name:    "token",
			Status:  statusError,
			Message: "no GitHub token configured",
			Fix:     "set BOARDSYNC_TOKEN (or GITHUB_TOKEN), or add token to " + config.DefaultConfigFile,
		})
	} else {
		checks = append(checks, doctorCheck{
			Name:    "token",
			Status:  statusOK,
			Message: "token " + cfg.MaskedToken(),
		})
	}

	if cfg.Owner == "" || cfg.Repo == "" {
		checks = append(checks, doctorCheck{
			Name:    "repository",
			Status:  statusError,
			Message: "owner and repo not configured",
			Fix:     "set owner and repo in " + config.DefaultConfigFile + ", or BOARDSYNC_OWNER / BOARDSYNC_REPO",
		})
		return checks
	}
	checks = append(checks, doctorCheck{
		Name:    "repository",
		Status:  statusOK,
		Message: cfg.Owner + "/" + cfg.Repo,
	})

	repoInfo, _, err := gh.Repositories.Get(ctx, cfg.Owner, cfg.Repo)
	if err != nil {
		status, msg, fix := classifyPreflightError(err)
		checks = append(checks, doctorCheck{Name: "reachability", Status: status, Message: msg, Fix: fix})
		return checks
	}
	checks = append(checks, doctorCheck{
		Name:    "reachability",
		Status:  statusOK,
		Message: "repository reachable",
	})

	if repoInfo.GetArchived() {
		checks = append(checks, doctorCheck{
			Name:    "permissions",
			Status:  statusWarning,
			Message: "repository is archived; issue creation will fail",
		})
		return checks
	}

	// Permissions are only populated on authenticated requests.
	switch {
	case repoInfo.Permissions == nil:
		checks = append(checks, doctorCheck{
			Name:    "permissions",
			Status:  statusWarning,
			Message: "permissions unknown (unauthenticated request)",
		})
	case repoInfo.Permissions["push"]:
		checks = append(checks, doctorCheck{
			Name:    "permissions",
			Status:  statusOK,
			Message: "push access",
		})
	default:
		checks = append(checks, doctorCheck{
			Name:    "permissions",
			Status:  statusWarning,
			Message: "read-only access; sync cannot create issues or labels",
			Fix:     "use a token with repo write access",
		})
	}

	return checks
}

// classifyPreflightError folds go-github's typed errors into a check
// outcome. Rate limiting is transient, so it warns rather than fails.
func classifyPreflightError(err error) (status, message, fix string) {
	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return statusWarning,
			"rate limited until " + rateErr.Rate.Reset.Time.Format(time.Kitchen),
			"wait for the limit to reset, or use a token with a higher quota"
	}

	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return statusWarning, "secondary rate limit hit", "retry in a few minutes"
	}

	var respErr *gogithub.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound {
		return statusError,
			"repository not found or token lacks access",
			"check owner/repo spelling and the token's repository scope"
	}

	return statusError, "github unreachable: " + err.Error(), ""
}

func formatDoctorCheck(c *doctorCheck) string {
	icon := ui.RenderPass(ui.IconPass)
	switch c.Status {
	case statusWarning:
		icon = ui.RenderWarn(ui.IconWarn)
	case statusError:
		icon = ui.RenderFail(ui.IconFail)
	}

	line := fmt.Sprintf("%s %-13s %s", icon, c.Name, c.Message)
	if c.Fix != "" {
		line += "\n" + ui.RenderMuted("    fix: "+c.Fix)
	}
	return line
}
