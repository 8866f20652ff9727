package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fbpage-agent/internal/app"
	"github.com/fbpage-agent/internal/config"
	"github.com/fbpage-agent/internal/insights"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/storage"
	"github.com/fbpage-agent/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	svc     *app.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fbpage-agent",
		Short: "Bulk content scheduler for a Facebook Page",
		Long: `Plans publish slots, writes captions with AI and schedules photos,
videos, cross-posts and news fact cards on a Facebook Page.`,
		PersistentPreRunE: initializeApp,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if svc != nil {
				return svc.Close()
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(pagesCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(insightsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	ctx := context.Background()
	repo, err := app.OpenRepository(ctx, cfg, log)
	if err != nil {
		return err
	}

	svc, err = app.New(ctx, cfg, repo, log)
	if err != nil {
		repo.Close()
		return err
	}
	return nil
}

// ============ AUTH COMMANDS ============

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Facebook login management",
	}

	cmd.AddCommand(authLoginCmd())
	cmd.AddCommand(authStatusCmd())
	cmd.AddCommand(authLogoutCmd())
	cmd.AddCommand(authExportCmd())
	return cmd
}

func authLoginCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start the Facebook OAuth login flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			fmt.Printf("Starting OAuth server on port %d...\n", port)
			fmt.Printf("Open the URL printed in the log in your browser to continue.\n")

			if _, err := svc.OAuth.StartOAuthServer(ctx, port); err != nil {
				return fmt.Errorf("OAuth failed: %w", err)
			}

			if err := svc.Login(ctx); err != nil {
				return err
			}

			fmt.Println("\nAuthentication successful!")
			fmt.Printf("Pages available: %d\n", len(svc.Session.Pages()))
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Port for OAuth callback server")
	return cmd
}

func authStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the stored user token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			valid, expiresAt, err := svc.OAuth.GetTokenStatus(ctx)
			if err != nil {
				fmt.Println("Status: Not authenticated")
				fmt.Println("Run 'fbpage-agent auth login' to authenticate")
				return nil
			}

			fmt.Printf("Status:     %s\n", map[bool]string{true: "Valid", false: "Expired"}[valid])
			if expiresAt.IsZero() {
				fmt.Println("Expires at: never")
			} else {
				fmt.Printf("Expires at: %s (%s)\n", expiresAt.Format(time.RFC1123), humanize.Time(expiresAt))
			}

			if !valid {
				fmt.Println("\nToken expired. Run 'fbpage-agent auth login' to re-authenticate")
			}
			return nil
		},
	}
}

func authLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored user token",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc.Session.Clear()
			if err := svc.OAuth.Logout(context.Background()); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func authExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export the user token for environment variables (headless deployment)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			token, err := svc.Repo.GetToken(ctx, models.ProviderFacebook)
			if err != nil {
				return fmt.Errorf("no token found - run 'auth login' first: %w", err)
			}

			fmt.Println("# Facebook user token - copy these to your environment variables:")
			fmt.Printf("FBPAGE_FACEBOOK_ACCESS_TOKEN=%s\n", token.AccessToken)
			if !token.ExpiresAt.IsZero() {
				fmt.Printf("FBPAGE_FACEBOOK_TOKEN_EXPIRES_AT=%s\n", token.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

// ============ PAGES COMMANDS ============

func pagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pages",
		Short: "List the pages the logged in user manages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := svc.Login(context.Background()); err != nil {
				return err
			}

			pages := svc.Session.Pages()
			fmt.Printf("\n=== Pages (%d) ===\n\n", len(pages))
			for _, p := range pages {
				marker := " "
				if p.ID == cfg.Facebook.PageID {
					marker = "*"
				}
				fmt.Printf("%s %-20s %s\n", marker, p.ID, p.Name)
			}
			return nil
		},
	}
}

// ============ HISTORY COMMANDS ============

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the published-items history",
	}

	cmd.AddCommand(historyListCmd())
	return cmd
}

func historyListCmd() *cobra.Command {
	var page string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List history keys, optionally for one page",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := svc.History.Keys()

			shown := 0
			fmt.Printf("\n=== History (%d keys) ===\n\n", len(keys))
			for _, k := range keys {
				if page != "" && !strings.HasSuffix(k, "|"+page) {
					continue
				}
				fmt.Printf("  %s\n", k)
				shown++
			}
			if page != "" {
				fmt.Printf("\n%d keys for page %s\n", shown, page)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&page, "page", "", "Only show keys for this page id")
	return cmd
}

// ============ RUNS COMMANDS ============

func runsCmd() *cobra.Command {
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded scheduling runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.DefaultRunFilter()
			filter.Limit = limit
			if state != "" {
				s := models.RunState(state)
				filter.State = &s
			}

			runs, err := svc.Repo.ListRuns(context.Background(), filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Runs (%d) ===\n\n", len(runs))
			for _, r := range runs {
				fmt.Printf("[%s] %s | %s | page %s\n", r.RunID, r.State, r.ItemKind, r.PageID)
				fmt.Printf("    Items: %d (ok %d, failed %d, skipped %d)\n", r.Total, r.Succeeded, r.Failed, r.Skipped)
				fmt.Printf("    Started: %s\n", r.StartedAt.Format(time.RFC1123))
				if r.FinishedAt != nil {
					fmt.Printf("    Took:    %s\n", formatDuration(r.FinishedAt.Sub(r.StartedAt)))
				}
				if r.LastError != "" {
					fmt.Printf("    Error:   %s\n", truncateStr(r.LastError, 100))
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (running, completed, cancelled, fatal_auth_error)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")
	return cmd
}

// ============ INSIGHTS COMMANDS ============

func insightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Audience activity used by smart schedules",
	}

	cmd.AddCommand(insightsShowCmd())
	cmd.AddCommand(insightsRefreshCmd())
	return cmd
}

func insightsShowCmd() *cobra.Command {
	var page string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the hourly audience curve",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			dest, err := svc.Destination(ctx, page)
			if err != nil {
				return err
			}
			curve, err := svc.Insights.Curve(ctx, dest)
			if err != nil {
				return err
			}
			printCurve(dest, curve)
			return nil
		},
	}

	cmd.Flags().StringVar(&page, "page", "", "Page id (default facebook.page_id)")
	return cmd
}

func insightsRefreshCmd() *cobra.Command {
	var page string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch a fresh curve from the Graph API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			dest, err := svc.Destination(ctx, page)
			if err != nil {
				return err
			}
			curve, err := svc.Insights.Refresh(ctx, dest)
			if err != nil {
				return err
			}
			printCurve(dest, curve)
			return nil
		},
	}

	cmd.Flags().StringVar(&page, "page", "", "Page id (default facebook.page_id)")
	return cmd
}

func printCurve(dest models.Destination, curve insights.Curve) {
	peak := 0.0
	for _, v := range curve {
		if v > peak {
			peak = v
		}
	}

	fmt.Printf("\n=== Audience by hour: %s ===\n\n", dest.Name)
	for h, v := range curve {
		bar := 0
		if peak > 0 {
			bar = int(v / peak * 40)
		}
		fmt.Printf("%02d:00 %8.1f %s\n", h, v, strings.Repeat("#", bar))
	}
	fmt.Printf("\nBest hours: %v\n", curve.BestHours(5))
}

// Helper function to truncate strings
func truncateStr(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// Helper function to format duration nicely
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
	return fmt.Sprintf("%.1f days", d.Hours()/24)
}
