package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fbpage-agent/internal/agent/discovery"
	"github.com/fbpage-agent/internal/agent/scheduler"
	"github.com/fbpage-agent/internal/app"
	"github.com/fbpage-agent/internal/insights"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/planner"
	"github.com/fbpage-agent/internal/resolver"
)

// runFlags are the options shared by every command that starts a run.
// Unset flags fall back to the schedule section of the config.
type runFlags struct {
	page     string
	start    string
	window   string
	interval int
	smart    bool
	mode     string
	language string
	context  string
	place    string
	dryRun   bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.page, "page", "", "Destination page id (default facebook.page_id)")
	cmd.Flags().StringVar(&f.start, "start", "", "First day of the schedule, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&f.window, "window", "", "Daily publish window HH:MM-HH:MM")
	cmd.Flags().IntVar(&f.interval, "interval", 0, "Minutes between posts")
	cmd.Flags().BoolVar(&f.smart, "smart", false, "Pick slots from the page's best audience hours")
	cmd.Flags().StringVar(&f.mode, "caption-mode", "", "Upload captions: demo, filename or image_analysis")
	cmd.Flags().StringVar(&f.language, "language", "", "Caption language")
	cmd.Flags().StringVar(&f.context, "context", "", "Extra context passed to the caption writer")
	cmd.Flags().StringVar(&f.place, "place", "", "Place id to tag on every post")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Print the plan without publishing")
}

func (f *runFlags) schedule(cmd *cobra.Command) (planner.ScheduleConfig, error) {
	sc, err := svc.ScheduleDefaults()
	if err != nil {
		return sc, err
	}

	if cmd.Flags().Changed("window") {
		if sc.Window, err = planner.ParseWindow(f.window); err != nil {
			return sc, err
		}
	}
	if cmd.Flags().Changed("interval") {
		sc.IntervalMinutes = f.interval
	}
	if cmd.Flags().Changed("smart") {
		sc.Smart = f.smart
	}
	if f.start != "" {
		if sc.StartDate, err = time.ParseInLocation("2006-01-02", f.start, svc.Location); err != nil {
			return sc, fmt.Errorf("invalid --start: %w", err)
		}
	}
	return sc, sc.Validate()
}

func (f *runFlags) caption(cmd *cobra.Command) (resolver.Options, error) {
	opts, err := svc.CaptionDefaults()
	if err != nil {
		return opts, err
	}

	if cmd.Flags().Changed("caption-mode") {
		if opts.Mode, err = resolver.ParseCaptionMode(f.mode); err != nil {
			return opts, err
		}
	}
	if f.language != "" {
		opts.Language = f.language
	}
	opts.Context = f.context
	return opts, nil
}

func (f *runFlags) placeID() string {
	if f.place != "" {
		return f.place
	}
	return cfg.Schedule.PlaceID
}

// ============ PLAN COMMAND ============

func planCmd() *cobra.Command {
	var flags runFlags
	var count int

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview the publish slots for a number of items",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			sc, err := flags.schedule(cmd)
			if err != nil {
				return err
			}

			var scores [24]float64
			if sc.Smart {
				scores = planScores(ctx, flags.page)
			}

			slots, err := planner.Plan(sc, count, time.Now(), scores, nil)
			if err != nil {
				return err
			}
			printSlots(slots, nil)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&count, "count", "n", 10, "Number of items to plan")
	return cmd
}

// planScores uses the page's curve when a session is available; a preview
// falls back to the simulated curve instead of asking for a login.
func planScores(ctx context.Context, page string) [24]float64 {
	dest, err := svc.Destination(ctx, page)
	if err != nil {
		log.Warn().Err(err).Msg("No page session, previewing with the simulated audience curve")
		return insights.DefaultCurve()
	}
	scores, err := svc.Scores(ctx, dest, true)
	if err != nil {
		return insights.DefaultCurve()
	}
	return scores
}

// ============ SCHEDULE COMMANDS ============

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a batch of posts on the page",
	}

	cmd.AddCommand(scheduleUploadCmd())
	cmd.AddCommand(scheduleCrossPostCmd())
	cmd.AddCommand(scheduleNewsCmd())
	return cmd
}

func scheduleUploadCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "upload <file|dir>...",
		Short: "Schedule local photos and videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := uploadItems(args)
			if err != nil {
				return err
			}
			return runBatch(cmd, &flags, items)
		},
	}

	flags.register(cmd)
	return cmd
}

// uploadItems keeps the argument order; directories contribute their files in name order
func uploadItems(paths []string) ([]models.QueueItem, error) {
	var items []models.QueueItem
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			items = append(items, models.QueueItem{Kind: models.ItemKindUpload, FilePath: p})
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			items = append(items, models.QueueItem{Kind: models.ItemKindUpload, FilePath: filepath.Join(p, e.Name())})
		}
	}
	if len(items) == 0 {
		return nil, errors.New("no files to upload")
	}
	return items, nil
}

func scheduleCrossPostCmd() *cobra.Command {
	var flags runFlags
	var from string
	var limit int

	cmd := &cobra.Command{
		Use:   "crosspost",
		Short: "Re-post recent photo posts of another page you manage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if err := svc.Login(ctx); err != nil {
				return err
			}
			src, err := svc.Session.Destination(from)
			if err != nil {
				return err
			}

			posts, err := svc.Graph.ListPagePosts(ctx, src, limit)
			if err != nil {
				return err
			}
			if len(posts) == 0 {
				fmt.Printf("No photo posts found on %s\n", src.Name)
				return nil
			}

			items := make([]models.QueueItem, 0, len(posts))
			for i := range posts {
				items = append(items, models.QueueItem{Kind: models.ItemKindCrossPost, SourcePost: &posts[i]})
			}
			return runBatch(cmd, &flags, items)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&from, "from", "", "Source page id")
	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum source posts to consider")
	cmd.MarkFlagRequired("from")
	return cmd
}

func scheduleNewsCmd() *cobra.Command {
	var flags runFlags
	var count int
	var sourceName string

	cmd := &cobra.Command{
		Use:   "news",
		Short: "Schedule fact cards for fresh news articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			dest, err := svc.Destination(ctx, flags.page)
			if err != nil {
				return err
			}

			agent := svc.Discovery()
			var result *discovery.Result
			if sourceName != "" {
				result, err = agent.RunForSource(ctx, sourceName, dest, count)
			} else {
				result, err = agent.Run(ctx, dest, count)
			}
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Discovery Results ===\n")
			fmt.Printf("Articles Found:  %d\n", result.ArticlesFound)
			fmt.Printf("Already Posted:  %d\n", result.AlreadyPosted)
			fmt.Printf("Selected:        %d\n", len(result.Items))
			fmt.Printf("Duration:        %s\n", result.Duration)
			for _, e := range result.Errors {
				fmt.Printf("  - %s\n", e)
			}

			if len(result.Items) == 0 {
				fmt.Println("\nNo new articles to post.")
				return nil
			}
			return runBatch(cmd, &flags, result.Items)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&count, "count", "n", 3, "Maximum articles to schedule")
	cmd.Flags().StringVar(&sourceName, "source", "", "Only use this source")
	return cmd
}

// ============ RUN ============

// runBatch drives one run in the foreground until it finishes
func runBatch(cmd *cobra.Command, flags *runFlags, items []models.QueueItem) error {
	ctx := context.Background()
	if len(items) == 0 {
		return errors.New("nothing to schedule")
	}

	dest, err := svc.Destination(ctx, flags.page)
	if err != nil {
		return err
	}
	sc, err := flags.schedule(cmd)
	if err != nil {
		return err
	}
	caption, err := flags.caption(cmd)
	if err != nil {
		return err
	}
	scores, err := svc.Scores(ctx, dest, sc.Smart)
	if err != nil {
		return err
	}

	batch := scheduler.Batch{
		Items:       items,
		Destination: dest,
		Schedule:    sc,
		Scores:      scores,
		Caption:     caption,
		PlaceID:     flags.placeID(),
	}

	if flags.dryRun {
		if err := batch.Validate(); err != nil {
			return err
		}
		slots, err := planner.Plan(sc, len(items), time.Now(), scores, nil)
		if err != nil {
			return err
		}
		printSlots(slots, items)
		return nil
	}

	res, err := svc.Resolver(ctx, app.NeedsAI(items[0].Kind, caption.Mode))
	if err != nil {
		return err
	}
	recorder, err := svc.Recorder(ctx)
	if err != nil {
		return err
	}

	ctrl := svc.Controller(res, recorder, &consoleNotifier{})
	stop := watchSignals(ctrl)
	defer stop()

	fmt.Printf("\n=== Scheduling %d items on %s ===\n", len(items), dest.Name)
	fmt.Println(signalHelp)
	fmt.Println()

	started, err := ctrl.Start(ctx, batch)
	if err != nil {
		return err
	}
	if !started {
		return errors.New("another run is active")
	}

	summary, err := ctrl.Wait(ctx)
	if err != nil {
		return err
	}
	printSummary(summary)

	if summary.State == models.RunStateFatalAuthError {
		return fmt.Errorf("run stopped: %s", summary.LastError)
	}
	return nil
}

func printSlots(slots []time.Time, items []models.QueueItem) {
	fmt.Printf("\n=== Schedule Plan (%d slots) ===\n\n", len(slots))
	for i, s := range slots {
		label := ""
		if i < len(items) {
			label = items[i].Label()
		}
		fmt.Printf("%3d. %s  %s\n", i+1, s.Format("Mon 2006-01-02 15:04 MST"), label)
	}
}

func printSummary(s scheduler.Summary) {
	fmt.Printf("\n=== Run Summary ===\n")
	fmt.Printf("Run ID:    %s\n", s.RunID)
	fmt.Printf("State:     %s\n", s.State)
	fmt.Printf("Items:     %d\n", s.Total)
	fmt.Printf("Published: %d\n", s.Succeeded)
	fmt.Printf("Failed:    %d\n", s.Failed)
	fmt.Printf("Skipped:   %d\n", s.Skipped)
	fmt.Printf("Duration:  %s\n", formatDuration(s.Duration()))
	if s.LastError != "" {
		fmt.Printf("\nLast error: %s\n", s.LastError)
	}
}

// consoleNotifier prints the run log as it grows
type consoleNotifier struct{}

func (consoleNotifier) Entry(runID string, e models.LogEntry) {
	fmt.Printf("%s  %-7s %-32s %s\n",
		e.Timestamp.Format("15:04:05"),
		strings.ToUpper(string(e.Status)),
		truncateStr(e.ItemLabel, 32),
		e.Message)
}

func (consoleNotifier) RunFinished(scheduler.Summary) {}
func (consoleNotifier) RunRejected(error)             {}

func (consoleNotifier) ReauthRequired(dest models.Destination, err error) {
	fmt.Printf("\nFacebook rejected the session for %s: %v\n", dest.Name, err)
	fmt.Println("Run 'fbpage-agent auth login' and start the batch again.")
}
