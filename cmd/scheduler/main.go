package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/fbpage-agent/internal/agent/scheduler"
	"github.com/fbpage-agent/internal/app"
	"github.com/fbpage-agent/internal/config"
	"github.com/fbpage-agent/internal/control"
	"github.com/fbpage-agent/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fbpage-scheduler",
		Short: "Background scheduler for the Facebook Page agent",
		Long: `Refreshes page insights, schedules news fact cards on a cron and
serves the run control API. Run it as a service for unattended operation.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
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

	log.Info().Msg("Starting Facebook Page Agent Scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := app.OpenRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	svc, err := app.New(ctx, cfg, repo, log)
	if err != nil {
		repo.Close()
		return err
	}
	defer svc.Close()

	// News fact cards always go through the caption generator
	res, err := svc.Resolver(ctx, true)
	if err != nil {
		return err
	}
	recorder, err := svc.Recorder(ctx)
	if err != nil {
		return err
	}

	ctrl := svc.Controller(res, recorder)
	jobs := &jobs{svc: svc, ctrl: ctrl}

	c := cron.New(cron.WithLogger(cronLogger{log}))

	_, err = c.AddFunc(cfg.Scheduler.InsightsCron, jobs.refreshInsights)
	if err != nil {
		return fmt.Errorf("failed to schedule insights job: %w", err)
	}
	log.Info().Str("cron", cfg.Scheduler.InsightsCron).Msg("Insights job scheduled")

	if cfg.Scheduler.NewsCron != "" {
		_, err = c.AddFunc(cfg.Scheduler.NewsCron, jobs.scheduleNews)
		if err != nil {
			return fmt.Errorf("failed to schedule news job: %w", err)
		}
		log.Info().Str("cron", cfg.Scheduler.NewsCron).Msg("News job scheduled")
	}

	c.Start()
	log.Info().Msg("Scheduler started")

	addr := cfg.Scheduler.ControlAddr
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	server := control.NewServer(ctrl, jobs.startNews, svc.Repo, log)
	err = server.ListenAndServe(ctx, addr)

	log.Info().Msg("Shutting down scheduler")
	<-c.Stop().Done()
	if ctrl.RequestCancel() {
		// let the current item finish so history and the run record stay in step
		waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, werr := ctrl.Wait(waitCtx); werr != nil {
			log.Warn().Err(werr).Msg("Run did not stop in time")
		}
	}

	return err
}

// jobs holds the daemon's cron and control callbacks
type jobs struct {
	svc  *app.App
	ctrl *scheduler.Controller
}

func (j *jobs) refreshInsights() {
	ctx := context.Background()
	log.Info().Msg("Running scheduled insights refresh")

	dest, err := j.svc.Destination(ctx, "")
	if err != nil {
		log.Error().Err(err).Msg("Insights refresh skipped")
		return
	}

	curve, err := j.svc.Insights.Refresh(ctx, dest)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled insights refresh failed")
		return
	}

	log.Info().
		Str("page", dest.Name).
		Ints("best_hours", curve.BestHours(5)).
		Msg("Scheduled insights refresh completed")
}

func (j *jobs) scheduleNews() {
	log.Info().Msg("Running scheduled news batch")

	if j.ctrl.State().IsActive() {
		log.Warn().Str("run_id", j.ctrl.RunID()).Msg("A run is still active, skipping this news batch")
		return
	}
	if _, err := j.startNews(context.Background()); err != nil {
		log.Error().Err(err).Msg("Scheduled news batch failed")
	}
}

// startNews discovers fresh articles and starts a run for them
func (j *jobs) startNews(ctx context.Context) (bool, error) {
	if j.ctrl.State().IsActive() {
		return j.ctrl.Start(ctx, scheduler.Batch{})
	}

	dest, err := j.svc.Destination(ctx, "")
	if err != nil {
		return false, err
	}

	result, err := j.svc.Discovery().Run(ctx, dest, cfg.Scheduler.NewsPerRun)
	if err != nil {
		return false, err
	}
	log.Info().
		Int("articles_found", result.ArticlesFound).
		Int("already_posted", result.AlreadyPosted).
		Int("selected", len(result.Items)).
		Msg("News discovery completed")
	if len(result.Items) == 0 {
		return false, nil
	}

	sc, err := j.svc.ScheduleDefaults()
	if err != nil {
		return false, err
	}
	caption, err := j.svc.CaptionDefaults()
	if err != nil {
		return false, err
	}
	scores, err := j.svc.Scores(ctx, dest, sc.Smart)
	if err != nil {
		return false, err
	}

	return j.ctrl.Start(ctx, scheduler.Batch{
		Items:       result.Items,
		Destination: dest,
		Schedule:    sc,
		Scores:      scores,
		Caption:     caption,
		PlaceID:     cfg.Schedule.PlaceID,
	})
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
