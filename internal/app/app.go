// Package app wires the long-lived services shared by the CLI and the daemon.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/fbpage-agent/internal/agent/discovery"
	"github.com/fbpage-agent/internal/agent/scheduler"
	"github.com/fbpage-agent/internal/ai"
	"github.com/fbpage-agent/internal/config"
	"github.com/fbpage-agent/internal/facebook"
	"github.com/fbpage-agent/internal/history"
	"github.com/fbpage-agent/internal/insights"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/planner"
	"github.com/fbpage-agent/internal/resolver"
	"github.com/fbpage-agent/internal/source"
	"github.com/fbpage-agent/internal/source/custom"
	"github.com/fbpage-agent/internal/source/rss"
	"github.com/fbpage-agent/internal/storage"
	"github.com/fbpage-agent/internal/storage/sheets"
	"github.com/fbpage-agent/internal/storage/sqlite"
	"github.com/fbpage-agent/internal/tracker"
	"github.com/fbpage-agent/pkg/logger"
	"github.com/fbpage-agent/pkg/ratelimit"
)

// App holds the services of one process
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Repo     storage.Repository
	Limiter  *ratelimit.MultiLimiter
	Location *time.Location
	Graph    *facebook.Client
	OAuth    *facebook.OAuthManager
	Session  *facebook.Session
	History  *history.Store
	Insights *insights.Service
	Sources  *source.Manager
}

// OpenRepository opens the configured storage driver and runs its migrations
func OpenRepository(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.Repository, error) {
	var repo storage.Repository
	var err error

	switch cfg.Database.Driver {
	case "sheets":
		log.Info().Msg("Using Google Sheets as primary storage")
		repo, err = sheets.New(ctx, sheets.Config{
			SpreadsheetID:      cfg.Tracker.SpreadsheetID,
			ServiceAccountJSON: cfg.Tracker.ServiceAccountJSON,
			CredentialsFile:    cfg.Tracker.CredentialsFile,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Google Sheets: %w", err)
		}
	case "sqlite", "":
		log.Debug().Str("dsn", cfg.Database.DSN).Msg("Using SQLite as primary storage")
		repo, err = sqlite.New(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

// New builds the services on top of an open repository
func New(ctx context.Context, cfg *config.Config, repo storage.Repository, log *logger.Logger) (*App, error) {
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule.timezone %q: %w", cfg.Schedule.Timezone, err)
	}

	limiter := ratelimit.NewLimiter(ratelimit.Limits{
		GraphRequestsPerHour:       cfg.RateLimit.GraphRequestsPerHour,
		GeminiRequestsPerMinute:    cfg.RateLimit.GeminiRequestsPerMinute,
		AnthropicRequestsPerMinute: cfg.RateLimit.AnthropicRequestsPerMinute,
	})

	graph := facebook.NewClient(cfg.Facebook, limiter, log, facebook.WithLocation(loc))

	hist, err := history.Load(ctx, history.NewSettingsPersister(repo))
	if err != nil {
		// an unreadable history must not silently allow duplicate posts
		return nil, err
	}

	sources := source.NewManager()
	if cfg.Sources.RSS.Enabled {
		for _, src := range rss.NewMultiple(cfg.Sources.RSS, limiter, log) {
			sources.Register(src)
		}
	}
	if cfg.Sources.Custom.Enabled {
		sources.Register(custom.New(cfg.Sources.Custom, log))
	}

	return &App{
		Config:   cfg,
		Log:      log,
		Repo:     repo,
		Limiter:  limiter,
		Location: loc,
		Graph:    graph,
		OAuth:    facebook.NewOAuthManager(cfg.Facebook, graph, repo, log),
		Session:  facebook.NewSession(graph, log),
		History:  hist,
		Insights: insights.NewService(repo, graph, log),
		Sources:  sources,
	}, nil
}

// Close releases the repository
func (a *App) Close() error {
	return a.Repo.Close()
}

// Login starts a session from the stored or injected user token
func (a *App) Login(ctx context.Context) error {
	if a.Session.Active() {
		return nil
	}
	token, err := a.OAuth.GetValidToken(ctx)
	if err != nil {
		return err
	}
	return a.Session.Init(ctx, token.AccessToken)
}

// Destination resolves a page id, or the configured default page, to a destination with its page token
func (a *App) Destination(ctx context.Context, pageID string) (models.Destination, error) {
	if pageID == "" {
		pageID = a.Config.Facebook.PageID
	}
	if pageID == "" {
		return models.Destination{}, fmt.Errorf("no page selected: pass --page or set facebook.page_id")
	}
	if err := a.Login(ctx); err != nil {
		return models.Destination{}, err
	}
	return a.Session.Destination(pageID)
}

// Resolver creates a content resolver. The caption generator is only
// required for modes and item kinds that call it.
func (a *App) Resolver(ctx context.Context, needsAI bool) (*resolver.Resolver, error) {
	var gen ai.CaptionGenerator
	if needsAI {
		if err := a.Config.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		g, err := ai.NewFromConfig(ctx, a.Config, a.Limiter, a.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to create caption generator: %w", err)
		}
		gen = g
	}
	return resolver.New(gen, resolver.NewHTTPFetcher(a.Limiter, a.Log), a.Log), nil
}

// NeedsAI reports whether resolving items of kind in mode calls the caption generator
func NeedsAI(kind models.ItemKind, mode resolver.CaptionMode) bool {
	if kind != models.ItemKindUpload {
		return true
	}
	return mode == resolver.ModeDemo || mode == resolver.ModeImageAnalysis
}

// Scores returns the hour ranking for smart schedules of dest. Manual
// schedules do not look at insights.
func (a *App) Scores(ctx context.Context, dest models.Destination, smart bool) ([24]float64, error) {
	if !smart {
		return [24]float64{}, nil
	}
	curve, err := a.Insights.Curve(ctx, dest)
	if err != nil {
		return [24]float64{}, fmt.Errorf("failed to load page insights: %w", err)
	}
	return [24]float64(curve), nil
}

// Recorder returns the configured tracker, or nil when tracking is off
func (a *App) Recorder(ctx context.Context) (scheduler.Recorder, error) {
	t, err := tracker.NewSheetsTracker(ctx, a.Config.Tracker, a.Log)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}
	if err := t.InitializeSheet(ctx); err != nil {
		a.Log.Warn().Err(err).Msg("Failed to initialize tracker sheet")
	}
	return t, nil
}

// Controller creates a run controller on the shared history
func (a *App) Controller(res scheduler.ContentResolver, recorder scheduler.Recorder, notifiers ...scheduler.Notifier) *scheduler.Controller {
	all := scheduler.Notifiers{scheduler.NewLogNotifier(a.Log), &reauthNotifier{app: a}}
	all = append(all, notifiers...)

	opts := []scheduler.Option{
		scheduler.WithNotifier(all),
		scheduler.WithRunStore(a.Repo),
	}
	if recorder != nil {
		opts = append(opts, scheduler.WithRecorder(recorder))
	}
	return scheduler.NewController(res, a.Graph, a.History, a.Log, opts...)
}

// Discovery creates the news discovery agent
func (a *App) Discovery() *discovery.Agent {
	return discovery.NewAgent(a.Sources, a.History, a.Log)
}

// ScheduleDefaults converts the schedule section of the config into planner settings
func (a *App) ScheduleDefaults() (planner.ScheduleConfig, error) {
	window, err := planner.ParseWindow(a.Config.Schedule.Window)
	if err != nil {
		return planner.ScheduleConfig{}, err
	}
	return planner.ScheduleConfig{
		StartDate:       time.Now().In(a.Location),
		IntervalMinutes: a.Config.Schedule.IntervalMinutes,
		Window:          window,
		Smart:           a.Config.Schedule.Smart,
		Location:        a.Location,
	}, nil
}

// CaptionDefaults returns the configured caption options
func (a *App) CaptionDefaults() (resolver.Options, error) {
	mode, err := resolver.ParseCaptionMode(a.Config.Schedule.CaptionMode)
	if err != nil {
		return resolver.Options{}, err
	}
	return resolver.Options{
		Mode:        mode,
		Language:    a.Config.AI.Language,
		DemoCaption: a.Config.Schedule.DemoCaption,
	}, nil
}

// reauthNotifier drops the rejected credentials so the next command asks for a new login
type reauthNotifier struct {
	app *App
}

func (n *reauthNotifier) Entry(string, models.LogEntry) {}
func (n *reauthNotifier) RunFinished(scheduler.Summary) {}
func (n *reauthNotifier) RunRejected(error)             {}

func (n *reauthNotifier) ReauthRequired(dest models.Destination, err error) {
	n.app.Session.Invalidate(err)
	if logoutErr := n.app.OAuth.Logout(context.Background()); logoutErr != nil {
		n.app.Log.Warn().Err(logoutErr).Msg("Failed to delete stored token")
	}
}
