package scheduler

import (
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/pkg/logger"
)

// Notifier receives everything a run reports to the user
type Notifier interface {
	// Entry is called for every log entry, in order
	Entry(runID string, entry models.LogEntry)
	// RunFinished is called once when a run completes or is cancelled
	RunFinished(summary Summary)
	// ReauthRequired is called instead of RunFinished when a run halts on an auth failure
	ReauthRequired(dest models.Destination, err error)
	// RunRejected is called when Start refuses a batch
	RunRejected(err error)
}

// LogNotifier writes run notifications through zerolog
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a notifier on top of log
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.WithComponent("run-log")}
}

func (n *LogNotifier) Entry(runID string, entry models.LogEntry) {
	ev := n.log.Info()
	switch entry.Status {
	case models.LogError:
		ev = n.log.Error()
	case models.LogSuccess:
		ev = n.log.Info().Bool("success", true)
	}
	ev.Str("run_id", runID).
		Str("item", entry.ItemLabel).
		Msg(entry.Message)
}

func (n *LogNotifier) RunFinished(s Summary) {
	n.log.Info().
		Str("run_id", s.RunID).
		Str("state", string(s.State)).
		Int("total", s.Total).
		Int("succeeded", s.Succeeded).
		Int("failed", s.Failed).
		Int("skipped", s.Skipped).
		Dur("duration", s.Duration()).
		Msg("Run finished")
}

func (n *LogNotifier) ReauthRequired(dest models.Destination, err error) {
	n.log.Error().
		Err(err).
		Str("page_id", dest.ID).
		Str("page", dest.Name).
		Msg("Login expired, run halted: re-authenticate with 'fbpage-agent auth login'")
}

func (n *LogNotifier) RunRejected(err error) {
	n.log.Error().Err(err).Msg("Run not started")
}

// Notifiers fans every notification out to each member
type Notifiers []Notifier

func (ns Notifiers) Entry(runID string, entry models.LogEntry) {
	for _, n := range ns {
		n.Entry(runID, entry)
	}
}

func (ns Notifiers) RunFinished(s Summary) {
	for _, n := range ns {
		n.RunFinished(s)
	}
}

func (ns Notifiers) ReauthRequired(dest models.Destination, err error) {
	for _, n := range ns {
		n.ReauthRequired(dest, err)
	}
}

func (ns Notifiers) RunRejected(err error) {
	for _, n := range ns {
		n.RunRejected(err)
	}
}

type nopNotifier struct{}

func (nopNotifier) Entry(string, models.LogEntry)            {}
func (nopNotifier) RunFinished(Summary)                      {}
func (nopNotifier) ReauthRequired(models.Destination, error) {}
func (nopNotifier) RunRejected(error)                        {}
