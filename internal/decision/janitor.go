package decision

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJanitorSchedule sweeps every minute.
const DefaultJanitorSchedule = "* * * * *"

// Janitor periodically expires pending decisions older than the broker's
// wait bound. A workflow abandoned mid-wait (process fault, step ceiling)
// leaves its pending decision behind; the janitor is the cleanup path.
type Janitor struct {
	broker   *Broker
	maxAge   time.Duration
	schedule string
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewJanitor creates a Janitor sweeping on the given cron schedule.
// Records older than the broker's timeout plus one poll interval are
// considered abandoned: a live waiter would have expired them itself.
func NewJanitor(broker *Broker, schedule string, logger *slog.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Validate the expression up front so Start cannot fail.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, err
	}

	return &Janitor{
		broker:   broker,
		maxAge:   broker.Timeout() + broker.interval,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Start launches the background sweep.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil {
		return nil // already started
	}

	c := cron.New()
	if _, err := c.AddFunc(j.schedule, j.sweep); err != nil {
		return err
	}
	c.Start()
	j.cron = c

	j.logger.Info("decision janitor started", slog.String("schedule", j.schedule))
	return nil
}

// Stop halts the sweep, waiting for an in-flight run to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.cron = nil
	j.logger.Info("decision janitor stopped")
}

// sweep expires stale pending decisions once.
func (j *Janitor) sweep() {
	expired := j.broker.ExpireStale(context.Background(), j.maxAge)
	if len(expired) > 0 {
		j.logger.Info("expired stale decisions", slog.Int("count", len(expired)))
	}
}
