// Package scheduler drives periodic pipeline runs: fixed intervals,
// exchange trading hours or a cron expression, with manual triggering
// on top.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
)

// State is the scheduler lifecycle state.
type State string

const (
	// StateStopped means no timer is armed and no run is in flight.
	StateStopped State = "stopped"
	// StateRunning means the timer is armed and waiting for the next
	// fire.
	StateRunning State = "running"
	// StateTriggering means a pipeline run is currently executing.
	StateTriggering State = "triggering"
)

// Stats reports scheduler activity counters.
type Stats struct {
	RunsCompleted  int        `json:"runs_completed"`
	RunsFailed     int        `json:"runs_failed"`
	SkippedOverlap int        `json:"skipped_overlap"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
}

// Service schedules pipeline runs. Runs never overlap: a fire that
// arrives while a run is executing is counted as skipped, not queued.
type Service struct {
	runner   interfaces.PipelineRunner
	cfg      common.SchedulerConfig
	location *time.Location
	cron     *cron.Cron
	logger   arbor.ILogger

	mu         sync.Mutex
	state      State
	entryID    cron.EntryID
	stats      Stats
	runHistory []models.RunRecord
	cancelRun  context.CancelFunc
}

// NewService creates a scheduler. The timezone must already have been
// validated by config loading.
func NewService(cfg *common.SchedulerConfig, runner interfaces.PipelineRunner, logger arbor.ILogger) (*Service, error) {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	return &Service{
		runner:   runner,
		cfg:      *cfg,
		location: location,
		cron:     cron.New(cron.WithLocation(location)),
		logger:   logger,
		state:    StateStopped,
	}, nil
}

// Start arms the scheduler according to the configured mode. Starting
// an already started scheduler is an error.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return fmt.Errorf("scheduler already started")
	}

	spec, err := s.cronSpec()
	if err != nil {
		return err
	}

	entryID, err := s.cron.AddFunc(spec, s.onFire)
	if err != nil {
		return fmt.Errorf("failed to register schedule %q: %w", spec, err)
	}
	s.entryID = entryID
	s.cron.Start()
	s.state = StateRunning

	s.logger.Info().
		Str("mode", string(s.cfg.Mode)).
		Str("spec", spec).
		Str("timezone", s.cfg.Timezone).
		Msg("Scheduler started")

	return nil
}

// cronSpec maps the configured mode onto a cron spec. Interval and
// trading-hours modes use the @every shorthand; the trading window is
// enforced at fire time so interval arithmetic stays trivial.
func (s *Service) cronSpec() (string, error) {
	switch s.cfg.Mode {
	case common.SchedulerModeInterval, common.SchedulerModeTradingHours:
		interval, err := time.ParseDuration(s.cfg.Interval)
		if err != nil {
			return "", fmt.Errorf("invalid interval %q: %w", s.cfg.Interval, err)
		}
		return "@every " + interval.String(), nil
	case common.SchedulerModeCron:
		return s.cfg.CronExpr, nil
	default:
		return "", fmt.Errorf("unknown scheduler mode: %s", s.cfg.Mode)
	}
}

// Stop disarms the timer and waits for the cron machinery to wind
// down. An in-flight run is canceled.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.state = StateStopped
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// TriggerNow requests an immediate run, regardless of the trading
// window. Returns false when a run is already executing; the request
// is counted as skipped, never queued.
func (s *Service) TriggerNow() bool {
	s.mu.Lock()
	if s.state == StateTriggering {
		s.stats.SkippedOverlap++
		s.mu.Unlock()
		s.logger.Info().Msg("Manual trigger skipped, run already in progress")
		return false
	}
	s.mu.Unlock()

	go s.execute(models.TriggerManual)
	return true
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GetStats returns a snapshot of scheduler counters.
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	if s.state != StateStopped {
		if entry := s.cron.Entry(s.entryID); !entry.Next.IsZero() {
			next := entry.Next
			stats.NextRunAt = &next
		}
	}
	return stats
}

// RunHistory returns the retained run records, newest first.
func (s *Service) RunHistory() []models.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]models.RunRecord, len(s.runHistory))
	copy(history, s.runHistory)
	return history
}

// onFire handles a timer fire. Fires outside the trading window (in
// trading-hours mode) and fires during an active run are skipped.
func (s *Service) onFire() {
	if s.cfg.Mode == common.SchedulerModeTradingHours && !s.withinWindow(time.Now().In(s.location)) {
		s.logger.Debug().Msg("Outside trading window, skipping scheduled run")
		return
	}

	s.mu.Lock()
	if s.state != StateRunning {
		if s.state == StateTriggering {
			s.stats.SkippedOverlap++
			s.logger.Info().
				Int("skipped_overlap", s.stats.SkippedOverlap).
				Msg("Scheduled run skipped, previous run still in progress")
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.execute(models.TriggerScheduled)
}

// withinWindow reports whether t falls inside the exchange trading
// window: Monday to Friday between the configured open and close hours.
func (s *Service) withinWindow(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	hour := t.Hour()
	return hour >= s.cfg.WindowOpenHour && hour < s.cfg.WindowCloseHour
}

// execute runs the pipeline once, guarding against overlap and panics.
func (s *Service) execute(trigger models.RunTrigger) {
	s.mu.Lock()
	if s.state == StateTriggering {
		s.stats.SkippedOverlap++
		s.mu.Unlock()
		return
	}
	prevState := s.state
	s.state = StateTriggering

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelRun = cancel

	record := models.RunRecord{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Pipeline run panicked")
			record.Error = fmt.Sprintf("panic: %v", r)
			s.finishRun(record, prevState, false)
		}
	}()
	defer cancel()

	s.logger.Info().
		Str("run_id", record.ID).
		Str("trigger", string(trigger)).
		Msg("Pipeline run triggered")

	stats, err := s.runner.Run(ctx, trigger)
	record.EndedAt = time.Now()
	record.Stats = stats
	if err != nil {
		record.Error = err.Error()
		s.logger.Error().Err(err).Str("run_id", record.ID).Msg("Pipeline run failed")
	}

	s.finishRun(record, prevState, err == nil)
}

// finishRun restores the lifecycle state and retains the run record.
func (s *Service) finishRun(record models.RunRecord, prevState State, succeeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelRun = nil
	// Stop may have been called while the run was executing
	if s.state == StateTriggering {
		s.state = prevState
	}

	now := record.StartedAt
	s.stats.LastRunAt = &now
	if succeeded {
		s.stats.RunsCompleted++
	} else {
		s.stats.RunsFailed++
	}

	s.runHistory = append([]models.RunRecord{record}, s.runHistory...)
	limit := s.cfg.RunHistory
	if limit <= 0 {
		limit = 50
	}
	if len(s.runHistory) > limit {
		s.runHistory = s.runHistory[:limit]
	}
}
