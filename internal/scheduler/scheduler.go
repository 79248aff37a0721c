package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const jobName = "balance-sync"

// JobFunc is one poll cycle
type JobFunc func(ctx context.Context) error

// Scheduler runs the poll cycle on a clock-aligned schedule.
// Cycles never overlap: a cycle still running when the next tick fires
// causes that tick to be skipped.
type Scheduler struct {
	gocronScheduler gocron.Scheduler
	job             gocron.Job
	interval        string
	cronExpr        string
	timezone        *time.Location
	runImmediately  bool
	logger          *slog.Logger
}

// Config holds scheduler configuration
type Config struct {
	Interval       string         // Duration ("5m", "60s") or cron expression ("*/5 * * * *")
	Timezone       *time.Location // Defaults to UTC
	RunImmediately bool
	Logger         *slog.Logger
}

var (
	// cronPattern matches 5 or 6 whitespace separated fields
	cronPattern = regexp.MustCompile(`^(\S+\s+){4,5}\S+$`)

	// Divisors of 60 and 24 keep runs aligned to the wall clock
	alignedSixtieths = map[int]bool{
		1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 10: true, 12: true,
		15: true, 20: true, 30: true,
	}
	alignedHours = map[int]bool{
		1: true, 2: true, 3: true, 4: true, 6: true, 8: true, 12: true, 24: true,
	}
)

// NewScheduler creates a scheduler that runs job on cfg.Interval
func NewScheduler(ctx context.Context, cfg Config, job JobFunc) (*Scheduler, error) {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cronExpr, err := resolveCron(cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("invalid interval: %w", err)
	}

	s := &Scheduler{
		interval:       cfg.Interval,
		cronExpr:       cronExpr,
		timezone:       cfg.Timezone,
		runImmediately: cfg.RunImmediately,
		logger:         cfg.Logger,
	}

	gs, err := gocron.NewScheduler(
		gocron.WithLocation(cfg.Timezone),
		gocron.WithLogger(newGocronLoggerAdapter(cfg.Logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	s.gocronScheduler = gs

	s.logger.Info("Scheduling balance sync",
		"interval", cfg.Interval,
		"cron", cronExpr,
		"timezone", cfg.Timezone.String(),
	)

	s.job, err = gs.NewJob(
		gocron.CronJob(cronExpr, hasSecondsField(cronExpr)),
		gocron.NewTask(func() {
			started := time.Now()
			if err := job(ctx); err != nil {
				s.logger.Error("Balance sync failed", "error", err, "duration", time.Since(started))
				return
			}
			s.logger.Debug("Balance sync finished", "duration", time.Since(started))
		}),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = gs.Shutdown()
		return nil, fmt.Errorf("failed to create scheduled job: %w", err)
	}

	return s, nil
}

// Start begins scheduling, running the job once first when configured to
func (s *Scheduler) Start() error {
	s.gocronScheduler.Start()

	if s.runImmediately {
		s.logger.Info("Running balance sync immediately")
		if err := s.job.RunNow(); err != nil {
			s.logger.Error("Immediate run failed", "error", err)
		}
	}

	if next, err := s.NextRun(); err == nil {
		s.logger.Info("Scheduler started", "next_run", next.Format(time.RFC3339), "timezone", s.timezone.String())
	} else {
		s.logger.Info("Scheduler started")
	}
	return nil
}

// Stop waits for a running cycle to finish and shuts the scheduler down
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.gocronScheduler.Shutdown()
}

// NextRun returns the next scheduled run time
func (s *Scheduler) NextRun() (time.Time, error) {
	next, err := s.job.NextRun()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get next run: %w", err)
	}
	return next, nil
}

// LastRun returns the last run time
func (s *Scheduler) LastRun() (time.Time, error) {
	last, err := s.job.LastRun()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last run: %w", err)
	}
	return last, nil
}

// CronExpression returns the cron expression the job runs on
func (s *Scheduler) CronExpression() string {
	return s.cronExpr
}

// ExpectedInterval is the nominal gap between two cycles, used by the health check.
// Cron expressions may be irregular, so they report a conservative five minutes.
func (s *Scheduler) ExpectedInterval() time.Duration {
	if d, err := time.ParseDuration(s.interval); err == nil {
		return d
	}
	return 5 * time.Minute
}

func resolveCron(interval string) (string, error) {
	if isCronExpression(interval) {
		return interval, nil
	}
	return durationToCron(interval)
}

func hasSecondsField(cronExpr string) bool {
	return len(strings.Fields(cronExpr)) == 6
}

// isCronExpression reports whether s looks like a cron expression rather than a duration
func isCronExpression(s string) bool {
	return cronPattern.MatchString(strings.TrimSpace(s))
}

// durationToCron converts a duration to a clock-aligned cron expression:
//
//	"30s" -> "*/30 * * * * *"
//	"5m"  -> "*/5 * * * *"
//	"1h"  -> "0 */1 * * *"
func durationToCron(interval string) (string, error) {
	d, err := time.ParseDuration(interval)
	if err != nil {
		return "", fmt.Errorf("invalid duration format: %w", err)
	}
	if d <= 0 {
		return "", fmt.Errorf("interval must be positive (got %s)", interval)
	}

	switch {
	case d < time.Minute:
		if d%time.Second != 0 || !alignedSixtieths[int(d/time.Second)] {
			return "", fmt.Errorf("second intervals must divide evenly into 60 (got %s)", interval)
		}
		return fmt.Sprintf("*/%d * * * * *", int(d/time.Second)), nil

	case d < time.Hour:
		if d%time.Minute != 0 || !alignedSixtieths[int(d/time.Minute)] {
			return "", fmt.Errorf("minute intervals must divide evenly into 60 (got %s)", interval)
		}
		return fmt.Sprintf("*/%d * * * *", int(d/time.Minute)), nil

	case d%time.Hour == 0:
		if !alignedHours[int(d/time.Hour)] {
			return "", fmt.Errorf("hour intervals must divide evenly into 24 (got %s)", interval)
		}
		return fmt.Sprintf("0 */%d * * *", int(d/time.Hour)), nil

	default:
		return "", fmt.Errorf("duration must be whole seconds, minutes, or hours (got %s)", interval)
	}
}

// ValidateScheduleInterval validates a schedule interval (duration or cron).
// An empty interval is valid and means one-shot mode.
func ValidateScheduleInterval(interval string) error {
	if interval == "" {
		return nil
	}
	if isCronExpression(interval) {
		if n := len(strings.Fields(interval)); n != 5 && n != 6 {
			return errors.New("cron expression must have 5 or 6 fields")
		}
		return nil
	}
	_, err := durationToCron(interval)
	return err
}

// DescribeSchedule returns a human-readable description of the schedule
func DescribeSchedule(interval string, timezone *time.Location) string {
	if timezone == nil {
		timezone = time.UTC
	}
	if interval == "" {
		return "once"
	}
	if isCronExpression(interval) {
		return fmt.Sprintf("cron: %s (%s)", interval, timezone.String())
	}

	d, err := time.ParseDuration(interval)
	if err != nil {
		return fmt.Sprintf("invalid: %s", interval)
	}
	cronExpr, err := durationToCron(interval)
	if err != nil {
		return fmt.Sprintf("duration: %s (non-aligned)", interval)
	}
	return fmt.Sprintf("every %s (aligned to clock, cron: %s, %s)", d, cronExpr, timezone.String())
}

// gocronLoggerAdapter routes gocron's logs through slog
type gocronLoggerAdapter struct {
	logger *slog.Logger
}

func newGocronLoggerAdapter(logger *slog.Logger) gocron.Logger {
	return &gocronLoggerAdapter{logger: logger.With("component", "scheduler")}
}

func (a *gocronLoggerAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *gocronLoggerAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *gocronLoggerAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *gocronLoggerAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
