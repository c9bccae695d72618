package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bobby-s-dev/weatherbot/internal/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Job func(ctx context.Context) error

type entry struct {
	id      cron.EntryID
	spec    string
	job     Job
	lastRun time.Time
	lastErr string
	runs    int
}

// Scheduler triggers jobs from cron specs. Jobs never overlap: every run,
// scheduled or forced, holds the same execution lock.
type Scheduler struct {
	cron       *cron.Cron
	logger     *zap.Logger
	jobTimeout time.Duration

	exec sync.Mutex

	mu      sync.Mutex
	running bool
	jobs    map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(location *time.Location, jobTimeout time.Duration, logger *zap.Logger) *Scheduler {
	if location == nil {
		location = time.Local
	}
	cronLog := cronLogger{logger: logger.Sugar()}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.SkipIfStillRunning(cronLog)),
		),
		logger:     logger.With(zap.String("component", "scheduler")),
		jobTimeout: jobTimeout,
		jobs:       make(map[string]*entry),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// OnSchedule registers job under name for a standard five field cron spec
// or a descriptor such as "@every 5m".
func (s *Scheduler) OnSchedule(spec, name string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}

	id, err := s.cron.AddFunc(spec, func() { s.run(name) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", spec, name, err)
	}

	s.jobs[name] = &entry{id: id, spec: spec, job: job}
	s.logger.Info("Job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Start begins triggering scheduled jobs and then runs the named jobs once,
// in order, in the background.
func (s *Scheduler) Start(initial ...string) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))

	if len(initial) > 0 {
		go func() {
			for _, name := range initial {
				if err := s.RunNow(name); err != nil {
					s.logger.Error("Initial run failed", zap.String("job", name), zap.Error(err))
				}
			}
		}()
	}
}

// Stop prevents new runs and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunNow runs the named job synchronously, waiting for any running job.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	s.run(name)
	return nil
}

// ForceRun runs the named job in the background.
func (s *Scheduler) ForceRun(name string) error {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	s.logger.Info("Manually triggering job", zap.String("job", name))
	go s.run(name)
	return nil
}

func (s *Scheduler) run(name string) {
	s.exec.Lock()
	defer s.exec.Unlock()

	s.mu.Lock()
	e := s.jobs[name]
	parent := s.ctx
	s.mu.Unlock()

	ctx := parent
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.jobTimeout)
		defer cancel()
	}

	startTime := time.Now()
	s.logger.Info("Starting job", zap.String("job", name))

	err := s.invoke(ctx, name, e.job)
	duration := time.Since(startTime)
	metrics.ObserveJob(name, duration)

	s.mu.Lock()
	e.lastRun = startTime
	e.runs++
	e.lastErr = ""
	if err != nil {
		e.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Job failed",
			zap.String("job", name),
			zap.Error(err),
			zap.Duration("duration", duration))
		return
	}
	s.logger.Info("Job completed",
		zap.String("job", name),
		zap.Duration("duration", duration))
}

func (s *Scheduler) invoke(ctx context.Context, name string, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %q panicked: %v", name, r)
		}
	}()
	return job(ctx)
}

func (s *Scheduler) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make(map[string]interface{}, len(s.jobs))
	for name, e := range s.jobs {
		cronEntry := s.cron.Entry(e.id)
		jobs[name] = map[string]interface{}{
			"spec":       e.spec,
			"next_run":   cronEntry.Next,
			"last_run":   e.lastRun,
			"last_error": e.lastErr,
			"runs":       e.runs,
		}
	}

	return map[string]interface{}{
		"running": s.running,
		"jobs":    jobs,
	}
}

// DailySpecs converts "HH:MM" times of day into cron specs, one per distinct
// time, ordered by time of day.
func DailySpecs(times []string) ([]string, error) {
	seen := make(map[int]bool)
	var minutes []int

	for _, raw := range times {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		hour, minute, err := parseClock(raw)
		if err != nil {
			return nil, err
		}
		if m := hour*60 + minute; !seen[m] {
			seen[m] = true
			minutes = append(minutes, m)
		}
	}

	if len(minutes) == 0 {
		return nil, fmt.Errorf("no update times configured")
	}
	sort.Ints(minutes)

	specs := make([]string, len(minutes))
	for i, m := range minutes {
		specs[i] = fmt.Sprintf("%d %d * * *", m%60, m/60)
	}
	return specs, nil
}

// IntervalSpec builds a fixed interval spec.
func IntervalSpec(interval time.Duration) string {
	return "@every " + interval.String()
}

func parseClock(value string) (int, int, error) {
	parts := strings.SplitN(value, ":", 2)
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid time of day %q", value)
	}

	minute := 0
	if len(parts) == 2 {
		minute, err = strconv.Atoi(parts[1])
		if err != nil || minute < 0 || minute > 59 {
			return 0, 0, fmt.Errorf("invalid time of day %q", value)
		}
	}
	return hour, minute, nil
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
