package maintain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	JobAggregate = "aggregate"
	JobCompress  = "compress"
)

// JobState is the last known outcome of a scheduled job.
type JobState struct {
	Name       string        `json:"name"`
	Schedule   string        `json:"schedule"`
	Running    bool          `json:"running"`
	LastStart  time.Time     `json:"last_start,omitempty"`
	LastFinish time.Time     `json:"last_finish,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
	Runs       int64         `json:"runs"`
	Failures   int64         `json:"failures"`
	Duration   time.Duration `json:"duration"`
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// SetupScheduler registers the aggregate and compress jobs on their cron
// schedules. A job still running when its next tick fires is skipped.
func (a *App) SetupScheduler(ctx context.Context) error {
	logger := cronLogger{s: a.Logger.Sugar()}
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	jobs := []struct {
		name     string
		schedule string
		fn       func(context.Context) error
	}{
		{JobAggregate, a.Config.Maintenance.AggregateCron, func(ctx context.Context) error {
			_, err := a.Aggregator.Run(ctx, false)
			return err
		}},
		{JobCompress, a.Config.Maintenance.CompressCron, func(ctx context.Context) error {
			_, err := a.Compressor.Run(ctx)
			return err
		}},
	}

	for _, job := range jobs {
		job := job
		if _, err := a.Cron.AddFunc(job.schedule, func() { a.runJob(ctx, job.name, job.fn) }); err != nil {
			return err
		}
		a.Jobs.Store(job.name, JobState{Name: job.name, Schedule: job.schedule})
	}
	return nil
}

// runJob executes fn and records its outcome in Jobs.
func (a *App) runJob(ctx context.Context, name string, fn func(context.Context) error) {
	start := time.Now()
	a.updateJob(name, func(s *JobState) {
		s.Running = true
		s.LastStart = start
	})
	a.Logger.Info("Scheduled job started", zap.String("job", name))

	err := fn(ctx)

	a.updateJob(name, func(s *JobState) {
		s.Running = false
		s.LastFinish = time.Now()
		s.Duration = time.Since(start)
		s.Runs++
		s.LastError = ""
		if err != nil {
			s.Failures++
			s.LastError = err.Error()
		}
	})

	if err != nil {
		a.Logger.Error("Scheduled job failed", zap.String("job", name), zap.Error(err))
		return
	}
	a.Logger.Info("Scheduled job finished", zap.String("job", name), zap.Duration("duration", time.Since(start)))
}

func (a *App) updateJob(name string, fn func(*JobState)) {
	a.Jobs.Compute(name, func(old JobState, loaded bool) (JobState, xsync.ComputeOp) {
		if !loaded {
			old.Name = name
		}
		fn(&old)
		return old, xsync.UpdateOp
	})
}

// SetupServer exposes /healthz, /readyz and /jobs.
func (a *App) SetupServer() {
	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if a.Ready(req.Context()) {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})).Methods("GET")
	r.Handle("/jobs", http.HandlerFunc(a.handleJobs)).Methods("GET")

	a.Server = &http.Server{
		Addr:              a.Config.Maintenance.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (a *App) handleJobs(w http.ResponseWriter, _ *http.Request) {
	out := make([]JobState, 0)
	a.Jobs.Range(func(_ string, s JobState) bool {
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// Ready reports whether the store answers a ping.
func (a *App) Ready(ctx context.Context) bool {
	if a.DB == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.DB.Ping(ctx) == nil
}

// Daemon runs the scheduler and the health server until ctx is cancelled.
func (a *App) Daemon(ctx context.Context) error {
	if err := a.SetupScheduler(ctx); err != nil {
		return err
	}
	a.SetupServer()

	errCh := make(chan error, 1)
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.Cron.Start()
	a.Logger.Info("Maintenance daemon started",
		zap.String("addr", a.Config.Maintenance.Addr),
		zap.String("aggregate_cron", a.Config.Maintenance.AggregateCron),
		zap.String("compress_cron", a.Config.Maintenance.CompressCron))

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	a.Logger.Info("Maintenance daemon shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)
	<-a.Cron.Stop().Done()

	return err
}
