package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/air-quality-map/internal/store"
)

// Reaper periodically unmounts map sessions whose clients went away without
// deleting them.
type Reaper struct {
	scheduler *gocron.Scheduler
	store     *store.MemoryStore
	interval  time.Duration
}

// New creates a new Reaper.
func New(sessions *store.MemoryStore, interval time.Duration) *Reaper {
	return &Reaper{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     sessions,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (r *Reaper) Start() error {
	interval := r.interval
	if interval <= 0 {
		interval = time.Minute
	}

	_, err := r.scheduler.Every(interval).SingletonMode().Do(func() { r.RunOnce() })
	if err != nil {
		return err
	}

	r.scheduler.StartAsync()
	return nil
}

// RunOnce unmounts every expired session and returns how many were reaped.
func (r *Reaper) RunOnce() int {
	expired := r.store.Expired()
	if len(expired) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	for _, sess := range expired {
		sess := sess
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Widget.Unmount()
		}()
	}
	wg.Wait()

	slog.Info("reaped idle map sessions", "count", len(expired))
	return len(expired)
}

// Stop stops the scheduler and cancels any future jobs.
func (r *Reaper) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}
