package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"komgadl/internal/checker"
	"komgadl/internal/followlist"
	"komgadl/internal/store"
)

const (
	processQueueInterval = 30 * time.Second
	processQueueDelay    = 10 * time.Second

	autoRetryInterval = 5 * time.Minute
	autoRetryDelay    = 1 * time.Minute

	// linear backoff step: attempt k waits k * this after the last change
	retryBackoffStep = 5 * time.Minute

	// how often the follow loop re-reads its configuration
	followPollInterval = time.Minute
)

// Executor is the dispatch surface the scheduler drives.
type Executor interface {
	Dispatch(ctx context.Context, entry *store.DownloadEntry)
	Retry(ctx context.Context, id string) error
	IsActive(id string) bool
}

// ExtractorCheck answers whether the extractor is usable at all.
type ExtractorCheck interface {
	Installed() bool
}

// Scheduler owns the periodic work: queue dispatch, auto-retry with linear
// backoff, and the follow-list cadence. Ticks are not re-entrant; a tick
// finding the gate held simply returns.
type Scheduler struct {
	downloads store.DownloadRepository
	configs   store.ConfigRepository
	executor  Executor
	extractor ExtractorCheck
	checker   *checker.Checker
	libraries *followlist.Registry

	// non-reentrant processing gate; held for the whole dispatch
	processing sync.Mutex

	now func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewScheduler(
	downloads store.DownloadRepository,
	configs store.ConfigRepository,
	executor Executor,
	extractorCheck ExtractorCheck,
	chk *checker.Checker,
	libraries *followlist.Registry,
) *Scheduler {
	return &Scheduler{
		downloads: downloads,
		configs:   configs,
		executor:  executor,
		extractor: extractorCheck,
		checker:   chk,
		libraries: libraries,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
}

// Start launches the background tickers. They run until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(3)
	go s.loop(ctx, processQueueDelay, processQueueInterval, s.ProcessQueue)
	go s.loop(ctx, autoRetryDelay, autoRetryInterval, s.AutoRetryFailed)
	go s.followLoop(ctx)
	slog.Info("scheduler started")
}

// Stop terminates the tickers and waits for them.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, delay, interval time.Duration, tick func(context.Context)) {
	defer s.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			tick(ctx)
			timer.Reset(interval)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProcessQueue picks the highest-priority pending entry and hands it to the
// executor. Exactly one dispatch runs at a time; the gate is released when
// the dispatch finishes.
func (s *Scheduler) ProcessQueue(ctx context.Context) {
	if !s.processing.TryLock() {
		return
	}

	release := true
	defer func() {
		if release {
			s.processing.Unlock()
		}
	}()

	if !s.extractor.Installed() {
		slog.Warn("extractor not installed, skipping queue tick")
		return
	}

	pending, err := s.downloads.FindPendingOrdered(ctx)
	if err != nil {
		slog.Error("queue tick failed", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	entry := pending[0]
	if s.executor.IsActive(entry.ID) {
		return
	}

	// the blocking work leaves the tick goroutine; the gate travels with it
	release = false
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.processing.Unlock()
		s.executor.Dispatch(ctx, &entry)
	}()
}

// AutoRetryFailed re-queues FAILED entries whose linear backoff has elapsed:
// attempt k becomes eligible k*5min after the last modification.
func (s *Scheduler) AutoRetryFailed(ctx context.Context) {
	entries, err := s.downloads.FindRetryableFailed(ctx)
	if err != nil {
		slog.Error("auto-retry tick failed", "error", err)
		return
	}

	now := s.now()
	for _, entry := range entries {
		backoff := time.Duration(entry.RetryCount+1) * retryBackoffStep
		if now.Sub(entry.LastModified) < backoff {
			continue
		}
		if err := s.executor.Retry(ctx, entry.ID); err != nil {
			slog.Warn("auto-retry failed", "id", entry.ID, "error", err)
			continue
		}
		slog.Info("auto-retry queued", "id", entry.ID, "attempt", entry.RetryCount+1)
	}
}

// followLoop runs the follow-list check at the configured cadence. Config
// changes (enable/disable/interval) take effect at the next poll; a running
// check is never preempted.
func (s *Scheduler) followLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.followTick(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) followTick(ctx context.Context) {
	cfg, err := s.configs.GetFollowConfig(ctx)
	if err != nil {
		slog.Error("follow config read failed", "error", err)
		return
	}
	if !cfg.Enabled || cfg.CheckIntervalHours <= 0 {
		return
	}

	interval := time.Duration(cfg.CheckIntervalHours) * time.Hour
	if cfg.LastCheckTime != nil && s.now().Sub(*cfg.LastCheckTime) < interval {
		return
	}

	if _, err := s.checker.CheckAndQueueNewChapters(ctx); err != nil {
		slog.Error("follow check failed", "error", err)
	}
}

// RunLibraryCheckNow expands one library's follow list immediately,
// regardless of the configured cadence.
func (s *Scheduler) RunLibraryCheckNow(ctx context.Context, libraryID string) error {
	lib, err := s.libraries.Get(libraryID)
	if err != nil {
		return err
	}

	urls, err := followlist.ReadURLs(lib.Root)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return nil
	}

	results := s.checker.CheckAll(ctx, urls)
	for _, result := range results {
		if result.NeedsDownload {
			s.checker.QueueDownload(ctx, result.URL)
		}
	}
	return nil
}
