package analysis

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"schedule-management-backend/internal/config"
)

// Worker processes submitted analyses in the background. The queue lives in
// memory only; analyses that never made it through, whether pending or
// interrupted while processing, are found again by the startup and periodic
// scans of csv_analyses.
type Worker struct {
	svc     *Service
	logger  *zap.Logger
	workers int
	rescan  time.Duration

	queue chan string

	mu      sync.Mutex
	pending map[string]bool // queued or running

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(svc *Service, cfg config.WorkerConfig, logger *zap.Logger) *Worker {
	size := cfg.QueueSize
	if size < 1 {
		size = 64
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if cfg.EntryParallel > 0 {
		svc.EntryParallelism = cfg.EntryParallel
	}

	w := &Worker{
		svc:     svc,
		logger:  logger.Named("worker"),
		workers: workers,
		rescan:  config.Duration(cfg.RescanInterval, 30*time.Second),
		queue:   make(chan string, size),
		pending: map[string]bool{},
	}
	svc.SetQueue(w)
	return w
}

// Enqueue never blocks. When the queue is full the analysis stays pending
// and the next scan picks it up.
func (w *Worker) Enqueue(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending[id] {
		return
	}
	select {
	case w.queue <- id:
		w.pending[id] = true
	default:
		w.logger.Warn("queue full, deferring analysis", zap.String("analysis_id", id))
	}
}

// Start resumes unfinished analyses and launches the workers. Call Stop to
// shut them down.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.scan(ctx)

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.run(ctx)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		t := time.NewTicker(w.rescan)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				w.scan(ctx)
			}
		}
	}()
}

// Stop cancels in-flight work and waits for every goroutine to exit.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.queue:
			if err := w.svc.Process(ctx, id); err != nil && ctx.Err() == nil {
				w.logger.Warn("process analysis", zap.String("analysis_id", id), zap.Error(err))
			}
			w.mu.Lock()
			delete(w.pending, id)
			w.mu.Unlock()
		}
	}
}

// scan enqueues every unfinished analysis. Runs this worker already holds
// are in w.pending and are not queued twice, so a processing run found here
// is one a restart or a full queue left behind.
func (w *Worker) scan(ctx context.Context) {
	ids, err := w.svc.PendingAnalyses(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("scan pending analyses", zap.Error(err))
		}
		return
	}
	for _, id := range ids {
		w.Enqueue(id)
	}
}
