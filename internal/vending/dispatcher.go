package vending

import (
	"context"
	"log/slog"
	"sync"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/metrics"
)

// VendJob is a vend queued on behalf of a recorded payment.
type VendJob struct {
	Request VendRequest
	TransID string
}

type Vender interface {
	Vend(ctx context.Context, req VendRequest) (*VendRecord, error)
}

type Worker struct {
	ID         int
	WorkerPool chan chan VendJob
	JobChannel chan VendJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan VendJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan VendJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(VendJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing vend job", "worker_id", w.ID, "trans_id", job.TransID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type DispatcherConfig struct {
	Workers   int
	QueueSize int
}

// Dispatcher runs vend jobs on a fixed pool of workers fed from a bounded queue.
type Dispatcher struct {
	vender  Vender
	logger  *slog.Logger
	metrics *metrics.Metrics

	jobQueue   chan VendJob
	workerPool chan chan VendJob
	maxWorkers int

	// jobCtx is what vends run under; it is not cancelled by Shutdown so
	// in-flight vends complete.
	jobCtx     context.Context
	workersCtx context.Context
	stop       context.CancelFunc
	wg         sync.WaitGroup
	dispatched chan struct{}
	once       sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(vender Vender, cfg DispatcherConfig, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	maxWorkers := cfg.Workers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	workersCtx, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		vender:     vender,
		logger:     logger,
		metrics:    m,
		jobQueue:   make(chan VendJob, queueSize),
		workerPool: make(chan chan VendJob, maxWorkers),
		maxWorkers: maxWorkers,
		jobCtx:     context.Background(),
		workersCtx: workersCtx,
		stop:       stop,
		dispatched: make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.once.Do(func() {
		for i := 0; i < d.maxWorkers; i++ {
			worker := NewWorker(i, d.workerPool, d.logger)
			worker.Start(d.workersCtx, &d.wg, d.process)
		}

		go d.dispatch()

		d.logger.Info("vend dispatcher started",
			"max_workers", d.maxWorkers,
			"queue_size", cap(d.jobQueue))
	})
}

func (d *Dispatcher) dispatch() {
	defer close(d.dispatched)

	for job := range d.jobQueue {
		select {
		case jobChannel := <-d.workerPool:
			select {
			case jobChannel <- job:
				continue
			case <-d.workersCtx.Done():
			}
		case <-d.workersCtx.Done():
		}
		d.abandon(job)
		return
	}
}

// abandon empties the closed queue after an interrupted shutdown. The payments
// behind these jobs are stored but unvended until `reconcile revend` runs.
func (d *Dispatcher) abandon(first VendJob) {
	transIDs := []string{first.TransID}
	for job := range d.jobQueue {
		transIDs = append(transIDs, job.TransID)
	}
	d.logger.Error("vend dispatcher dropped queued jobs, run `reconcile revend`",
		"dropped_jobs", len(transIDs),
		"trans_ids", transIDs)
}

// Submit queues a job without blocking. A full queue is reported as VEND_QUEUE_FULL.
func (d *Dispatcher) Submit(job VendJob) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return apperrors.ErrVendQueueFull
	}

	select {
	case d.jobQueue <- job:
		d.logger.Debug("vend job queued",
			"trans_id", job.TransID,
			"meter_number", job.Request.MeterNumber,
			"queue_length", len(d.jobQueue))
		return nil
	default:
		d.metrics.RecordQueueRejection()
		d.logger.Warn("vend queue full, rejecting job",
			"trans_id", job.TransID,
			"queue_capacity", cap(d.jobQueue))
		return apperrors.ErrVendQueueFull
	}
}

// Shutdown stops accepting jobs, runs everything already queued and waits for
// the workers. When ctx ends first, jobs still queued are dropped and logged.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.logger.Info("shutting down vend dispatcher")

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobQueue)
	}
	d.mu.Unlock()

	d.Start()

	done := make(chan struct{})
	go func() {
		<-d.dispatched
		d.stop()
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("vend dispatcher shutdown complete")
		return nil
	case <-ctx.Done():
		d.stop()
		<-d.dispatched
		d.logger.Warn("vend dispatcher shutdown interrupted, in-flight vends continue in the background",
			"error", ctx.Err())
		return ctx.Err()
	}
}

func (d *Dispatcher) process(job VendJob) {
	record, err := d.vender.Vend(d.jobCtx, job.Request)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.ErrCodeAggregateUpdateFailed {
			d.logger.Warn("queued vend needs reconciliation",
				"trans_id", job.TransID,
				"reference", record.Reference,
				"error", err)
			return
		}
		d.logger.Error("queued vend failed",
			"trans_id", job.TransID,
			"meter_number", job.Request.MeterNumber,
			"error", err)
		return
	}

	d.logger.Info("queued vend completed",
		"trans_id", job.TransID,
		"reference", record.Reference,
		"meter_number", record.MeterNumber)
}
