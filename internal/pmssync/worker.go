package pmssync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brightpaw/vetdesk-ai-platform/internal/clinic"
	"github.com/brightpaw/vetdesk-ai-platform/internal/pms"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

const (
	defaultWorkers        = 2
	defaultReceiveWait    = 5  // seconds
	defaultReceiveMax     = 5  // messages
	maxReceiveWaitSeconds = 20 // SQS limit
	maxReceiveBatch       = 10
)

type clinicGetter interface {
	Get(ctx context.Context, clinicID string) (*clinic.Config, error)
}

// Worker consumes sync jobs and applies them to the clinic's PMS. A job is
// deleted from the queue only after the PMS call succeeds; failed jobs
// become visible again and eventually land on the redrive queue.
type Worker struct {
	queue   Queue
	pms     pms.Client
	clinics clinicGetter
	logger  *logging.Logger

	workers     int
	receiveWait int
	receiveMax  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WorkerOption configures the worker.
type WorkerOption func(*Worker)

// WithWorkerCount overrides the number of queue polling goroutines.
func WithWorkerCount(workers int) WorkerOption {
	return func(w *Worker) {
		if workers > 0 {
			w.workers = workers
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait time for receive calls.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(w *Worker) {
		if seconds < 0 {
			return
		}
		if seconds > maxReceiveWaitSeconds {
			seconds = maxReceiveWaitSeconds
		}
		w.receiveWait = seconds
	}
}

// NewWorker wires a sync worker around the queue and PMS client.
func NewWorker(queue Queue, pmsClient pms.Client, clinics clinicGetter, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("pmssync: queue cannot be nil")
	}
	if pmsClient == nil {
		panic("pmssync: pms client cannot be nil")
	}
	if clinics == nil {
		panic("pmssync: clinic getter cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		queue:       queue,
		pms:         pmsClient,
		clinics:     clinics,
		logger:      logger,
		workers:     defaultWorkers,
		receiveWait: defaultReceiveWait,
		receiveMax:  defaultReceiveMax,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the polling goroutines.
func (w *Worker) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
}

// Shutdown stops polling and waits for in-flight jobs, or until ctx is done.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run(workerID int) {
	defer w.wg.Done()
	w.logger.Debug("pms sync worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("pms sync worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(w.ctx, w.receiveMax, w.receiveWait)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive pms sync jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(msg)
		}
	}
}

func (w *Worker) handleMessage(msg Message) {
	job, err := decodeJob(msg.Body)
	if err != nil {
		// Malformed payloads never become valid; drop them.
		w.logger.Error("dropping undecodable pms sync job", "error", err, "message_id", msg.ID)
		w.deleteMessage(msg)
		return
	}

	if err := w.process(w.ctx, job); err != nil {
		w.logger.Error("pms sync job failed, leaving on queue",
			"error", err,
			"job_id", job.ID,
			"kind", job.Kind,
			"clinic_id", job.ClinicID,
		)
		return
	}

	w.logger.Info("pms sync job applied", "job_id", job.ID, "kind", job.Kind, "clinic_id", job.ClinicID)
	w.deleteMessage(msg)
}

func (w *Worker) process(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	cfg, err := w.clinics.Get(ctx, job.ClinicID)
	if err != nil {
		return fmt.Errorf("pmssync: load clinic %s: %w", job.ClinicID, err)
	}

	session, err := w.pms.Authenticate(ctx, pms.Credentials{
		Username: cfg.PMSCredentials.Username,
		Password: cfg.PMSCredentials.Password,
		SiteID:   cfg.PMSCredentials.SiteID,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	switch job.Kind {
	case KindCancel:
		return session.CancelAppointment(ctx, job.Cancel.ExternalID, job.Cancel.Reason)
	case KindReschedule:
		return w.applyReschedule(ctx, session, job.Reschedule)
	default:
		return fmt.Errorf("pmssync: unknown job kind %q", job.Kind)
	}
}

// applyReschedule expresses a reschedule as cancel-then-create against the
// PMS. If the create fails after the cancel succeeded the job stays on the
// queue; CancelAppointment on an already-cancelled external id is treated
// as success by the vendors we integrate with, so the retry converges.
func (w *Worker) applyReschedule(ctx context.Context, session pms.Session, job *RescheduleJob) error {
	if err := session.CancelAppointment(ctx, job.ExternalID, job.Reason); err != nil {
		return err
	}

	result, err := session.CreateAppointmentWithNewClient(ctx, pms.AppointmentParams{
		ClientName:  job.ClientName,
		ClientPhone: job.ClientPhone,
		PetName:     job.PetName,
		PetSpecies:  job.PetSpecies,
		Date:        job.Date,
		StartTime:   job.StartTime,
		EndTime:     job.EndTime,
		Reason:      job.Reason,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("pmssync: pms rejected reschedule create: %s", result.Message)
	}
	return nil
}

func (w *Worker) deleteMessage(msg Message) {
	deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, msg.ReceiptHandle); err != nil {
		w.logger.Error("failed to delete pms sync job", "error", err, "message_id", msg.ID)
	}
}
