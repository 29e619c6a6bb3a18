package pmssync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/brightpaw/vetdesk-ai-platform/internal/observability/metrics"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

const submitTimeout = 3 * time.Second

// Publisher submits sync jobs without coupling the caller to the outcome.
// Submit never returns an error: the local booking transaction has already
// committed by the time a job is published, and a queue outage must not
// surface to the caller. Failures are logged and counted; the nightly
// reconciliation sweep catches anything that never made it onto the queue.
type Publisher struct {
	queue   Queue
	logger  *logging.Logger
	metrics *metrics.ToolMetrics
}

// NewPublisher creates a fire-and-forget job publisher.
func NewPublisher(queue Queue, logger *logging.Logger, m *metrics.ToolMetrics) *Publisher {
	if queue == nil {
		panic("pmssync: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger, metrics: m}
}

// Submit places a job on the sync queue. Errors are swallowed.
func (p *Publisher) Submit(ctx context.Context, job Job) {
	if err := job.Validate(); err != nil {
		p.logger.Error("pms sync job rejected", "error", err, "kind", job.Kind, "clinic_id", job.ClinicID)
		p.metrics.ObserveSyncSubmit(string(job.Kind), "rejected")
		return
	}

	body, err := json.Marshal(job)
	if err != nil {
		p.logger.Error("pms sync job encode failed", "error", err, "job_id", job.ID)
		p.metrics.ObserveSyncSubmit(string(job.Kind), "failed")
		return
	}

	sendCtx, cancel := context.WithTimeout(withoutCancel(ctx), submitTimeout)
	defer cancel()

	if err := p.queue.Send(sendCtx, string(body)); err != nil {
		p.logger.Error("pms sync job submit failed",
			"error", err,
			"job_id", job.ID,
			"kind", job.Kind,
			"clinic_id", job.ClinicID,
		)
		p.metrics.ObserveSyncSubmit(string(job.Kind), "failed")
		return
	}

	p.logger.Info("pms sync job submitted", "job_id", job.ID, "kind", job.Kind, "clinic_id", job.ClinicID)
	p.metrics.ObserveSyncSubmit(string(job.Kind), "submitted")
}

// withoutCancel detaches the submit from the caller's cancellation while
// keeping its values. The voice webhook context often ends right after the
// tool result is returned, before the send completes.
func withoutCancel(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
