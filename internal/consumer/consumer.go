package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"Mailwright/internal/errs"
	"Mailwright/internal/metrics"
	"Mailwright/internal/models"
	"Mailwright/internal/queue"
)

type Queue interface {
	Name() string
	Receive(ctx context.Context) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
	Nack(ctx context.Context, d *queue.Delivery) error
}

type Outcome string

const (
	OutcomeAcked           Outcome = "acked"
	OutcomeNacked          Outcome = "nacked"
	OutcomeDropped         Outcome = "dropped"
	OutcomeTemplateMissing Outcome = "template_missing"
)

// Consumer drains verify-email jobs one delivery at a time.
type Consumer struct {
	queue    Queue
	pipeline *Pipeline
	limiter  *rate.Limiter
	log      *zap.Logger

	// newBackOff builds the wait policy used after receive errors and
	// nacks. Tests swap it for a zero backoff.
	newBackOff func() backoff.BackOff
}

func New(q Queue, p *Pipeline, limiter *rate.Limiter, log *zap.Logger) *Consumer {
	return &Consumer{
		queue:    q,
		pipeline: p,
		limiter:  limiter,
		log:      log.With(zap.String("queue", q.Name())),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run processes deliveries until ctx is cancelled. A delivery that has
// been received always runs to ack or nack, even if ctx is cancelled
// meanwhile.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("consumer started")
	defer c.log.Info("consumer stopped")

	b := c.newBackOff()

	for {
		if ctx.Err() != nil {
			return nil
		}

		// ----------------------------
		// Rate Limit
		// ----------------------------
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		d, err := c.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("receive failed", zap.Error(err))
			if !sleep(ctx, b.NextBackOff()) {
				return nil
			}
			continue
		}
		if d == nil {
			continue
		}

		outcome := c.Handle(context.WithoutCancel(ctx), d)

		if outcome == OutcomeNacked {
			if !sleep(ctx, b.NextBackOff()) {
				return nil
			}
			continue
		}
		b.Reset()
	}
}

// Handle drives one delivery through the pipeline and settles it.
//
// Undecodable payloads and jobs whose template is missing are acknowledged:
// redelivering them cannot succeed. A relay failure is recorded by the
// pipeline and acknowledged as well. Only store failures are nacked, so the
// job comes back once the store recovers.
func (c *Consumer) Handle(ctx context.Context, d *queue.Delivery) Outcome {
	start := time.Now()
	log := c.log.With(zap.String("delivery_tag", d.Tag))

	outcome := c.process(ctx, log, d)

	var settleErr error
	if outcome == OutcomeNacked {
		settleErr = c.queue.Nack(ctx, d)
	} else {
		settleErr = c.queue.Ack(ctx, d)
	}
	if settleErr != nil {
		log.Error("failed to settle delivery", zap.String("outcome", string(outcome)), zap.Error(settleErr))
	}

	metrics.JobsProcessed.WithLabelValues(c.queue.Name(), string(outcome)).Inc()
	metrics.JobDuration.WithLabelValues(c.queue.Name()).Observe(time.Since(start).Seconds())
	return outcome
}

func (c *Consumer) process(ctx context.Context, log *zap.Logger, d *queue.Delivery) Outcome {
	job, err := DecodeJob(d.Body)
	if err != nil {
		log.Warn("dropping undecodable job", zap.Error(err))
		return OutcomeDropped
	}

	msg, err := c.pipeline.SendVerifyEmail(ctx, job)
	switch {
	case err == nil:
		log.Debug("job handled",
			zap.String("message_id", msg.ID),
			zap.String("status", string(msg.Status)),
		)
		return OutcomeAcked

	case errors.Is(err, errs.ErrNotFound):
		log.Error("no in-use template, dropping job",
			zap.String("template_type", string(models.TemplateVerifyEmail)),
			zap.String("to", job.Email),
			zap.Error(err),
		)
		metrics.TemplateMissing.WithLabelValues(string(models.TemplateVerifyEmail)).Inc()
		return OutcomeTemplateMissing

	default:
		log.Error("job processing failed, requeueing", zap.String("to", job.Email), zap.Error(err))
		return OutcomeNacked
	}
}

// DecodeJob parses a queue payload. Empty bodies, invalid JSON and jobs
// without a recipient are reported as *errs.DecodeError.
func DecodeJob(body []byte) (models.VerifyEmailJob, error) {
	var job models.VerifyEmailJob

	if len(bytes.TrimSpace(body)) == 0 {
		return job, &errs.DecodeError{Err: errors.New("empty payload")}
	}
	if err := json.Unmarshal(body, &job); err != nil {
		return job, &errs.DecodeError{Err: err}
	}
	if job.Email == "" {
		return job, &errs.DecodeError{Err: errors.New("missing email")}
	}
	return job, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		d = time.Second
	}
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
