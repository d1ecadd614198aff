package consumer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"Mailwright/internal/email"
	"Mailwright/internal/errs"
	"Mailwright/internal/metrics"
	"Mailwright/internal/models"
)

// MessageStore claims retries and cancellations atomically. ClaimRetry checks
// the message against the retry policy and records the RETRY_ATTEMPT in one
// operation, so two concurrent retries of the same message cannot both be
// admitted.
type MessageStore interface {
	Ledger
	ClaimRetry(ctx context.Context, id string, at time.Time) (*models.EmailMessage, int, error)
	CancelMessage(ctx context.Context, id string, at time.Time) error
}

// Resender retries failed messages by hand, bounded by the retry cap of the
// template they were rendered from.
type Resender struct {
	Store     MessageStore
	Transport Transport
	Log       *zap.Logger
	Now       func() time.Time
}

func (r *Resender) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// Retry sends the stored subject and content of a FAILURE message again.
// The returned error carries the transport failure when the retry itself
// fails; the ledger has recorded it by then.
func (r *Resender) Retry(ctx context.Context, id string) (*models.EmailMessage, error) {
	msg, retryCount, err := r.Store.ClaimRetry(ctx, id, r.now())
	if err != nil {
		if errors.Is(err, errs.ErrRetryExhausted) {
			metrics.Retries.WithLabelValues("exhausted").Inc()
		}
		return msg, err
	}

	log := r.Log.With(zap.String("message_id", id), zap.Int("retry_count", retryCount))

	text, html := email.Bodies(msg.Content)
	sendErr := r.Transport.Send(ctx, email.Outbound{
		From:    msg.Sender,
		To:      msg.Recipient,
		Subject: msg.Subject,
		Text:    text,
		HTML:    html,
	})

	if sendErr != nil {
		if err := r.Store.AppendSendLog(ctx, &models.EmailSendLog{
			EmailMessageID: id,
			LogType:        models.LogRetryFailure,
			SentAt:         r.now(),
			RetryCount:     retryCount,
		}); err != nil {
			return msg, err
		}
		log.Warn("retry failed", zap.Error(sendErr))
		metrics.Retries.WithLabelValues("failure").Inc()
		return msg, sendErr
	}

	if err := r.Store.UpdateMessageStatus(ctx, id, models.StatusSuccess); err != nil {
		return msg, err
	}
	msg.Status = models.StatusSuccess

	if err := r.Store.AppendSendLog(ctx, &models.EmailSendLog{
		EmailMessageID: id,
		LogType:        models.LogRetrySuccess,
		SentAt:         r.now(),
		RetryCount:     retryCount,
	}); err != nil {
		return msg, err
	}

	log.Info("retry succeeded")
	metrics.Retries.WithLabelValues("success").Inc()
	return msg, nil
}

// Cancel marks a message so no further retries are attempted.
func (r *Resender) Cancel(ctx context.Context, id string) error {
	if err := r.Store.CancelMessage(ctx, id, r.now()); err != nil {
		return err
	}

	r.Log.Info("message cancelled", zap.String("message_id", id))
	metrics.Retries.WithLabelValues("cancelled").Inc()
	return nil
}
