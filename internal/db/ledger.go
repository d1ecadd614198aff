package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"Mailwright/internal/errs"
	"Mailwright/internal/models"
)

// CreateMessage inserts the rendered message as PENDING and returns its ID.
func (s *Store) CreateMessage(ctx context.Context, m *models.EmailMessage) (string, error) {
	m.ID = uuid.NewString()
	m.Status = models.StatusPending

	err := s.Pool.QueryRow(ctx,
		`INSERT INTO email_messages
		 (id, sender, recipient, template_id, subject, content, status, scheduled_at, attachments, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
		 RETURNING created_at, updated_at`,
		m.ID,
		m.Sender,
		m.Recipient,
		m.TemplateID,
		m.Subject,
		m.Content,
		m.Status,
		m.ScheduledAt,
		m.Attachments,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return "", wrap("create message", err)
	}

	return m.ID, nil
}

func (s *Store) UpdateMessageStatus(
	ctx context.Context,
	id string,
	status models.MessageStatus,
) error {

	tag, err := s.Pool.Exec(ctx,
		`UPDATE email_messages
		 SET status=$1,
		     updated_at=NOW()
		 WHERE id=$2`,
		status,
		id,
	)
	if err != nil {
		return wrap("update message status", err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update message status", errs.ErrNotFound)
	}

	return nil
}

// AppendSendLog inserts one audit event. Send logs have no update or delete
// path.
func (s *Store) AppendSendLog(ctx context.Context, l *models.EmailSendLog) error {
	return wrap("append send log", appendSendLog(ctx, s.Pool, l))
}

func (s *Store) GetMessage(ctx context.Context, id string) (*models.EmailMessage, error) {
	m, err := getMessage(ctx, s.Pool, id, false)
	if err != nil {
		return nil, wrap("get message", err)
	}
	return m, nil
}

// SendLogs returns the audit trail of a message, oldest first.
func (s *Store) SendLogs(ctx context.Context, messageID string) ([]models.EmailSendLog, error) {
	logs, err := sendLogs(ctx, s.Pool, messageID)
	if err != nil {
		return nil, wrap("list send logs", err)
	}
	return logs, nil
}

// ClaimRetry locks the message row, checks that it may be retried and
// records the next RETRY_ATTEMPT in one transaction. Concurrent claims on the
// same message are serialised by the row lock, so at most one of them wins
// while an attempt is in flight.
func (s *Store) ClaimRetry(ctx context.Context, id string, at time.Time) (*models.EmailMessage, int, error) {
	var (
		msg     *models.EmailMessage
		attempt int
	)

	err := s.withTx(ctx, "claim retry", func(tx pgx.Tx) error {
		m, err := getMessage(ctx, tx, id, true)
		if err != nil {
			return err
		}
		msg = m

		logs, err := sendLogs(ctx, tx, id)
		if err != nil {
			return err
		}

		var retryMax int
		err = tx.QueryRow(ctx,
			`SELECT retry_max FROM email_templates WHERE id=$1`, m.TemplateID,
		).Scan(&retryMax)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("template %s no longer exists: %w", m.TemplateID, errs.ErrInvalidState)
		}
		if err != nil {
			return err
		}

		attempt, err = models.NextRetry(*m, logs, retryMax, at)
		if err != nil {
			return err
		}

		return appendSendLog(ctx, tx, &models.EmailSendLog{
			EmailMessageID: id,
			LogType:        models.LogRetryAttempt,
			SentAt:         at,
			RetryCount:     attempt,
		})
	})
	if err != nil {
		return msg, 0, err
	}
	return msg, attempt, nil
}

// CancelMessage appends CANCELLED under the message row lock. Cancelling
// twice is a no-op.
func (s *Store) CancelMessage(ctx context.Context, id string, at time.Time) error {
	return s.withTx(ctx, "cancel message", func(tx pgx.Tx) error {
		m, err := getMessage(ctx, tx, id, true)
		if err != nil {
			return err
		}
		logs, err := sendLogs(ctx, tx, id)
		if err != nil {
			return err
		}

		cancelled, err := models.CheckCancel(*m, logs)
		if err != nil || cancelled {
			return err
		}

		return appendSendLog(ctx, tx, &models.EmailSendLog{
			EmailMessageID: id,
			LogType:        models.LogCancelled,
			SentAt:         at,
		})
	})
}

const messageColumns = `id, sender, recipient, template_id, subject, content, status,
		        scheduled_at, attachments, created_at, updated_at`

func getMessage(ctx context.Context, q querier, id string, forUpdate bool) (*models.EmailMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM email_messages WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var m models.EmailMessage
	err := q.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.Sender,
		&m.Recipient,
		&m.TemplateID,
		&m.Subject,
		&m.Content,
		&m.Status,
		&m.ScheduledAt,
		&m.Attachments,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func sendLogs(ctx context.Context, q querier, messageID string) ([]models.EmailSendLog, error) {
	rows, err := q.Query(ctx,
		`SELECT id, email_message_id, log_type, sent_at, retry_count, retry_scheduled_at, created_at
		 FROM email_send_logs
		 WHERE email_message_id=$1
		 ORDER BY created_at, id`,
		messageID,
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.EmailSendLog, error) {
		var l models.EmailSendLog
		err := row.Scan(&l.ID, &l.EmailMessageID, &l.LogType, &l.SentAt, &l.RetryCount, &l.RetryScheduledAt, &l.CreatedAt)
		return l, err
	})
}

func appendSendLog(ctx context.Context, q querier, l *models.EmailSendLog) error {
	l.ID = uuid.NewString()

	return q.QueryRow(ctx,
		`INSERT INTO email_send_logs
		 (id, email_message_id, log_type, sent_at, retry_count, retry_scheduled_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,NOW())
		 RETURNING created_at`,
		l.ID,
		l.EmailMessageID,
		l.LogType,
		l.SentAt,
		l.RetryCount,
		l.RetryScheduledAt,
	).Scan(&l.CreatedAt)
}
