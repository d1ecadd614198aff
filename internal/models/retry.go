package models

import (
	"fmt"
	"time"

	"Mailwright/internal/errs"
)

// RetryStaleAfter is how long an attempt without a recorded outcome keeps
// blocking further retries. After that the attempt is treated as abandoned.
const RetryStaleAfter = 5 * time.Minute

// NextRetry decides whether msg may be retried now, given its send logs and
// the retry cap of its template. It returns the retry count for the next
// RETRY_ATTEMPT.
func NextRetry(msg EmailMessage, logs []EmailSendLog, retryMax int, now time.Time) (int, error) {
	if msg.Status != StatusFailure {
		return 0, fmt.Errorf("message %s is %s: %w", msg.ID, msg.Status, errs.ErrInvalidState)
	}

	var (
		attempts, outcomes int
		lastAttempt        time.Time
	)
	for _, l := range logs {
		switch l.LogType {
		case LogCancelled:
			return 0, fmt.Errorf("message %s was cancelled: %w", msg.ID, errs.ErrInvalidState)
		case LogRetryAttempt:
			attempts++
			if l.SentAt.After(lastAttempt) {
				lastAttempt = l.SentAt
			}
		case LogRetrySuccess, LogRetryFailure:
			outcomes++
		}
	}

	if attempts > outcomes && now.Sub(lastAttempt) < RetryStaleAfter {
		return 0, fmt.Errorf("message %s has a retry in progress: %w", msg.ID, errs.ErrInvalidState)
	}
	if attempts >= retryMax {
		return 0, fmt.Errorf("message %s after %d of %d retries: %w", msg.ID, attempts, retryMax, errs.ErrRetryExhausted)
	}
	return attempts + 1, nil
}

// CheckCancel reports whether msg is already cancelled. Delivered messages
// cannot be cancelled.
func CheckCancel(msg EmailMessage, logs []EmailSendLog) (cancelled bool, err error) {
	if msg.Status == StatusSuccess {
		return false, fmt.Errorf("message %s was already delivered: %w", msg.ID, errs.ErrInvalidState)
	}
	for _, l := range logs {
		if l.LogType == LogCancelled {
			return true, nil
		}
	}
	return false, nil
}
