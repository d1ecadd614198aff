package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Mailwright/internal/errs"
)

var now = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func failed() EmailMessage {
	return EmailMessage{ID: "m1", Status: StatusFailure}
}

func entry(t SendLogStatus, at time.Time) EmailSendLog {
	return EmailSendLog{EmailMessageID: "m1", LogType: t, SentAt: at}
}

func TestNextRetry(t *testing.T) {
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name     string
		msg      EmailMessage
		logs     []EmailSendLog
		retryMax int
		want     int
		wantErr  error
	}{
		{
			name:     "first retry",
			msg:      failed(),
			logs:     []EmailSendLog{entry(LogSendFailure, earlier)},
			retryMax: 2,
			want:     1,
		},
		{
			name: "after a failed retry",
			msg:  failed(),
			logs: []EmailSendLog{
				entry(LogSendFailure, earlier),
				entry(LogRetryAttempt, earlier),
				entry(LogRetryFailure, earlier),
			},
			retryMax: 2,
			want:     2,
		},
		{
			name: "cap reached",
			msg:  failed(),
			logs: []EmailSendLog{
				entry(LogRetryAttempt, earlier),
				entry(LogRetryFailure, earlier),
			},
			retryMax: 1,
			wantErr:  errs.ErrRetryExhausted,
		},
		{
			name:     "zero cap",
			msg:      failed(),
			retryMax: 0,
			wantErr:  errs.ErrRetryExhausted,
		},
		{
			name:     "attempt in flight",
			msg:      failed(),
			logs:     []EmailSendLog{entry(LogRetryAttempt, now.Add(-time.Second))},
			retryMax: 5,
			wantErr:  errs.ErrInvalidState,
		},
		{
			name:     "abandoned attempt",
			msg:      failed(),
			logs:     []EmailSendLog{entry(LogRetryAttempt, now.Add(-RetryStaleAfter))},
			retryMax: 5,
			want:     2,
		},
		{
			name:     "cancelled",
			msg:      failed(),
			logs:     []EmailSendLog{entry(LogCancelled, earlier)},
			retryMax: 5,
			wantErr:  errs.ErrInvalidState,
		},
		{
			name:     "delivered",
			msg:      EmailMessage{ID: "m1", Status: StatusSuccess},
			retryMax: 5,
			wantErr:  errs.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRetry(tt.msg, tt.logs, tt.retryMax, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckCancel(t *testing.T) {
	done, err := CheckCancel(failed(), nil)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = CheckCancel(failed(), []EmailSendLog{entry(LogCancelled, now)})
	require.NoError(t, err)
	assert.True(t, done)

	_, err = CheckCancel(EmailMessage{ID: "m1", Status: StatusSuccess}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}
