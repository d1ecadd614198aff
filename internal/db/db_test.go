package db

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Mailwright/internal/errs"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantNotFound    bool
		wantPersistence bool
		wantInvalid     bool
	}{
		{name: "no rows", err: pgx.ErrNoRows, wantNotFound: true},
		{name: "bare not found", err: errs.ErrNotFound, wantNotFound: true},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, wantNotFound: true},
		{name: "unique", err: &pgconn.PgError{Code: "23505", Detail: "Key (key)=(username) already exists."}, wantInvalid: true},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), wantPersistence: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrap("op", tt.err)
			require.Error(t, got)
			assert.Equal(t, tt.wantNotFound, errors.Is(got, errs.ErrNotFound))
			assert.Equal(t, tt.wantPersistence, errs.IsPersistence(got))
			assert.Equal(t, tt.wantInvalid, errors.Is(got, errs.ErrInvalidState))
			assert.True(t, strings.HasPrefix(got.Error(), "op") || strings.HasPrefix(got.Error(), "persistence op"))
		})
	}

	assert.NoError(t, wrap("op", nil))
}

func TestWrap_KeepsDomainErrors(t *testing.T) {
	exhausted := fmt.Errorf("message m1 after 2 of 2 retries: %w", errs.ErrRetryExhausted)
	assert.Same(t, exhausted, wrap("claim retry", exhausted))

	invalid := fmt.Errorf("message m1 is SUCCESS: %w", errs.ErrInvalidState)
	assert.Same(t, invalid, wrap("claim retry", invalid))
}

func TestWrap_KeepsPersistenceError(t *testing.T) {
	inner := &errs.PersistenceError{Op: "inner", Err: errors.New("boom")}
	got := wrap("outer", inner)
	assert.Same(t, inner, got)
}

func TestMigrationsEmbedded(t *testing.T) {
	ups, err := fs.Glob(migrations, "migrations/*_up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations, "migrations/*_down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))

	schema, err := migrations.ReadFile(ups[0])
	require.NoError(t, err)
	for _, table := range []string{
		"email_templates",
		"metadata_placeholders",
		"email_placeholders",
		"email_messages",
		"email_send_logs",
	} {
		assert.Contains(t, string(schema), "CREATE TABLE IF NOT EXISTS "+table)
	}
}
