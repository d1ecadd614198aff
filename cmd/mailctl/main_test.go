package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Mailwright/internal/models"
)

func TestRootCommand_Tree(t *testing.T) {
	root := newRootCommand(&bytes.Buffer{})

	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"enqueue"},
		{"preview"},
		{"queue", "depth"},
		{"queue", "recover"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestEnqueueJobs(t *testing.T) {
	jobs, err := enqueueJobs(models.VerifyEmailJob{Email: " a@b.com ", Username: "alice"}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []models.VerifyEmailJob{{Email: "a@b.com", Username: "alice"}}, jobs)

	_, err = enqueueJobs(models.VerifyEmailJob{}, "", 0)
	assert.ErrorContains(t, err, "--email or --csv")

	path := filepath.Join(t.TempDir(), "r.csv")
	require.NoError(t, os.WriteFile(path, []byte("email,username\nx@y.com,xavier\nz@y.com,zoe\n"), 0o600))
	jobs, err = enqueueJobs(models.VerifyEmailJob{}, path, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestFlagValidationRunsBeforeConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"enqueue without recipient", []string{"enqueue"}, "--email or --csv"},
		{"enqueue with both sources", []string{"enqueue", "--email", "a@b.com", "--csv", "r.csv"}, "none of the others can be"},
		{"drop without confirm", []string{"migrate", "down"}, "--yes"},
		{"recover without consumer", []string{"queue", "recover"}, "--consumer"},
		{"preview unknown type", []string{"preview", "--type", "sms"}, "unknown template type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCommand(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tt.args)

			err := root.ExecuteContext(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
