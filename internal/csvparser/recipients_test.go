package csvparser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Mailwright/internal/models"
)

func TestParseVerifyJobs(t *testing.T) {
	in := "\ufeffEmail,UserName,verifyemailurl,ignored\na@b.com,alice,https://x/y,1\nc@d.com,,,2\n"

	jobs, err := ParseVerifyJobs(strings.NewReader(in), 100)
	require.NoError(t, err)

	assert.Equal(t, []models.VerifyEmailJob{
		{Email: "a@b.com", Username: "alice", VerifyEmailURL: "https://x/y"},
		{Email: "c@d.com"},
	}, jobs)
}

func TestParseVerifyJobs_ColumnOrderAndShortRows(t *testing.T) {
	in := "Plan, Username , EMAIL \npro,alice, a@b.com \nfree,bob,\nteam,carol\nsolo\n"

	jobs, err := ParseVerifyJobs(strings.NewReader(in), 0)
	require.NoError(t, err)

	assert.Equal(t, []models.VerifyEmailJob{
		{Email: "a@b.com", Username: "alice"},
	}, jobs)
}

func TestParseVerifyJobs_OptionalColumnsMayBeAbsent(t *testing.T) {
	jobs, err := ParseVerifyJobs(strings.NewReader("email\na@b.com\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []models.VerifyEmailJob{{Email: "a@b.com"}}, jobs)
}

func TestParseVerifyJobs_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "csv is empty"},
		{"no email column", "name,plan\nalice,pro\n", "Email column"},
		{"duplicate email column", "email,Email\na@b.com,c@d.com\n", "more than one Email column"},
		{"header only", "email\n", "at least one data row"},
		{"only blank emails", "email,username\n,alice\n", "at least one data row"},
		{"bad quoting", "email\n\"a@b.com\n", "in quoted-field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVerifyJobs(strings.NewReader(tt.in), 10)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseVerifyJobs_MaxRows(t *testing.T) {
	in := "email\na@x.com\n\nb@x.com\nc@x.com\n"

	jobs, err := ParseVerifyJobs(strings.NewReader(in), 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "b@x.com", jobs[1].Email)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipients.csv")
	require.NoError(t, os.WriteFile(path, []byte("email,username\na@b.com,alice\n"), 0o600))

	jobs, err := ParseFile(path, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "alice", jobs[0].Username)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.csv"), 0)
	assert.Error(t, err)
}
