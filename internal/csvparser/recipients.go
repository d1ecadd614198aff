package csvparser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"Mailwright/internal/models"
)

// DefaultMaxRows caps an upload when the caller passes no limit.
const DefaultMaxRows = 1000

// Column headers of a verify-email upload, matched case-insensitively.
const (
	ColumnEmail          = "email"
	ColumnUsername       = "username"
	ColumnVerifyEmailURL = "verifyEmailUrl"
)

// verifyColumns holds the position of each known column in the header row;
// -1 means the column is absent.
type verifyColumns struct {
	email, username, url int
}

func locateColumns(header []string) (verifyColumns, error) {
	cols := verifyColumns{email: -1, username: -1, url: -1}

	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))

		var slot *int
		switch {
		case strings.EqualFold(h, ColumnEmail):
			slot = &cols.email
		case strings.EqualFold(h, ColumnUsername):
			slot = &cols.username
		case strings.EqualFold(h, ColumnVerifyEmailURL):
			slot = &cols.url
		default:
			continue
		}
		if *slot != -1 {
			return cols, fmt.Errorf("csv has more than one %s column", h)
		}
		*slot = i
	}

	if cols.email == -1 {
		return cols, errors.New("csv must contain an Email column")
	}
	return cols, nil
}

// field returns the trimmed cell at i, or "" when the column is absent or
// the record is too short to reach it.
func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// ParseVerifyJobs reads verify-email recipients from a CSV with a header
// row. Email is required; Username and VerifyEmailUrl are optional and left
// empty when missing, so rendering falls back to N/A. Other columns are
// ignored. Rows without an address are skipped.
//
// maxRows limits how many jobs are returned.
func ParseVerifyJobs(r io.Reader, maxRows int) ([]models.VerifyEmailJob, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("csv is empty")
	}
	if err != nil {
		return nil, err
	}

	cols, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	jobs := make([]models.VerifyEmailJob, 0)
	for len(jobs) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		email := field(record, cols.email)
		if email == "" {
			continue
		}

		jobs = append(jobs, models.VerifyEmailJob{
			Email:          email,
			Username:       field(record, cols.username),
			VerifyEmailURL: field(record, cols.url),
		})
	}

	if len(jobs) == 0 {
		return nil, errors.New("csv must contain at least one data row")
	}
	return jobs, nil
}

// ParseFile is ParseVerifyJobs over a file on disk.
func ParseFile(path string, maxRows int) ([]models.VerifyEmailJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseVerifyJobs(f, maxRows)
}
