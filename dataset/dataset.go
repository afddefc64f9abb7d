// Package dataset imports the published vaccination list into the store.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"vacunagates/models"

	log "github.com/sirupsen/logrus"
)

const DefaultURL = "https://raw.githubusercontent.com/unrecano/VacunaGate_Peru/main/487vacunados.csv"

// Policy decides what happens to rows whose column count is wrong.
type Policy string

const (
	// PolicySkip logs malformed rows and keeps importing.
	PolicySkip Policy = "skip"
	// PolicyFail aborts the import at the first malformed row.
	PolicyFail Policy = "fail"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyFail:
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("unknown csv policy %q (want %q or %q)", s, PolicySkip, PolicyFail)
	}
}

// MalformedRowError reports a data row with the wrong number of columns.
type MalformedRowError struct {
	Line    int
	Columns int
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("line %d: expected %d columns, got %d", e.Line, len(models.PersonHeaders), e.Columns)
}

// Writer is where imported persons are stored.
type Writer interface {
	UpsertPersons(ctx context.Context, persons []models.Person) error
}

type Importer struct {
	URL    string
	Policy Policy
	Client *http.Client
	Store  Writer
	// TempDir overrides the directory used for the downloaded file.
	TempDir string
}

// Import downloads the dataset, parses it and upserts every person keyed by
// sequence number. Download, filesystem and store errors abort the import.
func (i *Importer) Import(ctx context.Context) ([]models.Person, error) {
	log.WithField("url", i.URL).Info("Starting dataset import")

	persons, err := i.fetch(ctx)
	if err != nil {
		return nil, err
	}

	log.WithField("count", len(persons)).Info("Saving persons into store")
	if err := i.Store.UpsertPersons(ctx, persons); err != nil {
		return nil, fmt.Errorf("failed to save persons: %w", err)
	}

	log.Info("Finished dataset import")
	return persons, nil
}

func (i *Importer) fetch(ctx context.Context) ([]models.Person, error) {
	tmp, err := os.CreateTemp(i.TempDir, "dataset-*.csv")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warnf("Failed to remove temp file %s", tmp.Name())
		}
	}()

	if err := i.download(ctx, tmp); err != nil {
		return nil, err
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind temp file: %w", err)
	}

	return Parse(tmp, i.Policy)
}

func (i *Importer) download(ctx context.Context, w io.Writer) error {
	client := i.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build dataset request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to download dataset: unexpected status %s", resp.Status)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}
	log.WithField("bytes", n).Debug("Downloaded dataset")
	return nil
}

// Parse reads a comma separated dataset with a header row and maps every
// data row positionally onto a Person.
func Parse(r io.Reader, policy Policy) ([]models.Person, error) {
	reader := csv.NewReader(r)
	reader.Comma = ','
	// Column counts are checked per row against the fixed layout
	reader.FieldsPerRecord = -1

	var persons []models.Person
	line := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset: %w", err)
		}
		line++

		if line == 1 {
			continue
		}

		if len(row) != len(models.PersonHeaders) {
			rowErr := &MalformedRowError{Line: line, Columns: len(row)}
			if policy == PolicyFail {
				return nil, rowErr
			}
			log.WithFields(log.Fields{
				"line":    line,
				"columns": len(row),
			}).Warn("Skipping malformed dataset row")
			continue
		}

		person := models.PersonFromRow(row)
		log.Infof("> %s - %s, %s", person.N, person.LastName, person.FirstName)
		persons = append(persons, person)
	}

	return persons, nil
}
