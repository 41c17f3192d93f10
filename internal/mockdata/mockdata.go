// Package mockdata reads, writes and checks the committed Compass sample
// corpus used by the mock client.
//
// A corpus directory holds three files:
//   - compass_events.json: a JSON array of raw calendar events
//   - compass_user.json:   a single raw user-details object
//   - schema_version.json: a SchemaVersion descriptor
package mockdata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"bellweaver/internal/model"
)

const (
	EventsFile  = "compass_events.json"
	UserFile    = "compass_user.json"
	VersionFile = "schema_version.json"
)

// DefaultDir is the corpus location relative to the repository root.
const DefaultDir = "data/mock"

// Corpus provenance values for SchemaVersion.Source.
const (
	SourceReal      = "real"
	SourceSynthetic = "synthetic"
)

// SchemaVersion describes the corpus currently on disk.
type SchemaVersion struct {
	Version     string    `json:"version" validate:"required,semver"`
	APIVersion  string    `json:"api_version" validate:"required"`
	LastUpdated time.Time `json:"last_updated" validate:"required"`
	Source      string    `json:"source" validate:"required,oneof=real synthetic"`
}

var validate = validator.New()

// Validate checks the descriptor fields.
func (v SchemaVersion) Validate() error {
	return validate.Struct(v)
}

// ReadEvents decodes the events file in dir. The file must hold a JSON array
// of objects.
func ReadEvents(dir string) ([]model.Raw, error) {
	var events []model.Raw
	if err := readJSON(filepath.Join(dir, EventsFile), &events); err != nil {
		return nil, err
	}
	if events == nil {
		return nil, fmt.Errorf("%s: expected a JSON array", EventsFile)
	}
	return events, nil
}

// ReadUser decodes the user file in dir. The file must hold a JSON object.
func ReadUser(dir string) (model.Raw, error) {
	var user model.Raw
	if err := readJSON(filepath.Join(dir, UserFile), &user); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%s: expected a JSON object", UserFile)
	}
	return user, nil
}

// ReadVersion decodes and validates the schema version descriptor in dir.
func ReadVersion(dir string) (SchemaVersion, error) {
	var v SchemaVersion
	if err := readJSON(filepath.Join(dir, VersionFile), &v); err != nil {
		return SchemaVersion{}, err
	}
	if err := v.Validate(); err != nil {
		return SchemaVersion{}, fmt.Errorf("%s: %w", VersionFile, err)
	}
	return v, nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// A literal null would leave out untouched; treat it like a wrong shape.
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("%s: unexpected null document", filepath.Base(path))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

// Write replaces the corpus in dir. Each file is written atomically; the
// version descriptor is written last so a reader never sees a new version
// next to old data.
func Write(dir string, events []model.Raw, user model.Raw, v SchemaVersion) error {
	if events == nil {
		events = []model.Raw{}
	}
	if user == nil {
		return errors.New("mockdata: user is nil")
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("mockdata: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, EventsFile), events); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, UserFile), user); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, VersionFile), v)
}

// writeJSON writes v as indented JSON via a temp file + rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bellweaver-mock-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
