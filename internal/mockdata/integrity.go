package mockdata

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bellweaver/internal/model"
	"bellweaver/internal/parser"
)

// IntegrityError reports a corpus file that cannot be used. Index is the
// failing record position for the events file and -1 otherwise.
type IntegrityError struct {
	File  string
	Index int
	Err   error
}

func (e *IntegrityError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("mock corpus %s record %d: %v", e.File, e.Index, e.Err)
	}
	return fmt.Sprintf("mock corpus %s: %v", e.File, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// Report summarises a corpus that passed the integrity check.
type Report struct {
	Events  int
	UserID  int
	Version SchemaVersion
}

// Validate loads the corpus in dir and checks every record against the
// current Event and User models in strict mode. The first problem found is
// returned as an *IntegrityError.
func Validate(dir string) (Report, error) {
	events, err := ReadEvents(dir)
	if err != nil {
		return Report{}, &IntegrityError{File: EventsFile, Index: -1, Err: err}
	}
	user, err := ReadUser(dir)
	if err != nil {
		return Report{}, &IntegrityError{File: UserFile, Index: -1, Err: err}
	}
	v, err := ReadVersion(dir)
	if err != nil {
		return Report{}, &IntegrityError{File: VersionFile, Index: -1, Err: err}
	}

	rep, err := Check(events, user)
	if err != nil {
		return Report{}, err
	}
	rep.Version = v
	return rep, nil
}

// Check validates in-memory corpus records the same way Validate does for
// files. The refresh workflow uses it before anything is written.
func Check(events []model.Raw, user model.Raw) (Report, error) {
	if _, err := parser.ParseList(parser.EventModel, events); err != nil {
		idx := -1
		var perr *parser.ParseError
		if errors.As(err, &perr) {
			idx = perr.Index
		}
		return Report{}, &IntegrityError{File: EventsFile, Index: idx, Err: err}
	}
	u, err := parser.ParseOne(parser.UserModel, user)
	if err != nil {
		return Report{}, &IntegrityError{File: UserFile, Index: -1, Err: err}
	}
	return Report{Events: len(events), UserID: u.UserID}, nil
}

// BumpPatch increments the patch component of a MAJOR.MINOR.PATCH version.
// An empty version starts at 1.0.0.
func BumpPatch(version string) (string, error) {
	if version == "" {
		return "1.0.0", nil
	}
	core, _, _ := strings.Cut(strings.TrimPrefix(version, "v"), "-")
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid version %q", version)
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil || patch < 0 {
		return "", fmt.Errorf("invalid version %q", version)
	}
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1), nil
}
