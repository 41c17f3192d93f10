// Package refresh rebuilds the mock corpus from a live Compass session.
package refresh

import (
	"context"
	"time"

	"github.com/go-ap/errors"

	"bellweaver/internal/compass"
	appLog "bellweaver/internal/log"
	"bellweaver/internal/mockdata"
	"bellweaver/internal/model"
)

// Redacted replaces personal values in a sanitized corpus.
const Redacted = "[REDACTED]"

// DefaultAPIVersion is recorded when no previous descriptor exists.
const DefaultAPIVersion = "1.0.0"

var (
	userPII  = []string{"userEmail", "email", "phone", "mobilePhone", "address", "suburb", "postcode", "state", "country"}
	eventPII = []string{"createdBy", "modifiedBy", "location", "description", "notes"}
)

// Options controls a refresh run.
type Options struct {
	// Dir is the corpus directory to overwrite.
	Dir string
	// Days is the number of days from today to fetch.
	Days  int
	Limit int
	// SkipSanitize writes personal fields as fetched.
	SkipSanitize bool
	// Location anchors "today"; nil means local time.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result describes what was written.
type Result struct {
	Report   mockdata.Report
	Previous string
}

// Run logs in with client, fetches the user and a window of events,
// sanitizes and validates them and then replaces the corpus in opts.Dir.
// Nothing is written when validation fails. The client is closed on return.
func Run(ctx context.Context, client compass.Client, opts Options) (Result, error) {
	defer client.Close()

	if opts.Dir == "" {
		return Result{}, errors.Newf("corpus directory is empty")
	}
	if opts.Days <= 0 {
		opts.Days = 30
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	if _, err := client.Login(ctx); err != nil {
		return Result{}, errors.Annotatef(err, "refresh login")
	}
	user, err := client.GetUserDetails(ctx, nil)
	if err != nil {
		return Result{}, errors.Annotatef(err, "refresh user")
	}
	start := compass.DateOf(now().In(loc))
	events, err := client.GetCalendarEvents(ctx, start, start.AddDays(opts.Days), opts.Limit)
	if err != nil {
		return Result{}, errors.Annotatef(err, "refresh events")
	}
	appLog.Info("refresh fetched", "events", len(events), "from", start.String(), "days", opts.Days)

	if opts.SkipSanitize {
		appLog.Warn("refresh sanitization skipped, personal data will be written")
	} else {
		user = SanitizeUser(user)
		events = SanitizeEvents(events)
	}

	rep, err := mockdata.Check(events, user)
	if err != nil {
		return Result{}, errors.Annotatef(err, "refresh validation")
	}

	prev, apiVersion := "", DefaultAPIVersion
	if old, err := mockdata.ReadVersion(opts.Dir); err == nil {
		prev = old.Version
		if old.APIVersion != "" {
			apiVersion = old.APIVersion
		}
	}
	next, err := mockdata.BumpPatch(prev)
	if err != nil {
		return Result{}, errors.Annotatef(err, "refresh version")
	}
	v := mockdata.SchemaVersion{
		Version:     next,
		APIVersion:  apiVersion,
		LastUpdated: now().UTC().Truncate(time.Second),
		Source:      mockdata.SourceReal,
	}
	if err := mockdata.Write(opts.Dir, events, user, v); err != nil {
		return Result{}, errors.Annotatef(err, "refresh write")
	}
	rep.Version = v
	appLog.Info("refresh wrote corpus", "dir", opts.Dir, "version", next, "previous", prev)
	return Result{Report: rep, Previous: prev}, nil
}

// SanitizeUser returns a copy of user with personal fields replaced by
// Redacted. Fields that are absent stay absent.
func SanitizeUser(user model.Raw) model.Raw {
	return redact(user, userPII)
}

// SanitizeEvents applies the event redaction list to a copy of each record.
func SanitizeEvents(events []model.Raw) []model.Raw {
	out := make([]model.Raw, len(events))
	for i, ev := range events {
		out[i] = redact(ev, eventPII)
	}
	return out
}

func redact(rec model.Raw, keys []string) model.Raw {
	out := make(model.Raw, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for _, k := range keys {
		if _, ok := out[k]; ok {
			out[k] = Redacted
		}
	}
	return out
}
