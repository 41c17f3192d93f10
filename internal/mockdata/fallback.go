package mockdata

import (
	_ "embed"
	"encoding/json"
	"time"

	"bellweaver/internal/model"
)

// Built-in sample used when the on-disk corpus cannot be loaded.
var (
	//go:embed fallback/compass_events.json
	fallbackEvents []byte
	//go:embed fallback/compass_user.json
	fallbackUser []byte
)

// FallbackUserID is the user id of the built-in sample account.
const FallbackUserID = 12345

// FallbackEvents returns a fresh copy of the built-in events.
func FallbackEvents() []model.Raw {
	var out []model.Raw
	mustDecode(fallbackEvents, &out)
	return out
}

// FallbackUser returns a fresh copy of the built-in user.
func FallbackUser() model.Raw {
	var out model.Raw
	mustDecode(fallbackUser, &out)
	return out
}

// SyntheticVersion describes a corpus made from the built-in sample.
func SyntheticVersion(now time.Time) SchemaVersion {
	return SchemaVersion{
		Version:     "1.0.0",
		APIVersion:  "1.0.0",
		LastUpdated: now.UTC().Truncate(time.Second),
		Source:      SourceSynthetic,
	}
}

func mustDecode(data []byte, out any) {
	if err := json.Unmarshal(data, out); err != nil {
		panic("mockdata: embedded fallback is not valid JSON: " + err.Error())
	}
}
