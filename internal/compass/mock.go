package compass

import (
	"context"
	"path/filepath"
	"time"

	appLog "bellweaver/internal/log"
	"bellweaver/internal/mockdata"
	"bellweaver/internal/model"
	"bellweaver/internal/parser"
)

// MockClient serves the committed sample corpus with the same contract as
// HTTPClient. Login always succeeds and (re)loads the corpus; a corpus file
// that is missing, unreadable or fails strict validation is replaced by the
// built-in sample and reported at WARN.
type MockClient struct {
	dir    string
	userID int
	state  state

	events   []model.Raw
	user     model.Raw
	fallback []string
}

// NewMockClient returns an unauthenticated mock client reading from dir.
func NewMockClient(dir string) *MockClient {
	return &MockClient{dir: dir, userID: mockdata.FallbackUserID}
}

// Fallback reports whether any part of the loaded data is the built-in
// sample.
func (m *MockClient) Fallback() bool { return len(m.fallback) > 0 }

// FallbackFiles lists the corpus files that were replaced by the built-in
// sample during the last Login.
func (m *MockClient) FallbackFiles() []string {
	return append([]string(nil), m.fallback...)
}

// Login implements Client. Credentials are not checked.
func (m *MockClient) Login(_ context.Context) (bool, error) {
	if m.state == stateClosed {
		return false, authErr(ErrClosed)
	}
	m.fallback = m.fallback[:0]
	m.events = m.loadEvents()
	m.user = m.loadUser()
	m.state = stateAuthenticated
	appLog.Debug("compass mock login", "dir", m.dir, "events", len(m.events), "fallback", m.Fallback())
	return true, nil
}

func (m *MockClient) loadEvents() []model.Raw {
	events, err := mockdata.ReadEvents(m.dir)
	if err == nil {
		if _, failed, _ := parser.ParseSafe(parser.EventModel, events, false); len(failed) > 0 {
			err = failed[0]
		}
	}
	if err != nil {
		m.useFallback(mockdata.EventsFile, err)
		return mockdata.FallbackEvents()
	}
	return events
}

func (m *MockClient) loadUser() model.Raw {
	user, err := mockdata.ReadUser(m.dir)
	if err == nil {
		_, err = parser.ParseOne(parser.UserModel, user)
	}
	if err != nil {
		m.useFallback(mockdata.UserFile, err)
		return mockdata.FallbackUser()
	}
	return user
}

func (m *MockClient) useFallback(file string, err error) {
	m.fallback = append(m.fallback, file)
	appLog.Warn("mock corpus unavailable, using fallback", "file", filepath.Join(m.dir, file), "err", err.Error())
}

// GetUserDetails implements Client. targetUserID is ignored; the corpus
// holds a single user.
func (m *MockClient) GetUserDetails(_ context.Context, _ *int) (model.Raw, error) {
	if err := m.state.check("get_user_details"); err != nil {
		return nil, err
	}
	return cloneRaw(m.user), nil
}

// GetCalendarEvents implements Client. An event matches when the calendar
// date of its start, taken in the start's own offset, lies within
// [start, end]. A reversed range therefore matches nothing. Records whose
// start cannot be read are skipped. limit is applied after filtering, in
// corpus order.
func (m *MockClient) GetCalendarEvents(_ context.Context, start, end Date, limit int) ([]model.Raw, error) {
	if err := m.state.check("get_calendar_events"); err != nil {
		return nil, err
	}
	out := []model.Raw{}
	for _, ev := range m.events {
		if len(out) >= limit {
			break
		}
		d, ok := eventDate(ev)
		if !ok || d.Before(start) || end.Before(d) {
			continue
		}
		out = append(out, cloneRaw(ev))
	}
	return out, nil
}

// Close implements Client.
func (m *MockClient) Close() error {
	m.state = stateClosed
	return nil
}

func eventDate(ev model.Raw) (Date, bool) {
	v, ok := ev["start"]
	if !ok || v == nil {
		return Date{}, false
	}
	t, err := parser.ParseTime(v, time.UTC)
	if err != nil {
		return Date{}, false
	}
	return DateOf(t), true
}

func cloneRaw(r model.Raw) model.Raw {
	if r == nil {
		return nil
	}
	return cloneValue(r).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
