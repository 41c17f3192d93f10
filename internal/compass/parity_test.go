package compass

import (
	"context"
	"errors"
	"sort"
	"testing"

	"bellweaver/internal/mockdata"
	"bellweaver/internal/model"
)

// shape describes a raw record by its keys and the JSON kind of each value.
func shape(r model.Raw) map[string]string {
	out := make(map[string]string, len(r))
	for k, v := range r {
		out[k] = jsonKind(v)
	}
	return out
}

func sameShape(t *testing.T, what string, a, b model.Raw) {
	t.Helper()
	sa, sb := shape(a), shape(b)
	if len(sa) != len(sb) {
		t.Fatalf("%s: key counts differ: %d vs %d", what, len(sa), len(sb))
	}
	keys := make([]string, 0, len(sa))
	for k := range sa {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if sa[k] != sb[k] {
			t.Errorf("%s: key %q is %s vs %s", what, k, sa[k], sb[k])
		}
	}
}

func TestClientParity(t *testing.T) {
	_, srv := newFakeCompass(t)
	httpc, err := NewClient(srv.URL, fakeUser, fakePassword, Options{Mode: "real"})
	if err != nil {
		t.Fatal(err)
	}
	mockc, err := NewClient("", "", "", Options{Mode: "mock", MockDataDir: "does-not-exist"})
	if err != nil {
		t.Fatal(err)
	}
	clients := map[string]Client{"real": httpc, "mock": mockc}
	ctx := context.Background()
	start, end := mustDate(t, "2025-12-01"), mustDate(t, "2025-12-31")

	for name, c := range clients {
		if _, err := c.GetCalendarEvents(ctx, start, end, 10); !IsKind(err, KindFetch) || !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("%s: fetch before login: %v", name, err)
		}
		if _, err := c.GetUserDetails(ctx, nil); !IsKind(err, KindFetch) {
			t.Fatalf("%s: user before login: %v", name, err)
		}
		if ok, err := c.Login(ctx); !ok || err != nil {
			t.Fatalf("%s: login: %v, %v", name, ok, err)
		}
	}

	ru, err := httpc.GetUserDetails(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	mu, err := mockc.GetUserDetails(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	sameShape(t, "user", ru, mu)

	re, err := httpc.GetCalendarEvents(ctx, start, end, 10)
	if err != nil {
		t.Fatal(err)
	}
	me, err := mockc.GetCalendarEvents(ctx, start, end, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(re) != len(me) || len(re) != len(mockdata.FallbackEvents()) {
		t.Fatalf("event counts differ: real=%d mock=%d", len(re), len(me))
	}
	for i := range re {
		sameShape(t, "event", re[i], me[i])
	}

	for _, lim := range []int{1, 2} {
		r, _ := httpc.GetCalendarEvents(ctx, start, end, lim)
		m, _ := mockc.GetCalendarEvents(ctx, start, end, lim)
		if len(r) != lim || len(m) != lim {
			t.Fatalf("limit %d: real=%d mock=%d", lim, len(r), len(m))
		}
	}

	for name, c := range clients {
		if err := c.Close(); err != nil {
			t.Fatalf("%s: close: %v", name, err)
		}
		if _, err := c.GetCalendarEvents(ctx, start, end, 10); !errors.Is(err, ErrClosed) {
			t.Fatalf("%s: fetch after close: %v", name, err)
		}
	}
}
