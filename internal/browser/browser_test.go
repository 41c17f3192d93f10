package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bellweaver/internal/compass"
)

func TestFetchBeforeLogin(t *testing.T) {
	f := New("https://school.example/", "u", "p", Options{Headless: true})
	ctx := context.Background()

	if _, err := f.GetUserDetails(ctx, nil); !compass.IsKind(err, compass.KindFetch) || !errors.Is(err, compass.ErrNotAuthenticated) {
		t.Fatalf("GetUserDetails err = %v", err)
	}
	start, _ := compass.ParseDate("2025-01-01")
	if _, err := f.GetCalendarEvents(ctx, start, start.AddDays(7), 10); !errors.Is(err, compass.ErrNotAuthenticated) {
		t.Fatalf("GetCalendarEvents err = %v", err)
	}
	if f.ctx != nil {
		t.Fatal("browser started without Login")
	}
}

func TestCloseBeforeLogin(t *testing.T) {
	f := New("https://school.example", "u", "p", Options{})
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	ok, err := f.Login(context.Background())
	if ok || !compass.IsKind(err, compass.KindAuth) || !errors.Is(err, compass.ErrClosed) {
		t.Fatalf("Login after Close = %v, %v", ok, err)
	}
	if _, err := f.GetUserDetails(context.Background(), nil); !errors.Is(err, compass.ErrClosed) {
		t.Fatalf("GetUserDetails after Close err = %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	f := New("https://school.example///", "u", "p", Options{})
	if f.baseURL != "https://school.example" {
		t.Fatalf("baseURL = %q", f.baseURL)
	}
	if f.opts.Timeout != DefaultTimeout {
		t.Fatalf("timeout = %v", f.opts.Timeout)
	}
}

func TestFetchScript(t *testing.T) {
	script, err := fetchScript("https://school.example/Services/User.svc/x", map[string]any{"targetUserId": 7, "q": `a"b`})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`fetch("https://school.example/Services/User.svc/x"`,
		`body: "{\"q\":\"a\\\"b\",\"targetUserId\":7}"`,
		`"X-Requested-With": "XMLHttpRequest"`,
		`return await r.text();`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %s:\n%s", want, script)
		}
	}
}

func TestIsLoginURL(t *testing.T) {
	cases := map[string]bool{
		"https://s.example/Login.aspx?sessionstate=disabled": true,
		"https://s.example/":                                 false,
		"https://s.example/home.aspx":                        false,
	}
	for u, want := range cases {
		if got := isLoginURL(u); got != want {
			t.Errorf("isLoginURL(%q) = %v, want %v", u, got, want)
		}
	}
}
