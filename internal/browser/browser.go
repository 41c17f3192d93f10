// Package browser drives a headless Chromium session against Compass for
// tenants that sit behind a bot challenge the plain HTTP client cannot pass.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"bellweaver/internal/compass"
	appLog "bellweaver/internal/log"
	"bellweaver/internal/model"
)

// DefaultTimeout bounds each browser operation. Page loads through a
// challenge are slower than plain requests.
const DefaultTimeout = 60 * time.Second

// Options configures the Chromium instance.
type Options struct {
	// Headless hides the browser window.
	Headless bool

	// ExecPath overrides the Chromium binary lookup.
	ExecPath string

	// UserDataDir keeps cookies between runs when set.
	UserDataDir string

	// Timeout bounds each operation. If zero, DefaultTimeout is used.
	Timeout time.Duration
}

// Fetcher implements compass.Client on top of a real browser tab. Requests
// are issued with fetch() from inside the logged-in page, so they carry the
// browser's cookies and fingerprint.
type Fetcher struct {
	baseURL  string
	username string
	password string
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	userID        int
	hasUserID     bool
	authenticated bool
	closed        bool
}

var _ compass.Client = (*Fetcher)(nil)

// New returns a Fetcher. Chromium is not started until Login.
func New(baseURL, username, password string, opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Fetcher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		opts:     opts,
	}
}

// start launches Chromium. The first chromedp.Run binds the browser to the
// context it is given, so it must be the long-lived one and not a per-call
// timeout context.
func (f *Fetcher) start() error {
	if f.ctx != nil {
		return nil
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.opts.Headless),
		chromedp.UserAgent(compass.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)
	if f.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(f.opts.ExecPath))
	}
	if f.opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(f.opts.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return fmt.Errorf("browser: start failed: %w", err)
	}
	f.ctx = ctx
	f.cancel = func() {
		cancel()
		allocCancel()
	}
	return nil
}

// run executes tasks bounded by the operation timeout and by ctx.
func (f *Fetcher) run(ctx context.Context, tasks ...chromedp.Action) error {
	rctx, cancel := context.WithTimeout(f.ctx, f.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(rctx, tasks...)
}

// Login fills the Compass login form in the browser. A post-login URL that
// still points at the login page is reported as rejected credentials.
func (f *Fetcher) Login(ctx context.Context) (bool, error) {
	if f.closed {
		return false, authError(compass.ErrClosed)
	}
	if err := f.start(); err != nil {
		return false, authError(err)
	}
	appLog.Info("browser login start")

	var final, page string
	err := f.run(ctx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "en-AU,en;q=0.9"}),
		chromedp.Navigate(f.baseURL+compass.LoginPath),
		chromedp.WaitVisible("#username", chromedp.ByQuery),
		chromedp.SendKeys("#username", f.username, chromedp.ByQuery),
		chromedp.SendKeys("#password", f.password, chromedp.ByQuery),
		chromedp.Click("#button1", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&final),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	)
	if err != nil {
		return false, authError(err)
	}
	if isLoginURL(final) {
		appLog.Warn("browser login rejected")
		return false, authError(compass.ErrCredentialsRejected)
	}

	f.userID, f.hasUserID = compass.ExtractUserID([]byte(page))
	f.authenticated = true
	appLog.Info("browser login ok", "user_id_found", f.hasUserID)
	return true, nil
}

// GetUserDetails implements compass.Client.
func (f *Fetcher) GetUserDetails(ctx context.Context, targetUserID *int) (model.Raw, error) {
	const op = "get_user_details"
	if err := f.check(ctx, op); err != nil {
		return nil, err
	}
	id := f.userID
	if targetUserID != nil {
		id = *targetUserID
	}
	body, err := f.post(ctx, compass.UserPath, map[string]any{"targetUserId": id})
	if err != nil {
		return nil, fetchError(op, err)
	}
	user, err := compass.DecodeUserPayload(body)
	if err != nil {
		return nil, fetchError(op, err)
	}
	return user, nil
}

// GetCalendarEvents implements compass.Client.
func (f *Fetcher) GetCalendarEvents(ctx context.Context, start, end compass.Date, limit int) ([]model.Raw, error) {
	const op = "get_calendar_events"
	if err := f.check(ctx, op); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []model.Raw{}, nil
	}
	body, err := f.post(ctx, compass.CalendarPath, compass.EventsRequest(f.userID, start, end, limit))
	if err != nil {
		return nil, fetchError(op, err)
	}
	events, err := compass.DecodeEventsPayload(body)
	if err != nil {
		return nil, fetchError(op, err)
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Close shuts Chromium down. It is safe to call more than once.
func (f *Fetcher) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.authenticated = false
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

// check enforces the session lifecycle and loads the user id from the home
// page when the login page did not carry it.
func (f *Fetcher) check(ctx context.Context, op string) error {
	switch {
	case f.closed:
		return fetchError(op, compass.ErrClosed)
	case !f.authenticated:
		return fetchError(op, compass.ErrNotAuthenticated)
	case f.hasUserID:
		return nil
	}
	var page string
	err := f.run(ctx,
		chromedp.Navigate(f.baseURL+compass.HomePath),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	)
	if err != nil {
		return fetchError(op, err)
	}
	f.userID, f.hasUserID = compass.ExtractUserID([]byte(page))
	if !f.hasUserID {
		return fetchError(op, compass.ErrNoUserID)
	}
	return nil
}

func (f *Fetcher) post(ctx context.Context, path string, payload any) ([]byte, error) {
	script, err := fetchScript(f.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	var text string
	err = f.run(ctx, chromedp.Evaluate(script, &text, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// fetchScript returns a JS expression that POSTs payload as JSON to url
// and resolves to the response text. Non-2xx responses reject.
func fetchScript(url string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	urlLit, err := json.Marshal(url)
	if err != nil {
		return "", err
	}
	bodyLit, err := json.Marshal(string(body))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(async () => {
  const r = await fetch(%s, {
    method: "POST",
    credentials: "same-origin",
    headers: {"Content-Type": "application/json", "X-Requested-With": "XMLHttpRequest"},
    body: %s,
  });
  if (!r.ok) { throw new Error("status " + r.status); }
  return await r.text();
})()`, urlLit, bodyLit), nil
}

func isLoginURL(u string) bool {
	return strings.Contains(strings.ToLower(u), "login.aspx")
}

func authError(err error) error {
	return &compass.Error{Kind: compass.KindAuth, Op: "login", Err: err}
}

func fetchError(op string, err error) error {
	return &compass.Error{Kind: compass.KindFetch, Op: op, Err: err}
}
