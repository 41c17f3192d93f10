package compass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	appLog "bellweaver/internal/log"
	"bellweaver/internal/model"
)

// DefaultTimeout bounds every network call when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Endpoint paths relative to a tenant base URL.
const (
	LoginPath    = "/login.aspx?sessionstate=disabled"
	HomePath     = "/home.aspx"
	UserPath     = "/Services/User.svc/GetUserDetailsBlobByUserId"
	CalendarPath = "/Services/Calendar.svc/GetCalendarEventsByUser?sessionstate=readonly&ExcludeNonRelevantPd=true"
)

// UserAgent is sent on every request.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"

const maxBody = 32 << 20

var (
	userIDPattern    = regexp.MustCompile(`organisationUserId["']?\s*[:=]\s*(\d+)`)
	configKeyPattern = regexp.MustCompile(`schoolConfigKey["']?\s*[:=]\s*["']([^"']+)["']`)
)

// HTTPClient is the real Compass client. It logs in through the ASP.NET
// login form and keeps the session in a cookie jar.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	timeout  time.Duration
	hc       *http.Client

	state     state
	userID    int
	hasUserID bool
	configKey string
}

// NewHTTPClient builds an unauthenticated client. Credentials are not
// checked until Login.
func NewHTTPClient(baseURL, username, password string, timeout time.Duration) (*HTTPClient, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, &Error{Kind: KindConfig, Op: "new_client", Err: err}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		timeout:  timeout,
		hc:       &http.Client{Jar: jar},
	}, nil
}

// UserID returns the user id extracted from the session, if any.
func (c *HTTPClient) UserID() (int, bool) { return c.userID, c.hasUserID }

// SchoolConfigKey returns the tenant key embedded in the login response.
func (c *HTTPClient) SchoolConfigKey() string { return c.configKey }

// Login submits the login form. A login that ends back on the login page is
// reported as (false, error wrapping ErrCredentialsRejected); every other
// failure returns (false, KindAuth error) and leaves the client unchanged.
func (c *HTTPClient) Login(ctx context.Context) (bool, error) {
	if c.state == stateClosed {
		return false, authErr(ErrClosed)
	}
	loginURL := c.baseURL + LoginPath
	appLog.Info("compass login start", "url", redactURL(c.baseURL))

	page, _, err := c.do(ctx, http.MethodGet, loginURL, nil, nil)
	if err != nil {
		return false, authErr(err)
	}
	form, err := extractForm(page)
	if err != nil {
		return false, authErr(err)
	}
	form.Set("username", c.username)
	form.Set("password", c.password)
	form.Set("rememberMeChk", "on")

	body, final, err := c.do(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Referer":      loginURL,
		"Origin":       c.baseURL,
	})
	if err != nil {
		return false, authErr(err)
	}
	if strings.Contains(strings.ToLower(final.Path), "login.aspx") {
		appLog.Warn("compass login rejected", "url", redactURL(c.baseURL))
		return false, authErr(ErrCredentialsRejected)
	}

	c.extractSessionMetadata(body)
	c.state = stateAuthenticated
	appLog.Info("compass login ok", "url", redactURL(c.baseURL), "user_id_found", c.hasUserID)
	return true, nil
}

// GetUserDetails implements Client.
func (c *HTTPClient) GetUserDetails(ctx context.Context, targetUserID *int) (model.Raw, error) {
	const op = "get_user_details"
	if err := c.state.check(op); err != nil {
		return nil, err
	}
	if err := c.ensureSessionMetadata(ctx, op); err != nil {
		return nil, err
	}
	id := c.userID
	if targetUserID != nil {
		id = *targetUserID
	}

	body, err := c.postJSON(ctx, UserPath, map[string]any{"targetUserId": id})
	if err != nil {
		return nil, fetchErr(op, err)
	}
	user, err := DecodeUserPayload(body)
	if err != nil {
		return nil, fetchErr(op, err)
	}
	return user, nil
}

// GetCalendarEvents implements Client. The range is passed to Compass as-is;
// the result is capped to limit client-side as well, and limit <= 0 yields
// no events.
func (c *HTTPClient) GetCalendarEvents(ctx context.Context, start, end Date, limit int) ([]model.Raw, error) {
	const op = "get_calendar_events"
	if err := c.state.check(op); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []model.Raw{}, nil
	}
	if err := c.ensureSessionMetadata(ctx, op); err != nil {
		return nil, err
	}

	body, err := c.postJSON(ctx, CalendarPath, EventsRequest(c.userID, start, end, limit))
	if err != nil {
		return nil, fetchErr(op, err)
	}
	events, err := DecodeEventsPayload(body)
	if err != nil {
		return nil, fetchErr(op, err)
	}
	if len(events) > limit {
		events = events[:limit]
	}
	appLog.Debug("compass events fetched", "start", start.String(), "end", end.String(), "count", len(events))
	return events, nil
}

// Close drops the session. Further calls fail with ErrClosed.
func (c *HTTPClient) Close() error {
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	c.hc.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) ensureSessionMetadata(ctx context.Context, op string) error {
	if c.hasUserID {
		return nil
	}
	body, _, err := c.do(ctx, http.MethodGet, c.baseURL+HomePath, nil, nil)
	if err != nil {
		return fetchErr(op, err)
	}
	c.extractSessionMetadata(body)
	if !c.hasUserID {
		return fetchErr(op, ErrNoUserID)
	}
	return nil
}

func (c *HTTPClient) extractSessionMetadata(page []byte) {
	if id, ok := ExtractUserID(page); ok {
		c.userID, c.hasUserID = id, true
	}
	if m := configKeyPattern.FindSubmatch(page); m != nil {
		c.configKey = string(m[1])
	}
}

// ExtractUserID finds the organisation user id embedded in a Compass page.
func ExtractUserID(page []byte) (int, bool) {
	m := userIDPattern.FindSubmatch(page)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, false
	}
	return id, true
}

// EventsRequest is the calendar request body for userID over [start, end].
func EventsRequest(userID int, start, end Date, limit int) map[string]any {
	return map[string]any{
		"userId":     userID,
		"homePage":   true,
		"activityId": nil,
		"locationId": nil,
		"staffIds":   nil,
		"startDate":  start.String(),
		"endDate":    end.String(),
		"page":       1,
		"start":      0,
		"limit":      limit,
	}
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data), map[string]string{
		"Content-Type":     "application/json",
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"X-Requested-With": "XMLHttpRequest",
	})
	return body, err
}

// do performs one request bounded by the client timeout and returns the
// body together with the final URL after redirects.
func (c *HTTPClient) do(ctx context.Context, method, target string, body io.Reader, hdr map[string]string) ([]byte, *url.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-AU,en;q=0.9")
	req.Header.Set("DNT", "1")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, nil, fmt.Errorf("%s %s: unexpected status %s", method, redactURL(target), resp.Status)
	}
	return data, resp.Request.URL, nil
}

// extractForm collects every named input of the first form on the page,
// including the ASP.NET __VIEWSTATE fields the postback needs.
func extractForm(page []byte) (url.Values, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse login page: %w", err)
	}
	form := url.Values{}
	doc.Find("form").First().Find("input").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		val, _ := s.Attr("value")
		form.Set(name, val)
	})
	if _, ok := form["__EVENTTARGET"]; !ok {
		form.Set("__EVENTTARGET", "button1")
	}
	if _, ok := form["__EVENTARGUMENT"]; !ok {
		form.Set("__EVENTARGUMENT", "")
	}
	return form, nil
}

// DecodeUserPayload unwraps a user-details response. A body that is not
// JSON is an error wrapping ErrNotJSON; JSON of any shape other than an
// object yields an empty record.
func DecodeUserPayload(body []byte) (model.Raw, error) {
	v, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	user, ok := v.(map[string]any)
	if !ok {
		appLog.Warn("compass user payload has unexpected shape", "type", jsonKind(v))
		return model.Raw{}, nil
	}
	return user, nil
}

// DecodeEventsPayload unwraps a calendar response, accepting both
// {"d": [...]} and {"d": {"data": [...]}}. Non-object list items are
// dropped; a non-list payload yields no events.
func DecodeEventsPayload(body []byte) ([]model.Raw, error) {
	v, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	if m, ok := v.(map[string]any); ok {
		if data, ok := m["data"]; ok {
			v = data
		}
	}
	items, ok := v.([]any)
	if !ok {
		appLog.Warn("compass events payload has unexpected shape", "type", jsonKind(v))
		return []model.Raw{}, nil
	}
	events := make([]model.Raw, 0, len(items))
	dropped := 0
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		events = append(events, m)
	}
	if dropped > 0 {
		appLog.Warn("compass events payload has non-object items", "dropped", dropped)
	}
	return events, nil
}

func decodeEnvelope(body []byte) (any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	if m, ok := v.(map[string]any); ok {
		if d, ok := m["d"]; ok {
			return d, nil
		}
	}
	return v, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}

// redactURL keeps only scheme and host so paths and query strings never
// reach the logs.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "compass://...(redacted)"
	}
	if parsed.Path == "" && parsed.RawQuery == "" {
		return parsed.Scheme + "://" + parsed.Host
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
