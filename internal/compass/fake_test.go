package compass

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bellweaver/internal/mockdata"
	"bellweaver/internal/model"
)

const (
	fakeUser     = "parent@example.com"
	fakePassword = "hunter2"
	fakeCookie   = "ASP.NET_SessionId"
)

const loginPage = `<!DOCTYPE html>
<html><body>
<form method="post" action="./login.aspx?sessionstate=disabled" id="form1">
<input type="hidden" name="__VIEWSTATE" id="__VIEWSTATE" value="dDwtMTA4NzE0OzsAAA==" />
<input type="hidden" name="__VIEWSTATEGENERATOR" value="C2EE9ABB" />
<input type="text" name="username" id="username" />
<input type="password" name="password" id="password" />
<input type="checkbox" name="rememberMeChk" />
<input type="submit" value="Sign in" id="button1" />
</form>
</body></html>`

// fakeCompass emulates the parts of a Compass tenant the client touches.
type fakeCompass struct {
	t *testing.T

	mu             sync.Mutex
	events         []model.Raw
	user           model.Raw
	omitUserID     bool // login landing page lacks organisationUserId
	homeHasUserID  bool
	eventsBody     []byte // raw override for the calendar response
	userBody       []byte // raw override for the user response
	ignoreLimit    bool
	delay          time.Duration
	loginStatus    int
	hits           map[string]int
	lastEventsReq  map[string]any
	lastUserTarget any
}

func newFakeCompass(t *testing.T) (*fakeCompass, *httptest.Server) {
	f := &fakeCompass{
		t:             t,
		events:        mockdata.FallbackEvents(),
		user:          mockdata.FallbackUser(),
		homeHasUserID: true,
		hits:          map[string]int{},
	}
	srv := httptest.NewServer(f.routes())
	t.Cleanup(srv.Close)
	return f, srv
}

// set mutates the fake under its lock; handlers read fields the same way.
func (f *fakeCompass) set(fn func(f *fakeCompass)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeCompass) snapshot() fakeCompass {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeCompass{
		events:        f.events,
		user:          f.user,
		omitUserID:    f.omitUserID,
		homeHasUserID: f.homeHasUserID,
		eventsBody:    f.eventsBody,
		userBody:      f.userBody,
		ignoreLimit:   f.ignoreLimit,
		delay:         f.delay,
		loginStatus:   f.loginStatus,
	}
}

func (f *fakeCompass) lastEvents() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastEventsReq
}

func (f *fakeCompass) lastTarget() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUserTarget
}

func (f *fakeCompass) hit(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeCompass) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login.aspx", f.login)
	mux.HandleFunc("/home.aspx", func(w http.ResponseWriter, r *http.Request) {
		f.count(r)
		if f.snapshot().homeHasUserID {
			fmt.Fprint(w, `<script>Compass.organisationUserId = 12345;</script>`)
			return
		}
		fmt.Fprint(w, `<html>home</html>`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.count(r)
		if !f.authed(r) {
			http.Redirect(w, r, "/login.aspx", http.StatusFound)
			return
		}
		if f.snapshot().omitUserID {
			fmt.Fprint(w, `<html>welcome</html>`)
			return
		}
		fmt.Fprint(w, `<script>var Compass = {"organisationUserId": 12345, schoolConfigKey: 'tenant-key-1'};</script>`)
	})
	mux.HandleFunc("/Services/User.svc/GetUserDetailsBlobByUserId", f.userDetails)
	mux.HandleFunc("/Services/Calendar.svc/GetCalendarEventsByUser", f.calendar)
	return mux
}

func (f *fakeCompass) count(r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.mu.Unlock()
}

func (f *fakeCompass) authed(r *http.Request) bool {
	c, err := r.Cookie(fakeCookie)
	return err == nil && c.Value == "sess-1"
}

func (f *fakeCompass) login(w http.ResponseWriter, r *http.Request) {
	f.count(r)
	if st := f.snapshot().loginStatus; st != 0 {
		w.WriteHeader(st)
		return
	}
	if r.Method == http.MethodGet {
		fmt.Fprint(w, loginPage)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("__VIEWSTATE") == "" || r.PostForm.Get("__EVENTTARGET") != "button1" {
		http.Error(w, "missing postback fields", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("username") != fakeUser || r.PostForm.Get("password") != fakePassword {
		fmt.Fprint(w, loginPage)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: fakeCookie, Value: "sess-1", Path: "/"})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (f *fakeCompass) wait(r *http.Request) {
	delay := f.snapshot().delay
	if delay == 0 {
		return
	}
	select {
	case <-time.After(delay):
	case <-r.Context().Done():
	}
}

func (f *fakeCompass) userDetails(w http.ResponseWriter, r *http.Request) {
	f.count(r)
	f.wait(r)
	if !f.authed(r) {
		http.Error(w, "unauthorised", http.StatusUnauthorized)
		return
	}
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.lastUserTarget = req["targetUserId"]
	f.mu.Unlock()
	cfg := f.snapshot()
	if cfg.userBody != nil {
		w.Write(cfg.userBody)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"d": cfg.user})
}

func (f *fakeCompass) calendar(w http.ResponseWriter, r *http.Request) {
	f.count(r)
	f.wait(r)
	if !f.authed(r) {
		http.Error(w, "unauthorised", http.StatusUnauthorized)
		return
	}
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.lastEventsReq = req
	f.mu.Unlock()
	cfg := f.snapshot()
	if cfg.eventsBody != nil {
		w.Write(cfg.eventsBody)
		return
	}

	start, err1 := ParseDate(fmt.Sprint(req["startDate"]))
	end, err2 := ParseDate(fmt.Sprint(req["endDate"]))
	if err1 != nil || err2 != nil {
		http.Error(w, "bad dates", http.StatusBadRequest)
		return
	}
	limit := int(req["limit"].(float64))
	out := []model.Raw{}
	for _, ev := range cfg.events {
		if !cfg.ignoreLimit && len(out) >= limit {
			break
		}
		if d, ok := eventDate(ev); ok && !d.Before(start) && !end.Before(d) {
			out = append(out, ev)
		}
	}
	json.NewEncoder(w).Encode(map[string]any{"d": out})
}
