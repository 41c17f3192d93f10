package compass

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the client implementation.
type Mode string

const (
	ModeReal Mode = "real"
	ModeMock Mode = "mock"
)

// ParseMode interprets s case-insensitively. An empty string means real.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeReal):
		return ModeReal, nil
	case string(ModeMock):
		return ModeMock, nil
	}
	return "", &Error{Kind: KindConfig, Op: "new_client", Err: fmt.Errorf("%w %q: must be real or mock", ErrInvalidMode, s)}
}

// Options configures NewClient.
type Options struct {
	// Mode is the explicit mode for this client and wins when set.
	Mode string
	// DefaultMode is the process-wide setting, usually COMPASS_MODE read
	// once at startup. It applies when Mode is empty.
	DefaultMode string
	// Timeout bounds each network call of the real client.
	Timeout time.Duration
	// MockDataDir is the corpus directory of the mock client.
	MockDataDir string
}

// ResolveMode applies the precedence Mode, then DefaultMode, then real.
func (o Options) ResolveMode() (Mode, error) {
	raw := o.Mode
	if strings.TrimSpace(raw) == "" {
		raw = o.DefaultMode
	}
	return ParseMode(raw)
}

// NewClient returns an unauthenticated client for the resolved mode. An
// invalid mode fails with a KindConfig error before anything is built.
// Credentials are not validated here; bad ones surface at Login.
func NewClient(baseURL, username, password string, opts Options) (Client, error) {
	mode, err := opts.ResolveMode()
	if err != nil {
		return nil, err
	}
	if mode == ModeMock {
		return NewMockClient(opts.MockDataDir), nil
	}
	c, err := NewHTTPClient(baseURL, username, password, opts.Timeout)
	if err != nil {
		return nil, err
	}
	return c, nil
}
