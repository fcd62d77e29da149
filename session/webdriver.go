// Package session ends the browser-driving session once a run is over.
package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const DefaultTimeout = 10 * time.Second

// Config contains WebDriver session configuration. With URL or SessionID
// empty, teardown only logs.
type Config struct {
	URL       string
	SessionID string
	Timeout   time.Duration
	Log       log.Logger
}

// WebDriver deletes the configured WebDriver session on teardown. Teardown
// takes effect once; later calls return the first result.
type WebDriver struct {
	cfg    Config
	log    log.Logger
	client *http.Client

	once sync.Once
	err  error
}

// NewWebDriver validates the WebDriver URL and creates the teardown
func NewWebDriver(cfg Config) (*WebDriver, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.URL != "" {
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid webdriver url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("invalid webdriver url %q: scheme must be http or https", cfg.URL)
		}
	}
	return &WebDriver{
		cfg:    cfg,
		log:    cfg.Log,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Enabled reports whether a session is configured
func (w *WebDriver) Enabled() bool {
	return w.cfg.URL != "" && w.cfg.SessionID != ""
}

// Teardown sends DELETE {url}/session/{id}
func (w *WebDriver) Teardown(ctx context.Context) error {
	w.once.Do(func() {
		w.err = w.deleteSession(ctx)
	})
	return w.err
}

func (w *WebDriver) deleteSession(ctx context.Context) error {
	if !w.Enabled() {
		w.log.Info("No webdriver session configured, nothing to tear down")
		return nil
	}

	endpoint := strings.TrimRight(w.cfg.URL, "/") + "/session/" + url.PathEscape(w.cfg.SessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build session delete request: %w", err)
	}

	w.log.Info("Deleting webdriver session", "session", w.cfg.SessionID)
	res, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete webdriver session: %w", err)
	}
	defer res.Body.Close()

	// a session that is already gone counts as torn down
	if res.StatusCode == http.StatusNotFound {
		w.log.Warn("Webdriver session not found", "session", w.cfg.SessionID)
		return nil
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("failed to delete webdriver session: status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
