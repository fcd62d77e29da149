package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebDriver(t *testing.T, url, session string) *WebDriver {
	t.Helper()
	w, err := NewWebDriver(Config{URL: url, SessionID: session, Log: log.NewLogger(log.DiscardHandler())})
	require.NoError(t, err)
	return w
}

func TestWebDriver_Teardown(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/wd/hub/session/abc123", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := newTestWebDriver(t, srv.URL+"/wd/hub/", "abc123")
	require.True(t, w.Enabled())
	require.NoError(t, w.Teardown(context.Background()))
	require.NoError(t, w.Teardown(context.Background()))
	assert.Equal(t, int32(1), calls.Load(), "teardown happens once")
}

func TestWebDriver_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "driver crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestWebDriver(t, srv.URL, "abc").Teardown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver crashed")
}

func TestWebDriver_SessionGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.NoError(t, newTestWebDriver(t, srv.URL, "abc").Teardown(context.Background()))
}

func TestWebDriver_Disabled(t *testing.T) {
	w := newTestWebDriver(t, "", "")
	assert.False(t, w.Enabled())
	assert.NoError(t, w.Teardown(context.Background()))
}

func TestNewWebDriver_InvalidURL(t *testing.T) {
	_, err := NewWebDriver(Config{URL: "ftp://example.com"})
	assert.Error(t, err)
}
