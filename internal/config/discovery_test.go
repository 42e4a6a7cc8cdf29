package config

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogger struct {
	warnings []string
	debugs   []string
}

func (f *fakeLogger) LogDebug(message string, _ ...any) { f.debugs = append(f.debugs, message) }
func (f *fakeLogger) LogWarn(message string, _ ...any)  { f.warnings = append(f.warnings, message) }

func TestDiscoverServerNameReturnsHostnameWhenWellKnownUnreachable(t *testing.T) {
	logger := &fakeLogger{}

	name, err := DiscoverServerName("https://127.0.0.1:1", logger)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", name)
	assert.Len(t, logger.warnings, 1)
	assert.Empty(t, logger.debugs)
}

func TestDiscoverServerNameRejectsUnparseableURL(t *testing.T) {
	_, err := DiscoverServerName("://bad-url", &fakeLogger{})
	require.Error(t, err)
}

func TestDiscoverServerNameRejectsURLWithoutHostname(t *testing.T) {
	_, err := DiscoverServerName("not-a-url", &fakeLogger{})
	require.Error(t, err)
}

func TestFetchWellKnownSucceedsWithValidRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/.well-known/matrix/server", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"m.server":"matrix.example.com:443"}`))
	}))
	defer srv.Close()

	require.NoError(t, fetchWellKnown(srv.URL+"/.well-known/matrix/server"))
}

func TestFetchWellKnownFailsOnMissingServerField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	require.Error(t, fetchWellKnown(srv.URL+"/.well-known/matrix/server"))
}

func TestFetchWellKnownFailsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	require.Error(t, fetchWellKnown(srv.URL+"/.well-known/matrix/server"))
}
