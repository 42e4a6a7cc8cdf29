package config

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// Logger is the narrow logging seam discovery needs, matching the
// interface every other package in this bridge declares at its own
// point of use instead of depending on a concrete logging library.
type Logger interface {
	LogDebug(message string, keyValuePairs ...any)
	LogWarn(message string, keyValuePairs ...any)
}

var discoveryHTTPClient = &http.Client{Timeout: 10 * time.Second}

type wellKnownResponse struct {
	Server string `json:"m.server"`
}

// DiscoverServerName resolves the federation server name this bridge
// should use in Matrix IDs when BRIDGE_MATRIX_SERVER_NAME is unset: the
// hostname of homeserverURL. A .well-known/matrix/server record under
// that hostname only ever redirects the homeserver's actual API
// endpoint (e.g. example.com's record can point federation traffic at
// matrix.example.com); the server name embedded in Matrix IDs stays the
// queried hostname either way, so the lookup's outcome only changes
// what gets logged, never the name returned.
func DiscoverServerName(homeserverURL string, logger Logger) (string, error) {
	parsed, err := url.Parse(homeserverURL)
	if err != nil {
		return "", errors.Wrap(err, "config: failed to parse matrix homeserver url")
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return "", errors.New("config: could not extract hostname from matrix homeserver url")
	}

	if err := probeWellKnown(hostname); err != nil {
		logger.LogWarn("matrix well-known discovery record not found, using hostname as server name",
			"hostname", hostname, "error", err.Error())
	} else {
		logger.LogDebug("matrix well-known discovery record confirmed", "hostname", hostname)
	}

	return hostname, nil
}

func probeWellKnown(hostname string) error {
	return fetchWellKnown("https://" + hostname + "/.well-known/matrix/server")
}

func fetchWellKnown(wellKnownURL string) error {
	resp, err := discoveryHTTPClient.Get(wellKnownURL)
	if err != nil {
		return errors.Wrap(err, "failed to fetch .well-known")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf(".well-known returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024))
	if err != nil {
		return errors.Wrap(err, "failed to read .well-known response")
	}

	var wellKnown wellKnownResponse
	if err := json.Unmarshal(body, &wellKnown); err != nil {
		return errors.Wrap(err, "failed to parse .well-known JSON")
	}
	if wellKnown.Server == "" {
		return errors.New(".well-known response missing m.server field")
	}
	return nil
}
