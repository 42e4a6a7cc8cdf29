// Package matrixtransport forwards federation requests to a configured
// Matrix homeserver over HTTPS and returns its response. It is the
// Dispatcher's fallback path, and the only path for any request whose
// destination peer could not be identified or for which no overlay
// route exists.
package matrixtransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mycelium-matrix/federation-bridge/internal/bridgeerr"
	"github.com/mycelium-matrix/federation-bridge/internal/model"
)

// Logger is the narrow logging seam every transport depends on,
// keeping this package decoupled from any concrete logging library.
type Logger interface {
	LogDebug(message string, keyValuePairs ...any)
	LogInfo(message string, keyValuePairs ...any)
	LogWarn(message string, keyValuePairs ...any)
	LogError(message string, keyValuePairs ...any)
}

// Error represents a parsed Matrix homeserver error response.
type Error struct {
	ErrCode    string `json:"errcode"`
	ErrMsg     string `json:"error"`
	StatusCode int    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("matrix API error: %d %s - %s", e.StatusCode, e.ErrCode, e.ErrMsg)
}

func parseMatrixError(statusCode int, body []byte) *Error {
	var mErr Error
	mErr.StatusCode = statusCode
	if err := json.Unmarshal(body, &mErr); err != nil {
		mErr.ErrCode = "UNKNOWN"
		mErr.ErrMsg = string(body)
	}
	return &mErr
}

// ValidatePathComponent rejects path traversal sequences in a URL path
// before it is concatenated onto the homeserver base URL.
func ValidatePathComponent(component string) error {
	if strings.Contains(component, "..") {
		return errors.Errorf("path traversal detected in component: %s", component)
	}
	return nil
}

var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// Transport forwards federation requests to a single configured
// homeserver base URL over HTTPS.
type Transport struct {
	homeserverBaseURL string
	httpClient        *http.Client
	logger            Logger
}

// New constructs a Transport. timeout governs every outbound HTTPS
// call and should match the bridge's configured federation timeout.
func New(homeserverBaseURL string, timeout time.Duration, logger Logger) *Transport {
	return &Transport{
		homeserverBaseURL: strings.TrimSuffix(homeserverBaseURL, "/"),
		httpClient:        &http.Client{Timeout: timeout},
		logger:            logger,
	}
}

// Forward issues an HTTPS call to <homeserver_base_url><path> using
// req's method, headers, and body, and returns the homeserver's
// response. The numeric status is returned even when non-2xx; status
// interpretation is the caller's responsibility.
func (t *Transport) Forward(ctx context.Context, req model.FederationRequest) (model.FederationResponse, error) {
	if !supportedMethods[strings.ToUpper(req.Method)] {
		return model.FederationResponse{}, bridgeerr.Newf(bridgeerr.InvalidRequest, "Unsupported method: %s", req.Method)
	}
	if err := ValidatePathComponent(req.Path); err != nil {
		return model.FederationResponse{}, bridgeerr.Newf(bridgeerr.InvalidRequest, "%v", err)
	}

	targetURL := t.homeserverBaseURL + req.Path

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), targetURL, bodyReader)
	if err != nil {
		return model.FederationResponse{}, bridgeerr.Newf(bridgeerr.MatrixAPI, "failed to build request: %v", err)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	t.logger.LogDebug("forwarding federation request to homeserver", "method", req.Method, "path", req.Path)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return model.FederationResponse{}, bridgeerr.Newf(bridgeerr.MatrixAPI, "%v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.FederationResponse{}, bridgeerr.Newf(bridgeerr.MatrixAPI, "Failed to parse response: %v", err)
	}

	if resp.StatusCode >= 400 {
		matrixErr := parseMatrixError(resp.StatusCode, respBody)
		t.logger.LogWarn("homeserver returned error status", "status", resp.StatusCode, "errcode", matrixErr.ErrCode)
	}

	var body json.RawMessage
	if len(respBody) == 0 {
		body = json.RawMessage(`{}`)
	} else if !json.Valid(respBody) {
		return model.FederationResponse{}, bridgeerr.Newf(bridgeerr.MatrixAPI, "Failed to parse response: invalid JSON body")
	} else {
		body = json.RawMessage(respBody)
	}

	return model.FederationResponse{
		StatusCode: uint16(resp.StatusCode),
		Body:       body,
	}, nil
}
