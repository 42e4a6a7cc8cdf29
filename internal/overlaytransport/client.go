// Package overlaytransport submits envelopes to the mycelium overlay's
// HTTP API and probes its liveness. It is the Dispatcher's preferred
// path whenever a route exists for the destination peer.
package overlaytransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mycelium-matrix/federation-bridge/internal/bridgeerr"
)

// Logger is the narrow logging seam every transport depends on.
type Logger interface {
	LogDebug(message string, keyValuePairs ...any)
	LogInfo(message string, keyValuePairs ...any)
	LogWarn(message string, keyValuePairs ...any)
	LogError(message string, keyValuePairs ...any)
}

type destination struct {
	PublicKey string `json:"pk"`
}

// submitRequest is the wire shape POSTed to <overlay_base>/api/v1/messages.
type submitRequest struct {
	Destination destination `json:"dst"`
	Topic       []byte      `json:"topic"`
	Payload     []byte      `json:"payload"`
}

// Client submits envelopes to a single configured overlay HTTP API and
// probes its health, rate-limiting outbound submissions per destination
// peer.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     Logger
	limiter    *DestinationLimiter
}

// New constructs a Client. submitTimeout governs each submission call;
// the health probe always uses its own five-second deadline per
// spec.
func New(baseURL string, submitTimeout time.Duration, rateLimit RateLimitConfig, logger Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: submitTimeout},
		logger:     logger,
		limiter:    NewDestinationLimiter(rateLimit),
	}
}

// Submit posts an envelope payload to the overlay's message API,
// addressed to resolvedKey, under topic. destinationPeer identifies the
// peer for rate-limiting purposes; it need not equal resolvedKey.
func (c *Client) Submit(ctx context.Context, destinationPeer, resolvedKey, topic string, payload json.RawMessage) error {
	if err := c.limiter.Wait(ctx, destinationPeer); err != nil {
		return bridgeerr.Newf(bridgeerr.OverlayNetwork, "rate limit wait aborted: %v", err)
	}

	body, err := json.Marshal(submitRequest{
		Destination: destination{PublicKey: resolvedKey},
		Topic:       []byte(topic),
		Payload:     []byte(payload),
	})
	if err != nil {
		return bridgeerr.Newf(bridgeerr.Serde, "failed to encode overlay submission: %v", err)
	}

	url := c.baseURL + "/api/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return bridgeerr.Newf(bridgeerr.OverlayNetwork, "failed to build overlay request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.LogDebug("submitting envelope to overlay", "destination", destinationPeer, "topic", topic)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return bridgeerr.Newf(bridgeerr.OverlayNetwork, "%v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.LogWarn("overlay rejected submission", "status", resp.StatusCode, "destination", destinationPeer)
		return bridgeerr.Newf(bridgeerr.OverlayAPI, "overlay submission failed: %d %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// HealthCheck reports whether the overlay's /health endpoint answers
// with a 2xx within five seconds.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// TopicForMethod builds the overlay topic a forwarded federation request
// is submitted under, per spec: matrix.federation.<method_lowercased>.
func TopicForMethod(method string) string {
	return fmt.Sprintf("matrix.federation.%s", strings.ToLower(method))
}

// ResponseTopic is the topic a relayed federation response is submitted
// back under.
const ResponseTopic = "matrix.federation.response"
