// Package dispatcher implements the Dispatcher: the outbound
// route-or-fall-back decision and the inbound envelope classification
// that together let the bridge move federation traffic over whichever
// transport is available, transparently to the caller.
package dispatcher

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/mycelium-matrix/federation-bridge/internal/bridgeerr"
	"github.com/mycelium-matrix/federation-bridge/internal/model"
	"github.com/mycelium-matrix/federation-bridge/internal/overlaytransport"
	"github.com/mycelium-matrix/federation-bridge/internal/pending"
	"github.com/mycelium-matrix/federation-bridge/internal/routetable"
	"github.com/mycelium-matrix/federation-bridge/internal/translator"
)

// MatrixTransport forwards a federation request to the configured
// homeserver. Satisfied by *matrixtransport.Transport.
type MatrixTransport interface {
	Forward(ctx context.Context, req model.FederationRequest) (model.FederationResponse, error)
}

// OverlayTransport submits envelopes to the mycelium overlay and probes
// its liveness. Satisfied by *overlaytransport.Client.
type OverlayTransport interface {
	Submit(ctx context.Context, destinationPeer, resolvedKey, topic string, payload json.RawMessage) error
	HealthCheck(ctx context.Context) bool
}

// Logger is the narrow logging seam the Dispatcher depends on.
type Logger interface {
	LogDebug(message string, keyValuePairs ...any)
	LogInfo(message string, keyValuePairs ...any)
	LogWarn(message string, keyValuePairs ...any)
	LogError(message string, keyValuePairs ...any)
}

// Dispatcher routes outbound federation requests over the overlay when
// a peer and a route can both be identified, falling back to direct
// HTTPS otherwise, and classifies inbound overlay envelopes into
// pending-call resolutions or relayed federation requests.
type Dispatcher struct {
	routes            *routetable.Table
	pendingCalls      *pending.Registry
	matrix            MatrixTransport
	overlay           OverlayTransport
	overlayEnabled    bool
	federationTimeout time.Duration
	logger            Logger
}

// New constructs a Dispatcher. overlay may be nil; overlayEnabled should
// be false whenever it is, but both are checked independently so a
// disabled-but-configured overlay never takes the overlay path.
func New(
	routes *routetable.Table,
	pendingCalls *pending.Registry,
	matrix MatrixTransport,
	overlay OverlayTransport,
	overlayEnabled bool,
	federationTimeout time.Duration,
	logger Logger,
) *Dispatcher {
	return &Dispatcher{
		routes:            routes,
		pendingCalls:      pendingCalls,
		matrix:            matrix,
		overlay:           overlay,
		overlayEnabled:    overlayEnabled,
		federationTimeout: federationTimeout,
		logger:            logger,
	}
}

var roomScopedPathMarkers = []string{"/send_join/", "/send_leave/", "/invite/"}

// extractDestination implements the bridge's destination extraction
// policy: an explicit header, then a query parameter, then — for the
// room-scoped federation endpoints whose path carries a room id
// immediately after the operation name (send_join, send_leave, invite;
// /send/ itself carries a transaction id there and so never matches) —
// the server-name suffix of that room id. Absent all three, the
// destination is unknown and the caller must fall back to the Matrix
// path.
func extractDestination(req model.FederationRequest) (string, bool) {
	if v := req.Headers["X-Matrix-Destination"]; v != "" {
		return v, true
	}

	path := req.Path
	if u, err := url.Parse(req.Path); err == nil {
		if v := u.Query().Get("destination"); v != "" {
			return v, true
		}
		path = u.Path
	}

	segment, ok := roomScopedSegment(path)
	if !ok {
		return "", false
	}
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return "", false
	}

	return translator.OriginServer(decoded)
}

// roomScopedSegment returns the path segment immediately following the
// first matching operation marker in path, e.g. the room id in
// ".../send_join/{roomId}/{eventId}".
func roomScopedSegment(path string) (string, bool) {
	for _, marker := range roomScopedPathMarkers {
		idx := strings.Index(path, marker)
		if idx < 0 {
			continue
		}
		rest := path[idx+len(marker):]
		if end := strings.IndexByte(rest, '/'); end >= 0 {
			rest = rest[:end]
		}
		if rest == "" {
			continue
		}
		return rest, true
	}
	return "", false
}

// Dispatch executes an outbound federation request. It takes the
// overlay path only when a destination peer was identified, the
// overlay is enabled and configured, and a route exists for that peer;
// otherwise it delegates straight to the Matrix transport.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.FederationRequest) (model.FederationResponse, error) {
	destinationPeer, found := extractDestination(req)
	if found && d.overlayEnabled && d.overlay != nil {
		if route, ok := d.routes.Get(destinationPeer); ok {
			return d.dispatchOverlay(ctx, req, destinationPeer, route)
		}
	}
	return d.matrix.Forward(ctx, req)
}

func (d *Dispatcher) dispatchOverlay(ctx context.Context, req model.FederationRequest, destinationPeer string, route model.FederationRoute) (model.FederationResponse, error) {
	messageID := pending.NewMessageID()
	handle := d.pendingCalls.Reserve(messageID)

	resolvedKey := routetable.ResolveDestinationKey(route.MyceliumKey)
	payload := model.EnvelopeRequestPayload{
		MessageID: messageID,
		Method:    req.Method,
		Path:      req.Path,
		Body:      req.Body,
		Headers:   req.Headers,
		Timestamp: time.Now().Unix(),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		d.pendingCalls.Forget(messageID)
		return model.FederationResponse{}, bridgeerr.Newf(bridgeerr.Serde, "failed to encode overlay request payload: %v", err)
	}

	topic := overlaytransport.TopicForMethod(req.Method)
	submitStart := time.Now()
	if err := d.overlay.Submit(ctx, destinationPeer, resolvedKey, topic, payloadBytes); err != nil {
		d.pendingCalls.Forget(messageID)
		d.logger.LogWarn("overlay submission failed, falling back to matrix transport", "destination", destinationPeer, "error", err.Error())
		return d.matrix.Forward(ctx, req)
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.federationTimeout)
	defer cancel()

	resp, ok := handle.Wait(waitCtx.Done())
	if !ok {
		d.pendingCalls.Forget(messageID)
		d.logger.LogInfo("overlay response timed out, acknowledging submission", "destination", destinationPeer, "message_id", messageID)
		body, _ := json.Marshal(map[string]string{"status": "sent_via_mycelium", "message_id": messageID})
		return model.FederationResponse{StatusCode: 200, Body: body}, nil
	}

	d.routes.RecordSuccess(destinationPeer, time.Since(submitStart).Milliseconds())
	return resp, nil
}

// HandleInboundEnvelope classifies an envelope delivered by the overlay
// transport: a resolution for one of our own pending calls, a relayed
// federation request for the local homeserver, or anything else, which
// is logged and dropped.
func (d *Dispatcher) HandleInboundEnvelope(ctx context.Context, envelope model.OverlayEnvelope) error {
	if d.tryResolvePending(envelope) {
		return nil
	}

	if envelope.Topic != overlaytransport.ResponseTopic && strings.HasPrefix(envelope.Topic, "matrix.federation.") {
		return d.relayInboundRequest(ctx, envelope)
	}

	d.logger.LogInfo("dropping envelope with unrecognized topic", "topic", envelope.Topic, "sender", envelope.Sender)
	return nil
}

func (d *Dispatcher) tryResolvePending(envelope model.OverlayEnvelope) bool {
	var payload struct {
		MessageID    string          `json:"message_id"`
		StatusCode   *uint16         `json:"status_code"`
		ResponseBody json.RawMessage `json:"response_body"`
	}
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil || payload.MessageID == "" {
		return false
	}

	statusCode := uint16(200)
	if payload.StatusCode != nil {
		statusCode = *payload.StatusCode
	}
	body := payload.ResponseBody
	if len(body) == 0 {
		body = json.RawMessage(`{"status":"received_via_mycelium"}`)
	}

	return d.pendingCalls.ResolveIfPending(payload.MessageID, model.FederationResponse{StatusCode: statusCode, Body: body})
}

func (d *Dispatcher) relayInboundRequest(ctx context.Context, envelope model.OverlayEnvelope) error {
	var payload model.EnvelopeRequestPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return bridgeerr.Newf(bridgeerr.Serde, "failed to parse inbound federation request envelope: %v", err)
	}
	if payload.Method == "" || payload.Path == "" {
		return bridgeerr.New(bridgeerr.Serde, "missing field: method or path")
	}

	resp, err := d.matrix.Forward(ctx, model.FederationRequest{
		Method:  payload.Method,
		Path:    payload.Path,
		Body:    payload.Body,
		Headers: payload.Headers,
	})
	if err != nil {
		return err
	}

	if payload.MessageID == "" {
		return nil
	}
	return d.replyToSender(ctx, envelope.Sender, payload.MessageID, resp)
}

func (d *Dispatcher) replyToSender(ctx context.Context, sender, messageID string, resp model.FederationResponse) error {
	if d.overlay == nil {
		d.logger.LogWarn("cannot reply to inbound sender: overlay transport not configured", "sender", sender)
		return nil
	}

	route, ok := d.routes.Get(sender)
	if !ok {
		d.logger.LogWarn("cannot reply to inbound sender: no route on file", "sender", sender)
		return nil
	}
	resolvedKey := routetable.ResolveDestinationKey(route.MyceliumKey)

	responsePayload := model.EnvelopeResponsePayload{
		MessageID:    messageID,
		ResponseBody: resp.Body,
		StatusCode:   resp.StatusCode,
		Timestamp:    time.Now().Unix(),
	}
	payloadBytes, err := json.Marshal(responsePayload)
	if err != nil {
		return bridgeerr.Newf(bridgeerr.Serde, "failed to encode response envelope: %v", err)
	}

	return d.overlay.Submit(ctx, sender, resolvedKey, overlaytransport.ResponseTopic, payloadBytes)
}

// Status returns a snapshot of the bridge's current routing and
// pending-call state, probing the overlay's health inline.
func (d *Dispatcher) Status(ctx context.Context) model.BridgeStatus {
	myceliumConnected := false
	if d.overlayEnabled && d.overlay != nil {
		myceliumConnected = d.overlay.HealthCheck(ctx)
	}

	return model.BridgeStatus{
		ConnectedServers:  d.routes.Len(),
		PendingMessages:   d.pendingCalls.Len(),
		LastSync:          time.Now().Unix(),
		MyceliumConnected: myceliumConnected,
	}
}
