// Package model holds the canonical in-memory shapes shared by every
// bridge component: Matrix events, overlay envelopes, federation
// requests/responses, routing rows, and the bridge status snapshot.
package model

import "encoding/json"

// MatrixEvent is the unit the homeserver emits and consumes.
type MatrixEvent struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	RoomID         string          `json:"room_id"`
	Sender         string          `json:"sender"`
	OriginServerTS uint64          `json:"origin_server_ts"`
	Content        json.RawMessage `json:"content"`
	StateKey       *string         `json:"state_key,omitempty"`
}

// OverlayEnvelope is what crosses the overlay transport.
type OverlayEnvelope struct {
	Topic          string          `json:"topic"`
	RoomID         *string         `json:"room_id,omitempty"`
	Sender         string          `json:"sender"`
	OriginServerTS uint64          `json:"origin_server_ts"`
	Payload        json.RawMessage `json:"payload"`
	Destination    string          `json:"destination"`
}

// FederationRequest is the caller-facing shape of an outbound or
// relayed federation call.
type FederationRequest struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// FederationResponse is the caller-facing shape of a federation result.
type FederationResponse struct {
	StatusCode uint16          `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

// FederationRoute is a row in the route table: a binding from a peer
// server name to the overlay identifier by which it is reachable.
type FederationRoute struct {
	DestinationServer string `json:"destination_server"`
	MyceliumKey       string `json:"mycelium_key"`
	LastSuccessful    int64  `json:"last_successful"`
	LatencyMS         int64  `json:"latency_ms"`
}

// BridgeStatus is an observable snapshot of the bridge's runtime state.
type BridgeStatus struct {
	ConnectedServers  int   `json:"connected_servers"`
	PendingMessages   int   `json:"pending_messages"`
	LastSync          int64 `json:"last_sync"`
	MyceliumConnected bool  `json:"mycelium_connected"`
}

// EnvelopeRequestPayload is the JSON shape carried in the payload of an
// envelope whose topic begins with matrix.federation. and which encodes
// an outbound or relayed federation request.
type EnvelopeRequestPayload struct {
	MessageID string            `json:"message_id"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Body      json.RawMessage   `json:"body,omitempty"`
	Headers   map[string]string `json:"headers"`
	Timestamp int64             `json:"timestamp"`
}

// EnvelopeResponsePayload is the JSON shape carried in the payload of an
// envelope with topic matrix.federation.response.
type EnvelopeResponsePayload struct {
	MessageID    string          `json:"message_id"`
	ResponseBody json.RawMessage `json:"response_body"`
	StatusCode   uint16          `json:"status_code"`
	Timestamp    int64           `json:"timestamp"`
}

// EnvelopeEventPayload is the JSON shape carried in the payload of an
// envelope translated from a Matrix event (topic matrix.federation.*
// other than request/response topics).
type EnvelopeEventPayload struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	RoomID           string          `json:"room_id"`
	Sender           string          `json:"sender"`
	OriginServerTS   uint64          `json:"origin_server_ts"`
	Content          json.RawMessage `json:"content"`
	StateKey         *string         `json:"state_key,omitempty"`
	FederationVersion string         `json:"federation_version"`
	OriginServer     string          `json:"origin_server"`
}
