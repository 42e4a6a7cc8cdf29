// Package translator implements pure, side-effect-free transforms
// between Matrix events and overlay envelopes: topic classification,
// the event-to-envelope and envelope-to-event conversions, and the
// minimal per-event-type content schema checks that guard them.
package translator

import (
	"encoding/json"
	"strings"

	"github.com/mycelium-matrix/federation-bridge/internal/bridgeerr"
	"github.com/mycelium-matrix/federation-bridge/internal/model"
)

const federationVersion = "v1"

// topicByEventType classifies an event_type into its overlay topic.
// Unmapped event types fall through to the "any other" row.
var topicByEventType = map[string]string{
	"m.room.message":      "matrix.federation.message",
	"m.room.member":       "matrix.federation.membership",
	"m.room.name":         "matrix.federation.state",
	"m.room.topic":        "matrix.federation.state",
	"m.room.avatar":       "matrix.federation.state",
	"m.room.power_levels": "matrix.federation.state",
	"m.room.join_rules":   "matrix.federation.state",
	"m.room.redaction":    "matrix.federation.redaction",
	"m.room.encrypted":    "matrix.federation.encrypted",
}

// TopicForEventType is a total function of event_type: it always
// returns a topic, defaulting to matrix.federation.event for any
// event_type not in the classification table.
func TopicForEventType(eventType string) string {
	if topic, ok := topicByEventType[eventType]; ok {
		return topic
	}
	return "matrix.federation.event"
}

// OriginServer returns the substring of a Matrix user or room ID after
// its first ':' — the homeserver domain embedded in the identifier.
// It returns ok=false if no ':' is present.
func OriginServer(id string) (string, bool) {
	idx := strings.Index(id, ":")
	if idx < 0 || idx == len(id)-1 {
		return "", false
	}
	return id[idx+1:], true
}

// RoomServers implements the "room -> servers" policy: the server
// embedded in the room id is at least one destination for that room.
// A richer implementation may prepend additional servers discovered
// from a persistent room membership cache; the wire contract only
// guarantees this one entry.
func RoomServers(roomID string) ([]string, error) {
	server, ok := OriginServer(roomID)
	if !ok {
		return nil, bridgeerr.Newf(bridgeerr.InvalidRequest, "Invalid room ID format: %s", roomID)
	}
	return []string{server}, nil
}

// validators lists a minimal per-type content schema
// check. Event types absent from this table have no content
// requirement.
var validators = map[string]func(content map[string]any) bool{
	"m.room.message": func(content map[string]any) bool {
		_, hasBody := content["body"]
		_, hasMsgtype := content["msgtype"]
		return hasBody || hasMsgtype
	},
	"m.room.member": func(content map[string]any) bool {
		_, ok := content["membership"].(string)
		return ok
	},
	"m.room.name": func(content map[string]any) bool {
		_, ok := content["name"].(string)
		return ok
	},
	"m.room.topic": func(content map[string]any) bool {
		_, ok := content["topic"].(string)
		return ok
	},
}

func validateContent(eventType string, content json.RawMessage) error {
	validate, ok := validators[eventType]
	if !ok {
		return nil
	}

	var decoded map[string]any
	if len(content) > 0 {
		if err := json.Unmarshal(content, &decoded); err != nil {
			decoded = nil
		}
	}
	if decoded == nil {
		decoded = map[string]any{}
	}

	if !validate(decoded) {
		return bridgeerr.Newf(bridgeerr.Serde, "Invalid Matrix event structure for type: %s", eventType)
	}
	return nil
}

// EventToEnvelope translates a Matrix event into the overlay envelope
// that carries it, selecting the destination peer from the room's
// embedded homeserver.
func EventToEnvelope(event model.MatrixEvent) (model.OverlayEnvelope, error) {
	if err := validateContent(event.EventType, event.Content); err != nil {
		return model.OverlayEnvelope{}, err
	}

	servers, err := RoomServers(event.RoomID)
	if err != nil {
		return model.OverlayEnvelope{}, err
	}
	if len(servers) == 0 {
		return model.OverlayEnvelope{}, bridgeerr.New(bridgeerr.Federation, "No destination servers found")
	}

	originServer, ok := OriginServer(event.Sender)
	if !ok {
		return model.OverlayEnvelope{}, bridgeerr.Newf(bridgeerr.InvalidRequest, "Invalid sender format: %s", event.Sender)
	}

	payload := model.EnvelopeEventPayload{
		EventID:           event.EventID,
		EventType:         event.EventType,
		RoomID:            event.RoomID,
		Sender:            event.Sender,
		OriginServerTS:    event.OriginServerTS,
		Content:           event.Content,
		StateKey:          event.StateKey,
		FederationVersion: federationVersion,
		OriginServer:      originServer,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return model.OverlayEnvelope{}, bridgeerr.Newf(bridgeerr.Serde, "failed to serialize event payload: %v", err)
	}

	roomID := event.RoomID
	return model.OverlayEnvelope{
		Topic:          TopicForEventType(event.EventType),
		RoomID:         &roomID,
		Sender:         event.Sender,
		OriginServerTS: event.OriginServerTS,
		Payload:        payloadBytes,
		Destination:    servers[0],
	}, nil
}

// EnvelopeToEvent extracts a Matrix event from an overlay envelope's
// payload. Each missing or wrongly-typed mandatory field yields a
// Serde failure naming the field; content is then validated against
// the per-type schema.
func EnvelopeToEvent(envelope model.OverlayEnvelope) (model.MatrixEvent, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(envelope.Payload, &raw); err != nil {
		return model.MatrixEvent{}, bridgeerr.Newf(bridgeerr.Serde, "failed to parse envelope payload: %v", err)
	}

	eventID, err := requiredString(raw, "event_id")
	if err != nil {
		return model.MatrixEvent{}, err
	}
	eventType, err := requiredString(raw, "event_type")
	if err != nil {
		return model.MatrixEvent{}, err
	}
	roomID, err := requiredString(raw, "room_id")
	if err != nil {
		return model.MatrixEvent{}, err
	}
	sender, err := requiredString(raw, "sender")
	if err != nil {
		return model.MatrixEvent{}, err
	}
	originServerTS, err := requiredUint64(raw, "origin_server_ts")
	if err != nil {
		return model.MatrixEvent{}, err
	}

	content, ok := raw["content"]
	if !ok {
		return model.MatrixEvent{}, bridgeerr.Newf(bridgeerr.Serde, "missing field: content")
	}

	var stateKey *string
	if sk, ok := raw["state_key"]; ok {
		var s string
		if err := json.Unmarshal(sk, &s); err != nil {
			return model.MatrixEvent{}, bridgeerr.Newf(bridgeerr.Serde, "invalid field: state_key")
		}
		stateKey = &s
	}

	if err := validateContent(eventType, content); err != nil {
		return model.MatrixEvent{}, err
	}

	return model.MatrixEvent{
		EventID:        eventID,
		EventType:      eventType,
		RoomID:         roomID,
		Sender:         sender,
		OriginServerTS: originServerTS,
		Content:        content,
		StateKey:       stateKey,
	}, nil
}

func requiredString(raw map[string]json.RawMessage, field string) (string, error) {
	v, ok := raw[field]
	if !ok {
		return "", bridgeerr.Newf(bridgeerr.Serde, "missing field: %s", field)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", bridgeerr.Newf(bridgeerr.Serde, "missing field: %s", field)
	}
	return s, nil
}

func requiredUint64(raw map[string]json.RawMessage, field string) (uint64, error) {
	v, ok := raw[field]
	if !ok {
		return 0, bridgeerr.Newf(bridgeerr.Serde, "missing field: %s", field)
	}
	var n uint64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, bridgeerr.Newf(bridgeerr.Serde, "missing field: %s", field)
	}
	return n, nil
}
