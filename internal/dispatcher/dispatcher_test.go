package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelium-matrix/federation-bridge/internal/dispatcher/mocks"
	"github.com/mycelium-matrix/federation-bridge/internal/model"
	"github.com/mycelium-matrix/federation-bridge/internal/pending"
	"github.com/mycelium-matrix/federation-bridge/internal/routetable"
)

type testLogger struct{ t *testing.T }

func (l testLogger) LogDebug(message string, kv ...any) { l.t.Logf("DEBUG: "+message, kv...) }
func (l testLogger) LogInfo(message string, kv ...any)  { l.t.Logf("INFO: "+message, kv...) }
func (l testLogger) LogWarn(message string, kv ...any)  { l.t.Logf("WARN: "+message, kv...) }
func (l testLogger) LogError(message string, kv ...any) { l.t.Logf("ERROR: "+message, kv...) }

func newTestDispatcher(t *testing.T, matrix MatrixTransport, overlay OverlayTransport, overlayEnabled bool, timeout time.Duration) (*Dispatcher, *routetable.Table, *pending.Registry) {
	routes := routetable.New()
	pendingCalls := pending.New()
	d := New(routes, pendingCalls, matrix, overlay, overlayEnabled, timeout, testLogger{t})
	return d, routes, pendingCalls
}

// Scenario 1: Matrix fallback with no route.
func TestDispatchMatrixFallbackWithNoRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	matrixMock := mocks.NewMockMatrixTransport(ctrl)
	wantResp := model.FederationResponse{StatusCode: 200, Body: json.RawMessage(`{"server":{}}`)}
	matrixMock.EXPECT().Forward(gomock.Any(), gomock.Any()).Return(wantResp, nil)

	d, _, _ := newTestDispatcher(t, matrixMock, nil, true, time.Second)

	resp, err := d.Dispatch(context.Background(), model.FederationRequest{Method: "GET", Path: "/_matrix/federation/v1/version"})
	require.NoError(t, err)
	assert.Equal(t, wantResp, resp)
}

// Scenario 2: overlay success.
func TestDispatchOverlaySuccessResolvesPendingSlot(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	matrixMock := mocks.NewMockMatrixTransport(ctrl)
	overlayMock := mocks.NewMockOverlayTransport(ctrl)

	d, routes, pendingCalls := newTestDispatcher(t, matrixMock, overlayMock, true, 5*time.Second)
	routes.Add("peer.example.com", "aa000000000000000000000000000000000000000000000000000000000064")

	var capturedPayload model.EnvelopeRequestPayload
	overlayMock.EXPECT().Submit(gomock.Any(), "peer.example.com", gomock.Any(), "matrix.federation.put", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, _ string, payload json.RawMessage) error {
			require.NoError(t, json.Unmarshal(payload, &capturedPayload))
			// Simulate the overlay delivering and the peer replying before
			// Dispatch's wait observes it.
			go pendingCalls.Resolve(capturedPayload.MessageID, model.FederationResponse{
				StatusCode: 200,
				Body:       json.RawMessage(`{"v":42}`),
			})
			return nil
		})

	resp, err := d.Dispatch(context.Background(), model.FederationRequest{
		Method:  "PUT",
		Path:    "/_matrix/federation/v2/send_join/!room:peer.example.com/e1",
		Headers: map[string]string{},
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(200), resp.StatusCode)
	assert.JSONEq(t, `{"v":42}`, string(resp.Body))
	assert.Equal(t, 0, pendingCalls.Len())
}

// Scenario 3: overlay timeout yields a synthetic 200 and an empty registry.
func TestDispatchOverlayTimeoutYieldsSyntheticAck(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	matrixMock := mocks.NewMockMatrixTransport(ctrl)
	overlayMock := mocks.NewMockOverlayTransport(ctrl)
	overlayMock.EXPECT().Submit(gomock.Any(), "peer.example.com", gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	d, routes, pendingCalls := newTestDispatcher(t, matrixMock, overlayMock, true, 50*time.Millisecond)
	routes.Add("peer.example.com", "some-opaque-handle")

	resp, err := d.Dispatch(context.Background(), model.FederationRequest{
		Method: "PUT", Path: "/_matrix/federation/v1/send/txn1", Headers: map[string]string{"X-Matrix-Destination": "peer.example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(200), resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	assert.Equal(t, "sent_via_mycelium", body["status"])
	assert.NotEmpty(t, body["message_id"])

	assert.Equal(t, 0, pendingCalls.Len())
}

// Scenario 4: submission failure falls back to Matrix.
func TestDispatchSubmissionFailureFallsBackToMatrix(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	matrixMock := mocks.NewMockMatrixTransport(ctrl)
	overlayMock := mocks.NewMockOverlayTransport(ctrl)

	wantResp := model.FederationResponse{StatusCode: 200, Body: json.RawMessage(`{"ok":true}`)}
	overlayMock.EXPECT().Submit(gomock.Any(), "peer.example.com", gomock.Any(), gomock.Any(), gomock.Any()).
		Return(assertableError("overlay unavailable"))
	matrixMock.EXPECT().Forward(gomock.Any(), gomock.Any()).Return(wantResp, nil)

	d, routes, pendingCalls := newTestDispatcher(t, matrixMock, overlayMock, true, time.Second)
	routes.Add("peer.example.com", "some-opaque-handle")

	resp, err := d.Dispatch(context.Background(), model.FederationRequest{
		Method: "PUT", Path: "/_matrix/federation/v2/invite/!room:peer.example.com/e1",
	})
	require.NoError(t, err)
	assert.Equal(t, wantResp, resp)
	assert.Equal(t, 0, pendingCalls.Len())
}

// Scenario 5: inbound request relay, with a response envelope submitted back.
func TestHandleInboundEnvelopeRelaysRequestAndReplies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	matrixMock := mocks.NewMockMatrixTransport(ctrl)
	overlayMock := mocks.NewMockOverlayTransport(ctrl)

	homeserverResp := model.FederationResponse{StatusCode: 200, Body: json.RawMessage(`{"event_id":"e1"}`)}
	matrixMock.EXPECT().Forward(gomock.Any(), model.FederationRequest{
		Method: "PUT", Path: "/_matrix/federation/v1/send/T", Headers: map[string]string{},
	}).Return(homeserverResp, nil)

	var gotResponsePayload model.EnvelopeResponsePayload
	overlayMock.EXPECT().Submit(gomock.Any(), "peer.example.com", gomock.Any(), "matrix.federation.response", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, _ string, payload json.RawMessage) error {
			require.NoError(t, json.Unmarshal(payload, &gotResponsePayload))
			return nil
		})

	d, routes, _ := newTestDispatcher(t, matrixMock, overlayMock, true, time.Second)
	routes.Add("peer.example.com", "some-opaque-handle")

	requestPayload, err := json.Marshal(model.EnvelopeRequestPayload{
		MessageID: "X",
		Method:    "PUT",
		Path:      "/_matrix/federation/v1/send/T",
		Headers:   map[string]string{},
	})
	require.NoError(t, err)

	err = d.HandleInboundEnvelope(context.Background(), model.OverlayEnvelope{
		Topic:   "matrix.federation.put",
		Sender:  "peer.example.com",
		Payload: requestPayload,
	})
	require.NoError(t, err)

	assert.Equal(t, "X", gotResponsePayload.MessageID)
	assert.Equal(t, uint16(200), gotResponsePayload.StatusCode)
	assert.JSONEq(t, `{"event_id":"e1"}`, string(gotResponsePayload.ResponseBody))
}

func TestHandleInboundEnvelopeResolvesPendingCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	matrixMock := mocks.NewMockMatrixTransport(ctrl)
	overlayMock := mocks.NewMockOverlayTransport(ctrl)

	d, _, pendingCalls := newTestDispatcher(t, matrixMock, overlayMock, true, time.Second)
	handle := pendingCalls.Reserve("X")

	responsePayload, err := json.Marshal(model.EnvelopeResponsePayload{
		MessageID:    "X",
		ResponseBody: json.RawMessage(`{"v":1}`),
		StatusCode:   200,
	})
	require.NoError(t, err)

	err = d.HandleInboundEnvelope(context.Background(), model.OverlayEnvelope{
		Topic:   "matrix.federation.response",
		Sender:  "peer.example.com",
		Payload: responsePayload,
	})
	require.NoError(t, err)

	done := make(chan struct{})
	resp, ok := handle.Wait(done)
	require.True(t, ok)
	assert.Equal(t, uint16(200), resp.StatusCode)
	assert.JSONEq(t, `{"v":1}`, string(resp.Body))
}

func TestHandleInboundEnvelopeDropsUnrecognizedTopic(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	matrixMock := mocks.NewMockMatrixTransport(ctrl)
	overlayMock := mocks.NewMockOverlayTransport(ctrl)

	d, _, _ := newTestDispatcher(t, matrixMock, overlayMock, true, time.Second)

	err := d.HandleInboundEnvelope(context.Background(), model.OverlayEnvelope{
		Topic:   "something.unrelated",
		Sender:  "peer.example.com",
		Payload: json.RawMessage(`{}`),
	})
	assert.NoError(t, err)
}

func TestExtractDestinationPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		req      model.FederationRequest
		wantPeer string
		wantOK   bool
	}{
		{
			name:     "header wins",
			req:      model.FederationRequest{Path: "/_matrix/federation/v1/send/txn1?destination=query.example", Headers: map[string]string{"X-Matrix-Destination": "header.example"}},
			wantPeer: "header.example",
			wantOK:   true,
		},
		{
			name:     "query param when no header",
			req:      model.FederationRequest{Path: "/_matrix/federation/v1/send/txn1?destination=query.example"},
			wantPeer: "query.example",
			wantOK:   true,
		},
		{
			name:     "path segment for send_join",
			req:      model.FederationRequest{Path: "/_matrix/federation/v2/send_join/!room:path.example/e1"},
			wantPeer: "path.example",
			wantOK:   true,
		},
		{
			name:   "version endpoint has no destination",
			req:    model.FederationRequest{Path: "/_matrix/federation/v1/version"},
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			peer, ok := extractDestination(tc.req)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantPeer, peer)
			}
		})
	}
}

func TestStatusReflectsRouteAndPendingCounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	matrixMock := mocks.NewMockMatrixTransport(ctrl)
	overlayMock := mocks.NewMockOverlayTransport(ctrl)
	overlayMock.EXPECT().HealthCheck(gomock.Any()).Return(true)

	d, routes, pendingCalls := newTestDispatcher(t, matrixMock, overlayMock, true, time.Second)
	routes.Add("peer.example.com", "k")
	pendingCalls.Reserve("in-flight")

	status := d.Status(context.Background())
	assert.Equal(t, 1, status.ConnectedServers)
	assert.Equal(t, 1, status.PendingMessages)
	assert.True(t, status.MyceliumConnected)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertableError(msg string) error { return simpleError(msg) }
