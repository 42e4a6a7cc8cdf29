// Package httpapi exposes the bridge's HTTP control surface: a small
// set of operator/relay-facing endpoints over the Dispatcher and route
// table, plus a generic passthrough for the Matrix Server-Server
// federation surface. Routing follows the teacher's gorilla/mux
// subrouter pattern (server/api.go's ServeHTTP).
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/mycelium-matrix/federation-bridge/internal/bridgeerr"
	"github.com/mycelium-matrix/federation-bridge/internal/model"
	"github.com/mycelium-matrix/federation-bridge/internal/routetable"
	"github.com/mycelium-matrix/federation-bridge/internal/translator"
)

// Dispatcher is the subset of *dispatcher.Dispatcher the HTTP surface
// needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.FederationRequest) (model.FederationResponse, error)
	HandleInboundEnvelope(ctx context.Context, envelope model.OverlayEnvelope) error
	Status(ctx context.Context) model.BridgeStatus
}

// Logger is the narrow logging seam the HTTP surface depends on.
type Logger interface {
	LogDebug(message string, keyValuePairs ...any)
	LogInfo(message string, keyValuePairs ...any)
	LogWarn(message string, keyValuePairs ...any)
	LogError(message string, keyValuePairs ...any)
}

// Router is the bridge's HTTP control surface. It implements
// http.Handler.
type Router struct {
	mux        *mux.Router
	dispatcher Dispatcher
	routes     *routetable.Table
	logger     Logger
}

// New builds a Router wired to dispatcher for federation traffic and
// routes for route-table CRUD.
func New(dispatcher Dispatcher, routes *routetable.Table, logger Logger) *Router {
	rt := &Router{dispatcher: dispatcher, routes: routes, logger: logger}

	router := mux.NewRouter()
	router.HandleFunc("/health", rt.handleHealth).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api/v1/bridge").Subrouter()
	apiRouter.HandleFunc("/status", rt.handleStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/federation/send", rt.handleFederationSend).Methods(http.MethodPost)
	apiRouter.HandleFunc("/events/translate/matrix", rt.handleTranslateMatrix).Methods(http.MethodPost)
	apiRouter.HandleFunc("/events/translate/mycelium", rt.handleTranslateMycelium).Methods(http.MethodPost)
	apiRouter.HandleFunc("/routes", rt.handleListRoutes).Methods(http.MethodGet)
	apiRouter.HandleFunc("/routes", rt.handleAddRoute).Methods(http.MethodPost)
	apiRouter.HandleFunc("/routes/{server}", rt.handleRemoveRoute).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/mycelium/incoming", rt.handleIncomingEnvelope).Methods(http.MethodPost)

	// Matrix Server-Server passthrough: every federation endpoint is
	// classified and forwarded the same way by the Dispatcher, so one
	// generic handler covers the whole surface (send, state, state_ids,
	// backfill, query, user/devices, make_join/leave/knock,
	// send_join/leave/knock, invite) regardless of API version.
	matrixRouter := router.PathPrefix("/_matrix/federation").Subrouter()
	matrixRouter.PathPrefix("/").HandlerFunc(rt.handlePassthrough).Methods(http.MethodGet, http.MethodPut, http.MethodPost)

	rt.mux = router
	return rt
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (rt *Router) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := rt.dispatcher.Status(r.Context())
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) handleFederationSend(w http.ResponseWriter, r *http.Request) {
	var req model.FederationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := rt.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleTranslateMatrix(w http.ResponseWriter, r *http.Request) {
	var event model.MatrixEvent
	if !decodeJSON(w, r, &event) {
		return
	}

	envelope, err := translator.EventToEnvelope(event)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope)
}

func (rt *Router) handleTranslateMycelium(w http.ResponseWriter, r *http.Request) {
	var envelope model.OverlayEnvelope
	if !decodeJSON(w, r, &envelope) {
		return
	}

	event, err := translator.EnvelopeToEvent(envelope)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (rt *Router) handleListRoutes(w http.ResponseWriter, _ *http.Request) {
	routes := rt.routes.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"routes": routes,
		"count":  len(routes),
	})
}

func (rt *Router) handleAddRoute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ServerName  string `json:"server_name"`
		MyceliumKey string `json:"mycelium_key"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ServerName == "" || body.MyceliumKey == "" {
		rt.writeError(w, bridgeerr.New(bridgeerr.InvalidRequest, "server_name and mycelium_key are required"))
		return
	}

	route := rt.routes.Add(body.ServerName, body.MyceliumKey)
	writeJSON(w, http.StatusCreated, route)
}

func (rt *Router) handleRemoveRoute(w http.ResponseWriter, r *http.Request) {
	server := mux.Vars(r)["server"]
	if _, ok := rt.routes.Get(server); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	rt.routes.Remove(server)
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleIncomingEnvelope(w http.ResponseWriter, r *http.Request) {
	var envelope model.OverlayEnvelope
	if !decodeJSON(w, r, &envelope) {
		return
	}

	if err := rt.dispatcher.HandleInboundEnvelope(r.Context(), envelope); err != nil {
		rt.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handlePassthrough(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		rt.logger.LogWarn("failed to read passthrough request body", "path", r.URL.Path, "error", err.Error())
		rt.writeError(w, bridgeerr.New(bridgeerr.Serde, "failed to read request body"))
		return
	}

	headers := make(map[string]string, len(r.Header))
	for key := range r.Header {
		headers[key] = r.Header.Get(key)
	}

	resp, err := rt.dispatcher.Dispatch(r.Context(), model.FederationRequest{
		Method:  r.Method,
		Path:    r.URL.RequestURI(),
		Body:    body,
		Headers: headers,
	})
	if err != nil {
		rt.writeError(w, err)
		return
	}

	status := int(resp.StatusCode)
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a *bridgeerr.Error to its HTTP status, matching the
// teacher's errors.As-based status mapping idiom
// (server/matrix/client.go's isForbiddenJoinError). Any other error is
// treated as an unclassified internal failure.
func (rt *Router) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "Unknown"

	var bridgeErr *bridgeerr.Error
	if errors.As(err, &bridgeErr) {
		status = bridgeErr.HTTPStatus()
		kind = string(bridgeErr.Kind)
	}

	rt.logger.LogWarn("request failed", "kind", kind, "error", err.Error())
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind})
}
