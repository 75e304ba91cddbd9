// Package frontend implements the supplementary JSON-RPC/WebSocket/REST
// front-end: a standalone process (cmd/paramfrontend) that talks to a
// parameter engine over the
// same generic accessor surface the FFI facade uses, exposing it to
// browser and script clients instead of a linked C caller. The route
// table and status-code contract are grounded on
// original_source/jsonrpc_server's rest_server.rs/ws_server.rs.
package frontend

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/paramstore/paramstore/internal/api/middleware"
	"github.com/paramstore/paramstore/internal/cache"
	"github.com/paramstore/paramstore/internal/engine"
	"github.com/paramstore/paramstore/internal/paramtable"
	"github.com/paramstore/paramstore/internal/pvalue"
	"github.com/paramstore/paramstore/internal/realtime"
)

// readCacheTTL bounds how stale a cached read may be before a client falls
// through to the engine again; short enough that a multicast-delivered
// change is never masked for long.
const readCacheTTL = 2 * time.Second

// Frontend wires an engine and its parameter table to the HTTP/WebSocket
// surface. Each cmd/paramfrontend process owns exactly one Frontend,
// opened against the same database and backup files a sibling
// cmd/paramstored daemon uses, matching the system's real multi-process
// deployment shape.
type Frontend struct {
	engine *engine.Engine
	table  *paramtable.Table
	hub    *hub
	logger *slog.Logger
	cache  cache.Cache
	auth   middleware.AuthConfig
}

// SetAuth enables API-key authentication on the write route: a request
// must carry "Authorization: ApiKey <key>" resolving to a user with at
// least operator role, or it is rejected before reaching the engine.
// Unset (the zero value), writes remain open, matching a trusted
// single-tenant deployment.
func (f *Frontend) SetAuth(keys map[string]*middleware.User) {
	f.auth = middleware.AuthConfig{APIKeys: keys, EnableAPIKey: len(keys) > 0}
}

// SetCache attaches an optional read-through cache to the REST read path
// (cmd/paramfrontend wires this to Redis when PARAMSTORE_CACHE_ADDR is
// set). Passing nil disables it; the zero value already has it disabled.
func (f *Frontend) SetCache(c cache.Cache) { f.cache = c }

// New builds a Frontend. publisher may be nil; when set, successful
// WebSocket save, restore and factory_reset requests publish a store event
// on it. Parameter writes are not published there; WebSocket clients learn
// of them through the engine callbacks the hub installs.
func New(e *engine.Engine, tbl *paramtable.Table, publisher *realtime.EventPublisher, logger *slog.Logger) *Frontend {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Frontend{
		engine: e,
		table:  tbl,
		logger: logger.With("component", "frontend"),
	}
	f.hub = newHub(e, tbl, publisher, f.logger)
	return f
}

// Router builds the mux.Router serving /info, /api/read/:parameter,
// /api/write/:parameter, /ws and the swagger UI.
func (f *Frontend) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggingMiddleware(f.logger))
	r.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig()))
	r.Use(middleware.RateLimitMiddleware(600, 50))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.CompressionMiddleware)
	r.Use(middleware.ValidationMiddleware)

	r.HandleFunc("/info", f.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/api/read/{parameter}", f.handleReadParam).Methods(http.MethodGet)

	writeRoute := r.Handle("/api/write/{parameter}", http.HandlerFunc(f.handleWriteParam)).Methods(http.MethodPost)
	if f.auth.EnableAPIKey || f.auth.EnableJWT {
		writeRoute.Handler(middleware.AuthMiddleware(f.auth)(middleware.OperatorMiddleware(http.HandlerFunc(f.handleWriteParam))))
	}

	r.HandleFunc("/ws", f.hub.serveWS).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.WrapHandler)

	return r
}

// Start runs the WebSocket hub's broadcast loop; callers should run this
// in a goroutine alongside http.Serve(Router()).
func (f *Frontend) Start() { f.hub.start() }

// Stop shuts down the hub, closing every connected client.
func (f *Frontend) Stop() { f.hub.stop() }

type routeInfo struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var routes = []routeInfo{
	{Path: "/ws", Method: "GET", Description: "WebSocket connection endpoint"},
	{Path: "/api/read/:parameter", Method: "GET", Description: "Read a parameter value"},
	{Path: "/api/write/:parameter", Method: "POST", Description: "Write a parameter value"},
	{Path: "/info", Method: "GET", Description: "Shown info about the API"},
}

type parameterInfo struct {
	ID            uint32      `json:"id"`
	Name          string      `json:"name"`
	Comment       string      `json:"comment"`
	Title         string      `json:"title"`
	IsConst       bool        `json:"is_const"`
	Runtime       bool        `json:"runtime"`
	Readonly      bool        `json:"readonly"`
	Group         string      `json:"group"`
	Validation    interface{} `json:"validation"`
	ParameterType string      `json:"parameter_type"`
}

type groupInfo struct {
	Comment string `json:"comment"`
	Title   string `json:"title"`
	Name    string `json:"name"`
}

func (f *Frontend) handleInfo(w http.ResponseWriter, r *http.Request) {
	parameters := make([]parameterInfo, 0, f.table.Len())
	for id := 0; id < f.table.Len(); id++ {
		d := f.table.Descriptor(uint32(id))
		if d.Internal {
			continue
		}
		parameters = append(parameters, parameterInfo{
			ID:            d.ID,
			Name:          d.NameID,
			Comment:       d.Comment,
			Title:         d.Title,
			IsConst:       d.IsConst,
			Runtime:       d.Runtime,
			Readonly:      d.Readonly,
			Group:         groupOf(d.NameID),
			Validation:    validationJSON(d.Validation),
			ParameterType: d.ValueType.String(),
		})
	}

	groups := make([]groupInfo, 0, len(f.table.Groups))
	for _, g := range f.table.Groups {
		groups = append(groups, groupInfo{Name: g.Name, Title: g.Title, Comment: g.Comment})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"parameters": parameters,
		"group":      groups,
		"routes":     routes,
	})
}

func (f *Frontend) handleReadParam(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["parameter"]

	id, ok := f.table.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "parameter |"+name+"| does not exist")
		return
	}
	d := f.table.Descriptor(id)
	if d.Internal {
		writeError(w, http.StatusForbidden, "access internal parameter |"+name+"| forbidden")
		return
	}

	if f.cache != nil {
		var cached string
		if err := f.cache.Get(r.Context(), name, &cached); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(cached))
			return
		} else if !cache.IsNotFound(err) {
			f.logger.Warn("frontend: cache read failed, falling through to engine", "name", name, "error", err)
		}
	}

	raw, err := f.engine.GetAsJSON(r.Context(), id, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read parameter |"+name+"|: "+err.Error())
		return
	}
	if f.cache != nil {
		if err := f.cache.Set(r.Context(), name, string(raw), readCacheTTL); err != nil {
			f.logger.Warn("frontend: cache write failed", "name", name, "error", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (f *Frontend) handleWriteParam(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["parameter"]
	if user, ok := middleware.GetUser(r.Context()); ok {
		f.logger.Info("frontend: write authenticated", "name", name, "user", user.Username, "role", user.Role)
	}

	id, ok := f.table.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "parameter |"+name+"| does not exist")
		return
	}
	d := f.table.Descriptor(id)
	if d.Internal {
		writeError(w, http.StatusForbidden, "access internal parameter |"+name+"| forbidden")
		return
	}
	if d.Readonly {
		writeError(w, http.StatusForbidden, "readonly parameter cannot be changed |"+name+"|")
		return
	}

	raw, err := bodyToJSONValue(r, d)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid parameter |"+name+"| value: "+err.Error())
		return
	}

	v, err := f.engine.SetFromJSON(r.Context(), id, raw)
	if err != nil {
		if errors.Is(err, engine.ErrValidation) || errors.Is(err, engine.ErrTypeMismatch) {
			writeError(w, http.StatusBadRequest, "invalid parameter |"+name+"| value: "+err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to set parameter |"+name+"|: "+err.Error())
		return
	}

	if f.cache != nil {
		if err := f.cache.Delete(r.Context(), name); err != nil && !cache.IsNotFound(err) {
			f.logger.Warn("frontend: cache invalidation failed", "name", name, "error", err)
		}
	}

	applied, err := json.Marshal(v.String())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(applied)
}

// bodyToJSONValue adapts the write endpoint's raw request body (a bare
// value string, per rest_server.rs's set_from_string convention) into the
// json.RawMessage engine.SetFromJSON expects: numeric/bool bodies are
// already valid JSON as-is, String/Blob bodies are quoted into JSON
// strings (Blob values are base64 text per the engine's JSON encoding).
func bodyToJSONValue(r *http.Request, d *paramtable.Descriptor) (json.RawMessage, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(body) {
		return nil, errors.New("invalid UTF-8 data")
	}

	if d.ValueType == pvalue.KindString || d.ValueType == pvalue.KindBlob {
		quoted, err := json.Marshal(string(body))
		if err != nil {
			return nil, err
		}
		return quoted, nil
	}
	if !json.Valid(body) {
		return nil, errors.New("not a valid " + d.ValueType.String() + " value")
	}
	return json.RawMessage(body), nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// groupOf extracts the "<group>@<field>" NameID's group half.
func groupOf(nameID string) string {
	for i := 0; i < len(nameID); i++ {
		if nameID[i] == '@' {
			return nameID[:i]
		}
	}
	return ""
}

func validationJSON(v paramtable.Validation) interface{} {
	switch v.Kind {
	case paramtable.ValidationRange:
		return map[string]interface{}{"kind": "range", "min": v.Min.String(), "max": v.Max.String()}
	case paramtable.ValidationAllowedValues:
		names := make([]string, len(v.Values))
		for i, val := range v.Values {
			if i < len(v.Names) && v.Names[i] != "" {
				names[i] = v.Names[i]
			} else {
				names[i] = val.String()
			}
		}
		return map[string]interface{}{"kind": "allowed_values", "values": names}
	case paramtable.ValidationCustomCallback:
		return map[string]interface{}{"kind": "custom_callback"}
	default:
		return nil
	}
}
