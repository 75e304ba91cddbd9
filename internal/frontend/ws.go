package frontend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paramstore/paramstore/internal/engine"
	"github.com/paramstore/paramstore/internal/paramtable"
	"github.com/paramstore/paramstore/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// development mode: accept every origin, same posture as the
		// generated client's embedded dashboard.
		return true
	},
}

// rpcRequest/rpcResponse mirror ws_server.rs's RpcRequest/RpcResponse: a
// JSON-RPC-flavoured envelope carrying an opaque client-chosen id.
type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result interface{}     `json:"result"`
}

type readParams struct {
	Name string `json:"name"`
}

type writeParams struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// client is one connected WebSocket subscriber. subscribed tracks which
// parameter ids this client has asked to be notified about via "read",
// matching ws_server.rs's per-id subscriber list.
type client struct {
	conn       *websocket.Conn
	send       chan []byte
	mu         sync.Mutex
	subscribed map[uint32]bool
}

func (c *client) interestedIn(id uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed[id]
}

func (c *client) subscribe(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribed == nil {
		c.subscribed = make(map[uint32]bool)
	}
	c.subscribed[id] = true
}

// hub manages WebSocket connections, dispatches JSON-RPC requests against
// the engine, and pushes a notify message to every client that read a
// parameter whenever the engine callback for that id fires (grounded on
// cmd/server/handlers's
// WebSocketHub, extended with the request/response dispatch ws_server.rs
// performs over the same connection).
type hub struct {
	engine    *engine.Engine
	table     *paramtable.Table
	publisher *realtime.EventPublisher
	logger    *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	engineCallbacksMu sync.Mutex
	engineCallbacks   map[uint32]bool

	register   chan *client
	unregister chan *client
	done       chan struct{}
}

func newHub(e *engine.Engine, tbl *paramtable.Table, publisher *realtime.EventPublisher, logger *slog.Logger) *hub {
	return &hub{
		engine:          e,
		table:           tbl,
		publisher:       publisher,
		logger:          logger,
		clients:         make(map[*client]bool),
		engineCallbacks: make(map[uint32]bool),
		register:        make(chan *client),
		unregister:      make(chan *client),
		done:            make(chan struct{}),
	}
}

// ensureSubscribed installs a single engine callback per id on first use,
// matching ws_server.rs's "if app.subscribers[id].is_empty(), add_callback".
func (h *hub) ensureSubscribed(id uint32) {
	h.engineCallbacksMu.Lock()
	defer h.engineCallbacksMu.Unlock()
	if h.engineCallbacks[id] {
		return
	}
	if err := h.engine.AddCallback(id, h.notify); err != nil {
		h.logger.Warn("frontend: could not register change callback", "id", id, "error", err)
		return
	}
	h.engineCallbacks[id] = true
}

func (h *hub) start() {
	go h.loop()
}

func (h *hub) stop() {
	close(h.done)
}

func (h *hub) loop() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		}
	}
}

// notify pushes a parameter-changed notification to every client that read
// (and thereby subscribed to) the given id, matching ws_server.rs's
// notify_client.
func (h *hub) notify(id uint32) {
	d := h.table.Descriptor(id)
	if d == nil || d.Internal {
		return
	}
	v, err := h.engine.Get(context.Background(), id, false)
	if err != nil {
		h.logger.Warn("frontend: could not read parameter for notification", "id", id, "error", err)
		return
	}

	msg, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "notify",
		"params":  map[string]interface{}{d.NameID: v.String()},
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.interestedIn(id) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("frontend: client send buffer full, dropping notification", "id", id)
		}
	}
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("frontend: websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256)}
	h.register <- c

	go h.writePump(c)
	h.readPump(c)
}

func (h *hub) writePump(c *client) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *hub) readPump(c *client) {
	defer func() { h.unregister <- c }()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req rpcRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}

		result, rpcErr := h.dispatch(c, &req)
		var resp rpcResponse
		resp.ID = req.ID
		if rpcErr != nil {
			resp.Result = map[string]string{"error": rpcErr.Error()}
		} else {
			resp.Result = result
		}
		encoded, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		select {
		case c.send <- encoded:
		default:
		}
	}
}

// dispatch implements handle_rpc_logic_ws's method table: read, write,
// save, restore, factory_reset.
func (h *hub) dispatch(c *client, req *rpcRequest) (interface{}, error) {
	ctx := context.Background()

	switch req.Method {
	case "read":
		var p readParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Name == "" {
			return nil, errNamedParam("could not decode parameter name")
		}
		id, ok := h.table.Lookup(p.Name)
		if !ok {
			return nil, errNamedParam("unknown parameter " + p.Name)
		}
		d := h.table.Descriptor(id)
		if d.Internal {
			return nil, errNamedParam("access internal parameter |" + p.Name + "| forbidden")
		}
		v, err := h.engine.Get(ctx, id, false)
		if err != nil {
			return nil, err
		}
		h.ensureSubscribed(id)
		c.subscribe(id)
		return map[string]interface{}{"pm": map[string]interface{}{p.Name: v.String()}}, nil

	case "write":
		var p writeParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Name == "" {
			return nil, errNamedParam("could not decode parameter name")
		}
		id, ok := h.table.Lookup(p.Name)
		if !ok {
			return nil, errNamedParam("unknown parameter " + p.Name)
		}
		d := h.table.Descriptor(id)
		if d.Internal {
			return nil, errNamedParam("access internal parameter |" + p.Name + "| forbidden")
		}
		if d.Readonly {
			return nil, errNamedParam("readonly parameter cannot be changed |" + p.Name + "|")
		}
		v, err := h.engine.SetFromJSON(ctx, id, p.Value)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"pm": map[string]interface{}{p.Name: v.String()}}, nil

	case "save":
		if err := h.engine.Save(ctx); err != nil {
			return nil, err
		}
		if h.publisher != nil {
			_ = h.publisher.PublishStoreSaved()
		}
		return map[string]string{"status": "saved"}, nil

	case "restore":
		if err := h.engine.Load(ctx); err != nil {
			return nil, err
		}
		if h.publisher != nil {
			_ = h.publisher.PublishStoreRestored()
		}
		return map[string]string{"status": "restored"}, nil

	case "factory_reset":
		if err := h.engine.FactoryReset(ctx); err != nil {
			return nil, err
		}
		if h.publisher != nil {
			_ = h.publisher.PublishFactoryReset()
		}
		return map[string]string{"status": "reset done"}, nil

	default:
		return nil, errNamedParam("unknown method")
	}
}

type rpcError string

func (e rpcError) Error() string { return string(e) }

func errNamedParam(msg string) error { return rpcError(msg) }
