// Package engine implements the parameter engine (component D):
// the public get/set surface, the per-parameter cache, validation, and the
// coordination between the durable store, the notifier, the event receiver
// and the periodic updater. Grounded on
// internal/config.ConfigUpdateService's validate-then-apply-then-reload
// shape (internal/config/update_interfaces.go) generalized from whole-config
// reloads to single-parameter get/set, and on
// original_source/econfmanager/src/interface.rs's InterfaceInstance for the
// exact cache/notify/callback semantics.
package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/paramstore/paramstore/internal/notify"
	"github.com/paramstore/paramstore/internal/paramtable"
	"github.com/paramstore/paramstore/internal/pvalue"
	"github.com/paramstore/paramstore/internal/store"
	"github.com/paramstore/paramstore/internal/updater"
)

// lockTimeout is bounded engine-mutex acquisition window.
const lockTimeout = time.Second

// slot is the in-memory runtime state of a single parameter: a cached value
// plus an optional single listener.
type slot struct {
	cached   *pvalue.Value
	callback func(id uint32)
}

// CustomValidator is the runtime hook an embedder installs for the
// CustomCallback validation kind; unset, CustomCallback validates
// unconditionally.
type CustomValidator func(pvalue.Value) error

// Config bundles Engine construction parameters.
type Config struct {
	Table        *paramtable.Table
	DBPath       string
	BackupPath   string
	DataFolder   string // base directory Blob defaults are resolved against
	Logger       *slog.Logger
	PollInterval time.Duration // periodic updater tick; 0 disables it
	Metrics      *Metrics
}

// Engine is the parameter engine. One Engine per embedding process; an
// embedder may construct multiple Engines, each with its own cache and
// receiver.
type Engine struct {
	table  *paramtable.Table
	store  *store.Store
	logger *slog.Logger

	mu    *timedMutex
	slots []slot

	notifier *notify.Notifier
	receiver *notify.Receiver
	updater  *updater.Updater

	dataFolder string
	backupPath string
	blobCache  *lru.Cache[string, []byte]

	customValidators map[uint32]CustomValidator
	metrics          *Metrics
}

// New wires together the store, notifier, receiver and periodic updater
// and returns a ready-to-use Engine.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Table == nil {
		return nil, fmt.Errorf("engine: Config.Table must not be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(ctx, cfg.DBPath, cfg.BackupPath, logger)
	if err != nil {
		return nil, fmt.Errorf("engine: %w: %v", ErrIO, err)
	}

	blobCache, err := lru.New[string, []byte](64)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("engine: failed to create blob cache: %w", err)
	}

	e := &Engine{
		table:            cfg.Table,
		store:            st,
		logger:           logger.With("component", "engine"),
		mu:               newTimedMutex(),
		slots:            make([]slot, cfg.Table.Len()),
		dataFolder:       cfg.DataFolder,
		backupPath:       cfg.BackupPath,
		blobCache:        blobCache,
		customValidators: make(map[uint32]CustomValidator),
		metrics:          cfg.Metrics,
	}

	notifier, err := notify.NewNotifier(logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("engine: failed to start notifier: %w", err)
	}
	e.notifier = notifier

	receiver, err := notify.NewReceiver(logger, uint32(cfg.Table.Len()), e.onRemoteChange)
	if err != nil {
		notifier.Close()
		st.Close()
		return nil, fmt.Errorf("engine: failed to start event receiver: %w", err)
	}
	e.receiver = receiver
	receiver.Start()

	if cfg.PollInterval > 0 {
		e.updater = updater.New(st, e.table.Lookup, e.onRemoteChange, cfg.PollInterval, logger)
		e.updater.Start(ctx)
	}

	return e, nil
}

// Name resolves a parameter id to its name-id, or "" if out of range
// (backs the FFI facade's generic get_name entry point).
func (e *Engine) Name(id uint32) string {
	return e.table.Name(id)
}

// PollOnce runs a single durable-store scan and replays callbacks for any
// row whose timestamp advanced since the last scan: the one-shot
// counterpart to the periodic updater started by StartPolling.
func (e *Engine) PollOnce(ctx context.Context) error {
	ids, err := e.store.Update(ctx, e.table.Lookup)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	for _, id := range ids {
		e.onRemoteChange(id)
	}
	return nil
}

// StartPolling starts a background periodic updater ticking at interval
// and returns it so the caller (the FFI facade's set_up_timer_poll) can
// stop it later; it does not replace any updater already started via
// Config.PollInterval.
func (e *Engine) StartPolling(interval time.Duration) *updater.Updater {
	u := updater.New(e.store, e.table.Lookup, e.onRemoteChange, interval, e.logger)
	u.Start(context.Background())
	return u
}

// RegisterCustomValidator installs the CustomCallback validation hook for
// id.
func (e *Engine) RegisterCustomValidator(id uint32, v CustomValidator) {
	e.mu.Lock(lockTimeout)
	defer e.mu.Unlock()
	e.customValidators[id] = v
}

// onRemoteChange is the shared handler for both the event receiver and the
// periodic updater: invalidate the slot, then invoke the callback with the
// lock released. The listener is invoked with id after the slot's cached
// value has been cleared.
func (e *Engine) onRemoteChange(id uint32) {
	if err := e.mu.Lock(lockTimeout); err != nil {
		e.logger.Warn("engine: dropping remote-change dispatch, lock timeout", "id", id)
		return
	}
	if int(id) >= len(e.slots) {
		e.mu.Unlock()
		return
	}
	e.slots[id].cached = nil
	cb := e.slots[id].callback
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.NotificationsReceived.Inc()
	}
	if cb != nil {
		safeInvoke(e.logger, id, cb)
	}
}

func safeInvoke(logger *slog.Logger, id uint32, cb func(uint32)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("engine: callback panicked", "id", id, "panic", r)
		}
	}()
	cb(id)
}

// Get implements get(id, force_refresh).
func (e *Engine) Get(ctx context.Context, id uint32, forceRefresh bool) (pvalue.Value, error) {
	d := e.table.Descriptor(id)
	if d == nil {
		return pvalue.None, ErrInvalidID
	}

	if err := e.mu.LockCtx(ctx, lockTimeout); err != nil {
		return pvalue.None, e.wrapLockErr(err)
	}

	if !forceRefresh && e.slots[id].cached != nil {
		v := *e.slots[id].cached
		e.mu.Unlock()
		return v, nil
	}
	e.mu.Unlock()

	v, err := e.store.ReadOrCreate(ctx, d, e.loadBlobDefault)
	if err != nil {
		e.logger.Warn("engine: read failed, returning default", "id", id, "error", err)
		return d.Default, nil
	}

	if lockErr := e.mu.LockCtx(ctx, lockTimeout); lockErr == nil {
		cv := v
		e.slots[id].cached = &cv
		e.mu.Unlock()
	}
	return v, nil
}

// Set implements set(id, v).
func (e *Engine) Set(ctx context.Context, id uint32, v pvalue.Value) (pvalue.Value, error) {
	d := e.table.Descriptor(id)
	if d == nil {
		return pvalue.None, ErrInvalidID
	}
	if d.IsConst {
		return pvalue.None, ErrConst
	}
	if v.Kind != d.ValueType {
		return pvalue.None, fmt.Errorf("%w: parameter %s wants %s, got %s", ErrTypeMismatch, d.NameID, d.ValueType, v.Kind)
	}
	if err := d.ValidateValue(v); err != nil {
		return pvalue.None, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if custom, ok := e.customValidatorFor(id); ok {
		if err := custom(v); err != nil {
			return pvalue.None, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	status, stored, err := e.store.Write(ctx, d, v, false)
	if err != nil {
		return pvalue.None, fmt.Errorf("%w: %v", ErrIO, err)
	}

	if status != store.StatusOkNotChanged {
		e.notifier.Send(id)
		if e.metrics != nil {
			e.metrics.NotificationsSent.Inc()
		}
	}

	var cb func(uint32)
	if lockErr := e.mu.LockCtx(ctx, lockTimeout); lockErr == nil {
		cv := stored
		e.slots[id].cached = &cv
		cb = e.slots[id].callback
		e.mu.Unlock()
	}
	if e.metrics != nil {
		e.metrics.WritesTotal.Inc()
	}
	if cb != nil && status != store.StatusOkNotChanged {
		safeInvoke(e.logger, id, cb)
	}
	return stored, nil
}

func (e *Engine) customValidatorFor(id uint32) (CustomValidator, bool) {
	e.mu.Lock(lockTimeout)
	defer e.mu.Unlock()
	v, ok := e.customValidators[id]
	return v, ok
}

// AddCallback installs a single listener per id, replacing any existing one.
func (e *Engine) AddCallback(id uint32, cb func(uint32)) error {
	if int(id) >= len(e.slots) {
		return ErrInvalidID
	}
	e.mu.Lock(lockTimeout)
	defer e.mu.Unlock()
	e.slots[id].callback = cb
	return nil
}

// DeleteCallback removes the listener for id, if any.
func (e *Engine) DeleteCallback(id uint32) error {
	if int(id) >= len(e.slots) {
		return ErrInvalidID
	}
	e.mu.Lock(lockTimeout)
	defer e.mu.Unlock()
	e.slots[id].callback = nil
	return nil
}

// Save snapshots all non-runtime parameters to the backup file.
func (e *Engine) Save(ctx context.Context) error {
	filter := func(nameID string) bool {
		id, ok := e.table.Lookup(nameID)
		if !ok {
			return true
		}
		return !e.table.Descriptor(id).Runtime
	}
	if err := e.store.Save(ctx, e.backupFile(), filter); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// Load restores from the backup file and force-notifies every parameter so
// every process re-reads from storage: after load or factory reset, the
// engine force-notifies every id.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.store.Load(ctx, e.backupFile()); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	e.forceNotifyAll()
	return nil
}

// backupFile is Config.BackupPath, or the live path plus ".backup" when
// none was given.
func (e *Engine) backupFile() string {
	if e.backupPath != "" {
		return e.backupPath
	}
	return e.store.Path() + ".backup"
}

// FactoryReset drops the durable table and force-notifies every parameter.
func (e *Engine) FactoryReset(ctx context.Context) error {
	if err := e.store.DropDatabase(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	e.forceNotifyAll()
	return nil
}

// forceNotifyAll clears every cache slot and fires the notifier for every
// id.
func (e *Engine) forceNotifyAll() {
	e.mu.Lock(lockTimeout)
	for i := range e.slots {
		e.slots[i].cached = nil
	}
	e.mu.Unlock()

	for id := 0; id < e.table.Len(); id++ {
		e.notifier.Send(uint32(id))
	}
}

// SetFromJSON and GetAsJSON are convenience entry points mirroring
// original_source/econfmanager's interface.rs, base64-encoding Blob
// payloads.
func (e *Engine) SetFromJSON(ctx context.Context, id uint32, raw json.RawMessage) (pvalue.Value, error) {
	d := e.table.Descriptor(id)
	if d == nil {
		return pvalue.None, ErrInvalidID
	}

	v, err := decodeJSONValue(d, raw)
	if err != nil {
		return pvalue.None, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return e.Set(ctx, id, v)
}

func (e *Engine) GetAsJSON(ctx context.Context, id uint32, forceRefresh bool) (json.RawMessage, error) {
	v, err := e.Get(ctx, id, forceRefresh)
	if err != nil {
		return nil, err
	}
	return encodeJSONValue(v)
}

func decodeJSONValue(d *paramtable.Descriptor, raw json.RawMessage) (pvalue.Value, error) {
	switch d.ValueType {
	case pvalue.KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return pvalue.None, err
		}
		return pvalue.Bool(b), nil
	case pvalue.KindI32:
		var n int32
		if err := json.Unmarshal(raw, &n); err != nil {
			return pvalue.None, err
		}
		return pvalue.I32(n), nil
	case pvalue.KindU32:
		var n uint32
		if err := json.Unmarshal(raw, &n); err != nil {
			return pvalue.None, err
		}
		return pvalue.U32(n), nil
	case pvalue.KindI64:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return pvalue.None, err
		}
		return pvalue.I64(n), nil
	case pvalue.KindU64:
		var n uint64
		if err := json.Unmarshal(raw, &n); err != nil {
			return pvalue.None, err
		}
		return pvalue.U64(n), nil
	case pvalue.KindF32:
		var n float32
		if err := json.Unmarshal(raw, &n); err != nil {
			return pvalue.None, err
		}
		return pvalue.F32(n), nil
	case pvalue.KindF64:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return pvalue.None, err
		}
		return pvalue.F64(n), nil
	case pvalue.KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return pvalue.None, err
		}
		return pvalue.String(s), nil
	case pvalue.KindBlob:
		var b64 string
		if err := json.Unmarshal(raw, &b64); err != nil {
			return pvalue.None, err
		}
		bin, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return pvalue.None, err
		}
		return pvalue.Blob(bin), nil
	case pvalue.KindEnum:
		var n int32
		if err := json.Unmarshal(raw, &n); err != nil {
			return pvalue.None, err
		}
		return pvalue.Enum(d.EnumName, n), nil
	default:
		return pvalue.None, fmt.Errorf("unsupported kind %s", d.ValueType)
	}
}

func encodeJSONValue(v pvalue.Value) (json.RawMessage, error) {
	if v.Kind == pvalue.KindBlob {
		return json.Marshal(base64.StdEncoding.EncodeToString(v.Blob))
	}
	switch v.Kind {
	case pvalue.KindBool:
		return json.Marshal(v.Bool)
	case pvalue.KindI32, pvalue.KindEnum:
		return json.Marshal(v.I32)
	case pvalue.KindU32:
		return json.Marshal(v.U32)
	case pvalue.KindI64:
		return json.Marshal(v.I64)
	case pvalue.KindU64:
		return json.Marshal(v.U64)
	case pvalue.KindF32:
		return json.Marshal(v.F32)
	case pvalue.KindF64:
		return json.Marshal(v.F64)
	case pvalue.KindString:
		return json.Marshal(v.Str)
	default:
		return json.Marshal(nil)
	}
}

// loadBlobDefault materialises a Blob default from its configured path,
// caching repeated reads via an LRU.
func (e *Engine) loadBlobDefault(d *paramtable.Descriptor) (pvalue.Value, error) {
	if cached, ok := e.blobCache.Get(d.DefaultPath); ok {
		return pvalue.Blob(cached), nil
	}
	full := d.DefaultPath
	if e.dataFolder != "" {
		full = e.dataFolder + "/" + d.DefaultPath
	}
	data, err := os.ReadFile(full)
	if err != nil {
		e.logger.Warn("engine: failed to load blob default", "path", full, "error", err)
		return pvalue.Blob(nil), nil
	}
	e.blobCache.Add(d.DefaultPath, data)
	return pvalue.Blob(data), nil
}

func (e *Engine) wrapLockErr(err error) error {
	if err == ErrLockTimeout {
		return ErrLockTimeout
	}
	return err
}

// Close stops the receiver and periodic updater, then closes the store;
// in-flight callbacks complete before Close returns.
func (e *Engine) Close() error {
	if e.updater != nil {
		e.updater.Stop()
	}
	if e.receiver != nil {
		e.receiver.Close()
	}
	if e.notifier != nil {
		e.notifier.Close()
	}
	return e.store.Close()
}
