package ffi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/paramstore/paramstore/internal/engine"
	"github.com/paramstore/paramstore/internal/paramtable"
	"github.com/paramstore/paramstore/internal/pvalue"
	"github.com/paramstore/paramstore/internal/updater"
)

// Init mirrors init(db_path, backup_path, data_folder, out_instance):
// builds an engine against tbl and returns the handle a caller uses for
// every subsequent call.
func Init(ctx context.Context, tbl *paramtable.Table, dbPath, backupPath, dataFolder string) (Handle, Status) {
	e, err := engine.New(ctx, engine.Config{
		Table:      tbl,
		DBPath:     dbPath,
		BackupPath: backupPath,
		DataFolder: dataFolder,
		Logger:     slog.Default(),
	})
	if err != nil {
		return 0, StatusError
	}
	return Register(e), StatusOk
}

// Shutdown closes the engine behind h and releases the handle.
func Shutdown(h Handle) Status {
	e, err := lookup(h)
	if err != nil {
		return StatusError
	}
	defer Release(h)
	if err := e.Close(); err != nil {
		return StatusError
	}
	return StatusOk
}

// GetName implements the generic get_name(instance, id, buf, max_len)
// entry point: when buf is nil (max_len == 0), it's a length probe that
// returns the required length via outLen with StatusOk.
func GetName(h Handle, id uint32, buf []byte) (outLen int, status Status) {
	e, err := lookup(h)
	if err != nil {
		return 0, StatusError
	}
	name := e.Name(id)
	if name == "" {
		return 0, StatusError
	}
	return copyString(name, buf), StatusOk
}

// copyString implements the (buffer, max_len, out_len) convention shared
// by every string/blob getter: nil or undersized buf only reports the
// required length, never partially writes.
func copyString(s string, buf []byte) int {
	if buf == nil || len(buf) < len(s) {
		return len(s)
	}
	copy(buf, s)
	return len(s)
}

// GetI32/SetI32 and friends are the generic typed accessors, addressed by
// parameter id. The schema compiler's codegen (internal/schema) emits the
// id constants but no per-parameter get_<name>/set_<name> functions.

func GetI32(h Handle, id uint32) (int32, Status) {
	v, err := get(h, id)
	if err != nil || v.Kind != pvalue.KindI32 {
		return 0, StatusError
	}
	return v.I32, StatusOk
}

func SetI32(h Handle, id uint32, value int32) Status {
	return set(h, id, pvalue.I32(value))
}

func GetU32(h Handle, id uint32) (uint32, Status) {
	v, err := get(h, id)
	if err != nil || v.Kind != pvalue.KindU32 {
		return 0, StatusError
	}
	return v.U32, StatusOk
}

func SetU32(h Handle, id uint32, value uint32) Status {
	return set(h, id, pvalue.U32(value))
}

func GetI64(h Handle, id uint32) (int64, Status) {
	v, err := get(h, id)
	if err != nil || v.Kind != pvalue.KindI64 {
		return 0, StatusError
	}
	return v.I64, StatusOk
}

func SetI64(h Handle, id uint32, value int64) Status {
	return set(h, id, pvalue.I64(value))
}

func GetU64(h Handle, id uint32) (uint64, Status) {
	v, err := get(h, id)
	if err != nil || v.Kind != pvalue.KindU64 {
		return 0, StatusError
	}
	return v.U64, StatusOk
}

func SetU64(h Handle, id uint32, value uint64) Status {
	return set(h, id, pvalue.U64(value))
}

func GetF32(h Handle, id uint32) (float32, Status) {
	v, err := get(h, id)
	if err != nil || v.Kind != pvalue.KindF32 {
		return 0, StatusError
	}
	return v.F32, StatusOk
}

func SetF32(h Handle, id uint32, value float32) Status {
	return set(h, id, pvalue.F32(value))
}

func GetF64(h Handle, id uint32) (float64, Status) {
	v, err := get(h, id)
	if err != nil || v.Kind != pvalue.KindF64 {
		return 0, StatusError
	}
	return v.F64, StatusOk
}

func SetF64(h Handle, id uint32, value float64) Status {
	return set(h, id, pvalue.F64(value))
}

func GetBool(h Handle, id uint32) (bool, Status) {
	v, err := get(h, id)
	if err != nil || v.Kind != pvalue.KindBool {
		return false, StatusError
	}
	return v.Bool, StatusOk
}

func SetBool(h Handle, id uint32, value bool) Status {
	return set(h, id, pvalue.Bool(value))
}

// GetString follows the (buffer, max_len, out_len) convention.
func GetString(h Handle, id uint32, buf []byte) (outLen int, status Status) {
	v, err := get(h, id)
	if err != nil || v.Kind != pvalue.KindString {
		return 0, StatusError
	}
	return copyString(v.Str, buf), StatusOk
}

func SetString(h Handle, id uint32, value string) Status {
	return set(h, id, pvalue.String(value))
}

// GetBlob follows the (buffer, max_len, out_len) convention.
func GetBlob(h Handle, id uint32, buf []byte) (outLen int, status Status) {
	v, err := get(h, id)
	if err != nil || v.Kind != pvalue.KindBlob {
		return 0, StatusError
	}
	if buf == nil || len(buf) < len(v.Blob) {
		return len(v.Blob), StatusOk
	}
	copy(buf, v.Blob)
	return len(v.Blob), StatusOk
}

func SetBlob(h Handle, id uint32, value []byte) Status {
	return set(h, id, pvalue.Blob(value))
}

func get(h Handle, id uint32) (pvalue.Value, error) {
	e, err := lookup(h)
	if err != nil {
		return pvalue.None, err
	}
	return e.Get(context.Background(), id, false)
}

func set(h Handle, id uint32, v pvalue.Value) Status {
	e, err := lookup(h)
	if err != nil {
		return StatusError
	}
	if _, err := e.Set(context.Background(), id, v); err != nil {
		return StatusError
	}
	return StatusOk
}

// CallbackFunc is the Go-side shape a registered C function pointer is
// adapted to; cmd/paramstoreffi's cgo shim wraps a raw fn_ptr/user_data
// pair into exactly this closure before calling AddCallback.
type CallbackFunc func(id uint32)

func AddCallback(h Handle, id uint32, cb CallbackFunc) Status {
	e, err := lookup(h)
	if err != nil {
		return StatusError
	}
	if err := e.AddCallback(id, cb); err != nil {
		return StatusError
	}
	return StatusOk
}

func DeleteCallback(h Handle, id uint32) Status {
	e, err := lookup(h)
	if err != nil {
		return StatusError
	}
	if err := e.DeleteCallback(id); err != nil {
		return StatusError
	}
	return StatusOk
}

func UpdatePoll(h Handle) Status {
	e, err := lookup(h)
	if err != nil {
		return StatusError
	}
	if err := e.PollOnce(context.Background()); err != nil {
		return StatusError
	}
	return StatusOk
}

// timerHandles tracks the background updater a SetUpTimerPoll call
// started, so StopTimerPoll can join it without threading extra state
// through the C caller.
var (
	timerMu sync.Mutex
	timers = make(map[Handle]*updater.Updater)
)

func SetUpTimerPoll(h Handle, periodMS uint32) Status {
	e, err := lookup(h)
	if err != nil {
		return StatusError
	}
	u := e.StartPolling(time.Duration(periodMS) * time.Millisecond)
	timerMu.Lock()
	timers[h] = u
	timerMu.Unlock()
	return StatusOk
}

func StopTimerPoll(h Handle) Status {
	timerMu.Lock()
	u, ok := timers[h]
	delete(timers, h)
	timerMu.Unlock()
	if !ok {
		return StatusError
	}
	u.Stop()
	return StatusOk
}

func Load(h Handle) Status {
	e, err := lookup(h)
	if err != nil {
		return StatusError
	}
	return statusFor(e.Load(context.Background()))
}

func Save(h Handle) Status {
	e, err := lookup(h)
	if err != nil {
		return StatusError
	}
	return statusFor(e.Save(context.Background()))
}

func FactoryReset(h Handle) Status {
	e, err := lookup(h)
	if err != nil {
		return StatusError
	}
	return statusFor(e.FactoryReset(context.Background()))
}
