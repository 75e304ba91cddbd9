// Command paramstoreffi builds the stable C ABI the FFI facade (component H)
// describes (build with `go build -buildmode=c-shared`). The logic lives in
// internal/ffi so it can be unit tested without cgo; this file is the thin
// cgo export boundary: C types in, C types out.
package main

/*
#include <stdint.h>

typedef void (*paramstore_callback)(uint32_t id, void *user_data);

static inline void paramstore_invoke_callback(paramstore_callback cb, uint32_t id, void *user_data) {
	if (cb != 0) {
		cb(id, user_data);
	}
}
*/
import "C"

import (
	"context"
	"log/slog"
	"unsafe"

	"github.com/paramstore/paramstore/internal/ffi"
	"github.com/paramstore/paramstore/internal/paramtable"
)

// table must be set by an embedder's generated schema package before
// calling paramstore_init; a real deployment links in the codegen output
// from internal/schema and assigns it here during package init.
var table *paramtable.Table

//export paramstore_init
func paramstore_init(dbPath, backupPath, dataFolder *C.char, outInstance *C.uint64_t) C.int32_t {
	if outInstance == nil || table == nil {
		return C.int32_t(ffi.StatusError)
	}
	h, status := ffi.Init(context.Background(), table, C.GoString(dbPath), C.GoString(backupPath), C.GoString(dataFolder))
	*outInstance = C.uint64_t(h)
	return C.int32_t(status)
}

//export paramstore_shutdown
func paramstore_shutdown(instance C.uint64_t) C.int32_t {
	return C.int32_t(ffi.Shutdown(ffi.Handle(instance)))
}

//export paramstore_get_name
func paramstore_get_name(instance C.uint64_t, id C.uint32_t, buf *C.char, maxLen C.size_t, outLen *C.size_t) C.int32_t {
	goBuf := cBytes(buf, maxLen)
	n, status := ffi.GetName(ffi.Handle(instance), uint32(id), goBuf)
	if outLen != nil {
		*outLen = C.size_t(n)
	}
	return C.int32_t(status)
}

//export paramstore_get_i32
func paramstore_get_i32(instance C.uint64_t, id C.uint32_t, out *C.int32_t) C.int32_t {
	v, status := ffi.GetI32(ffi.Handle(instance), uint32(id))
	if out != nil {
		*out = C.int32_t(v)
	}
	return C.int32_t(status)
}

//export paramstore_set_i32
func paramstore_set_i32(instance C.uint64_t, id C.uint32_t, value C.int32_t) C.int32_t {
	return C.int32_t(ffi.SetI32(ffi.Handle(instance), uint32(id), int32(value)))
}

//export paramstore_get_string
func paramstore_get_string(instance C.uint64_t, id C.uint32_t, buf *C.char, maxLen C.size_t, outLen *C.size_t) C.int32_t {
	goBuf := cBytes(buf, maxLen)
	n, status := ffi.GetString(ffi.Handle(instance), uint32(id), goBuf)
	if outLen != nil {
		*outLen = C.size_t(n)
	}
	return C.int32_t(status)
}

//export paramstore_set_string
func paramstore_set_string(instance C.uint64_t, id C.uint32_t, value *C.char) C.int32_t {
	return C.int32_t(ffi.SetString(ffi.Handle(instance), uint32(id), C.GoString(value)))
}

//export paramstore_update_poll
func paramstore_update_poll(instance C.uint64_t) C.int32_t {
	return C.int32_t(ffi.UpdatePoll(ffi.Handle(instance)))
}

//export paramstore_set_up_timer_poll
func paramstore_set_up_timer_poll(instance C.uint64_t, periodMS C.uint32_t) C.int32_t {
	return C.int32_t(ffi.SetUpTimerPoll(ffi.Handle(instance), uint32(periodMS)))
}

//export paramstore_stop_timer_poll
func paramstore_stop_timer_poll(instance C.uint64_t) C.int32_t {
	return C.int32_t(ffi.StopTimerPoll(ffi.Handle(instance)))
}

//export paramstore_load
func paramstore_load(instance C.uint64_t) C.int32_t {
	return C.int32_t(ffi.Load(ffi.Handle(instance)))
}

//export paramstore_save
func paramstore_save(instance C.uint64_t) C.int32_t {
	return C.int32_t(ffi.Save(ffi.Handle(instance)))
}

//export paramstore_factory_reset
func paramstore_factory_reset(instance C.uint64_t) C.int32_t {
	return C.int32_t(ffi.FactoryReset(ffi.Handle(instance)))
}

// callbackEntry keeps the C fn_ptr/user_data pair alive for the lifetime of
// the registration, wrapping the raw function pointer and its opaque
// user-data pointer into a closure the engine can invoke safely.
type callbackEntry struct {
	fn       C.paramstore_callback
	userData unsafe.Pointer
}

//export paramstore_add_callback
func paramstore_add_callback(instance C.uint64_t, id C.uint32_t, fn C.paramstore_callback, userData unsafe.Pointer) C.int32_t {
	entry := callbackEntry{fn: fn, userData: userData}
	cb := func(paramID uint32) {
		C.paramstore_invoke_callback(entry.fn, C.uint32_t(paramID), entry.userData)
	}
	return C.int32_t(ffi.AddCallback(ffi.Handle(instance), uint32(id), cb))
}

//export paramstore_delete_callback
func paramstore_delete_callback(instance C.uint64_t, id C.uint32_t) C.int32_t {
	return C.int32_t(ffi.DeleteCallback(ffi.Handle(instance), uint32(id)))
}

// cBytes wraps a C buffer as a Go byte slice without copying, or returns
// nil when buf is the null-pointer length probe.
func cBytes(buf *C.char, maxLen C.size_t) []byte {
	if buf == nil || maxLen == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(maxLen))
}

func main() {
	slog.Info("paramstoreffi: built as a C shared library; this main is unused at runtime")
}
