// Package notify implements the host-local multicast change-notification
// bus: the Notifier (component E) and the Event Receiver (component F).
// Payloads are encoded with real protobuf wire framing
// (google.golang.org/protobuf/encoding/protowire) rather than a bespoke
// format, mirroring original_source/econfmanager's use of prost::Message
// for ParameterNotification{id: i32}.
package notify

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MulticastGroup and MulticastPort are the fixed, private-use host-local
// multicast address names.
const (
	MulticastGroup = "224.0.0.123"
	MulticastPort  = 44321
	maxDatagram    = 1024 // 1 KiB
)

// notificationIDField is field 1 of the single-field ParameterNotification
// message {id: varint unsigned 32-bit}, per wire format.
const notificationIDField = protowire.Number(1)

// encodeNotification serializes a parameter id as a one-field protobuf
// message, matching the Rust original's prost-generated encoding.
func encodeNotification(id uint32) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, notificationIDField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(id))
	return buf
}

// decodeNotification parses a datagram back into a parameter id. Malformed
// or oversized packets are rejected and logged by the caller.
func decodeNotification(data []byte) (uint32, error) {
	if len(data) == 0 || len(data) > maxDatagram {
		return 0, fmt.Errorf("notify: invalid datagram length %d", len(data))
	}

	num, typ, n := protowire.ConsumeTag(data)
	if n < 0 {
		return 0, fmt.Errorf("notify: malformed tag: %w", protowire.ParseError(n))
	}
	if num != notificationIDField || typ != protowire.VarintType {
		return 0, fmt.Errorf("notify: unexpected field %d type %d", num, typ)
	}

	v, n := protowire.ConsumeVarint(data[n:])
	if n < 0 {
		return 0, fmt.Errorf("notify: malformed varint: %w", protowire.ParseError(n))
	}
	if v > uint64(^uint32(0)) {
		return 0, fmt.Errorf("notify: id %d overflows uint32", v)
	}
	return uint32(v), nil
}
