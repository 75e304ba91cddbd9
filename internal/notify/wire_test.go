package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeNotificationRoundTrip(t *testing.T) {
	for _, id := range []uint32{0, 1, 42, 1 << 20} {
		payload := encodeNotification(id)
		got, err := decodeNotification(payload)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestDecodeNotificationRejectsMalformed(t *testing.T) {
	_, err := decodeNotification(nil)
	assert.Error(t, err)

	_, err = decodeNotification([]byte{0xff}) // truncated varint
	assert.Error(t, err)

	oversized := make([]byte, maxDatagram+1)
	_, err = decodeNotification(oversized)
	assert.Error(t, err)
}
