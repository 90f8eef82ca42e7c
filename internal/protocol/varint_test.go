package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUvarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 53, (1 << 53) - 1}
	for _, n := range cases {
		var buf bytes.Buffer
		WriteUvarint(&buf, n)
		got, consumed, err := ReadUvarint(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, n, got)
		assert.Equal(t, buf.Len(), consumed)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	cases := [][]byte{nil, {}, []byte("hello"), bytes.Repeat([]byte{0xff}, 500)}
	for _, b := range cases {
		var buf bytes.Buffer
		WriteBytes(&buf, b)
		got, consumed, err := ReadBytes(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, len(b), len(got))
		assert.Equal(t, buf.Len(), consumed)
	}
}

func TestReadUvarintTruncated(t *testing.T) {
	_, _, err := ReadUvarint([]byte{0x80, 0x80})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReadUvarintTooLong(t *testing.T) {
	longBuf := bytes.Repeat([]byte{0x80}, 11)
	_, _, err := ReadUvarint(longBuf)
	assert.ErrorIs(t, err, ErrVarintTooLong)
}

func TestReadBytesTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	WriteUvarint(&buf, 10)
	buf.WriteString("abc")
	_, _, err := ReadBytes(buf.Bytes())
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeUnknownMessageType(t *testing.T) {
	var buf bytes.Buffer
	WriteUvarint(&buf, 99)
	_, err := Decode(buf.Bytes())
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestEncodeDecodeSyncStep1(t *testing.T) {
	sv := []byte{1, 2, 3}
	frame, err := Decode(EncodeSyncStep1(sv))
	require.NoError(t, err)
	assert.Equal(t, MessageSync, frame.Type)
	assert.Equal(t, SyncStep1, frame.SyncSubType)
	assert.Equal(t, sv, frame.Payload)
}

func TestEncodeDecodeUpdate(t *testing.T) {
	u := []byte("an update")
	frame, err := Decode(EncodeUpdate(u))
	require.NoError(t, err)
	assert.Equal(t, SyncUpdate, frame.SyncSubType)
	assert.Equal(t, u, frame.Payload)
}

func TestEncodeDecodeAwareness(t *testing.T) {
	delta := []byte("awareness-delta")
	frame, err := Decode(EncodeAwareness(delta))
	require.NoError(t, err)
	assert.Equal(t, MessageAwareness, frame.Type)
	assert.Equal(t, delta, frame.AwarenessPayload)
}

func TestDecodeMalformedFrameDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		_, _ = Decode([]byte{})
		_, _ = Decode([]byte{0x00})
		_, _ = Decode([]byte{0x00, 0x00, 0xff})
	})
}
