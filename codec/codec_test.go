// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"hash/crc32"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(seq uint64, payload []byte) Frame {
	return Frame{
		SourceID:   "cam0",
		Sequence:   seq,
		CapturedAt: time.Unix(0, 1700000000123456789).UTC(),
		Payload:    payload,
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0x10, 0x80, 0xF0}, 400)

	for _, compression := range []CompressionType{CompressionNone, CompressionS2, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			c := New(compression)
			f := testFrame(42, payload)

			data, err := c.EncodeFrame(f)
			require.NoError(t, err)

			got, err := c.DecodeFrame(data)
			require.NoError(t, err)
			assert.Equal(t, f, got)
		})
	}
}

func TestFrameRoundTripSmallPayload(t *testing.T) {
	// Below the compression threshold the record must still round-trip.
	c := New(CompressionZstd)
	f := testFrame(1, []byte{0xDE, 0xAD})

	data, err := c.EncodeFrame(f)
	require.NoError(t, err)

	got, err := c.DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	c := New(CompressionNone)
	f := testFrame(7, []byte{})

	data, err := c.EncodeFrame(f)
	require.NoError(t, err)

	got, err := c.DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, f.SourceID, got.SourceID)
	assert.Equal(t, f.Sequence, got.Sequence)
	assert.Empty(t, got.Payload)
}

func TestEncodeFrameEmptySourceID(t *testing.T) {
	c := New(CompressionNone)
	_, err := c.EncodeFrame(Frame{Sequence: 1, CapturedAt: time.Now()})
	assert.ErrorIs(t, err, ErrEmptySourceID)
}

func TestEncodeFrameOverlongSourceID(t *testing.T) {
	// The wire format length-prefixes strings with a uint16; anything
	// longer must be rejected instead of silently truncated.
	c := New(CompressionNone)
	f := testFrame(1, []byte{0x01})
	f.SourceID = strings.Repeat("c", maxStringLength+1)

	_, err := c.EncodeFrame(f)
	assert.ErrorIs(t, err, ErrMaxLengthExceeded)
}

func TestEncodeDetectionOverlongLabel(t *testing.T) {
	c := New(CompressionNone)
	d := Detection{
		SourceID:      "cam0",
		FrameSequence: 1,
		Attempt:       1,
		ProcessedAt:   time.Unix(0, 1700000003000000000).UTC(),
		Boxes: []Box{
			{Label: strings.Repeat("x", maxStringLength+1), Confidence: 0.5},
		},
	}

	_, err := c.EncodeDetection(d)
	assert.ErrorIs(t, err, ErrMaxLengthExceeded)
}

func TestDetectionRoundTrip(t *testing.T) {
	c := New(CompressionNone)
	d := Detection{
		SourceID:      "cam0",
		FrameSequence: 42,
		Attempt:       3,
		ProcessedAt:   time.Unix(0, 1700000001000000000).UTC(),
		Boxes: []Box{
			{Label: "motion", Confidence: 0.875, X: 10, Y: 20, Width: 320, Height: 240},
			{Label: "person", Confidence: 1, X: 0, Y: 0, Width: 64, Height: 128},
		},
	}

	data, err := c.EncodeDetection(d)
	require.NoError(t, err)

	got, err := c.DecodeDetection(data)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestDetectionRoundTripZeroBoxes(t *testing.T) {
	// A detection with no boxes is a valid record, not a failure.
	c := New(CompressionNone)
	d := Detection{
		SourceID:      "cam1",
		FrameSequence: 9,
		Attempt:       1,
		ProcessedAt:   time.Unix(0, 1700000002000000000).UTC(),
	}

	data, err := c.EncodeDetection(d)
	require.NoError(t, err)

	got, err := c.DecodeDetection(data)
	require.NoError(t, err)
	assert.Equal(t, d, got)
	assert.Empty(t, got.Boxes)
}

func TestDecodeFrameTruncated(t *testing.T) {
	c := New(CompressionNone)
	data, err := c.EncodeFrame(testFrame(1, []byte("payload")))
	require.NoError(t, err)

	for _, n := range []int{0, 4, headerSize - 1, headerSize + 2, len(data) - 1} {
		_, err := c.DecodeFrame(data[:n])
		assert.Error(t, err, "length %d", n)
		assert.True(t, IsDecodeError(err), "length %d", n)
	}
}

func TestDecodeFrameBadMagic(t *testing.T) {
	c := New(CompressionNone)
	data, err := c.EncodeFrame(testFrame(1, []byte("payload")))
	require.NoError(t, err)

	data[0] ^= 0xFF
	_, err = c.DecodeFrame(data)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestDecodeFrameCorrupted(t *testing.T) {
	c := New(CompressionNone)
	data, err := c.EncodeFrame(testFrame(1, []byte("payload")))
	require.NoError(t, err)

	// Flip one bit in the body; the CRC must catch it.
	data[len(data)-1] ^= 0x01
	_, err = c.DecodeFrame(data)
	assert.ErrorIs(t, err, ErrCRCMismatch)
	assert.True(t, IsDecodeError(err))
}

func TestDecodeFrameVersionMismatch(t *testing.T) {
	c := New(CompressionNone)
	data, err := c.EncodeFrame(testFrame(1, []byte("payload")))
	require.NoError(t, err)

	data[8] = Version + 1
	fixCRC(data)
	_, err = c.DecodeFrame(data)
	assert.ErrorIs(t, err, ErrUnsupportedVer)
}

func TestDecodeWrongRecordKind(t *testing.T) {
	c := New(CompressionNone)
	data, err := c.EncodeFrame(testFrame(1, []byte("payload")))
	require.NoError(t, err)

	_, err = c.DecodeDetection(data)
	assert.ErrorIs(t, err, ErrWrongRecordKind)
}

func TestDecodeFrameGarbage(t *testing.T) {
	c := New(CompressionNone)
	_, err := c.DecodeFrame([]byte("definitely not a frame record"))
	assert.Error(t, err)
	assert.True(t, IsDecodeError(err))
}

// fixCRC recomputes the header CRC after a deliberate mutation so the test
// exercises the check after it, not the CRC itself.
func fixCRC(data []byte) {
	crc := crc32.Checksum(data[8:], crcTable)
	data[4] = byte(crc >> 24)
	data[5] = byte(crc >> 16)
	data[6] = byte(crc >> 8)
	data[7] = byte(crc)
}
