// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package codec serializes frames and detections to a transport-safe wire
// format. The codec is pure: no I/O, no broker awareness. Encode and Decode
// form a bijection on valid records; any payload that fails to decode is
// permanently undecodable and must be dead-lettered by consumers.
package codec

import (
	"bytes"
	"hash/crc32"
	"time"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"

	"github.com/absmach/framestream/internal/bufpool"
)

// Magic number for wire records (FRMS in ASCII).
const Magic uint32 = 0x46524D53

// Version is the current wire format version.
const Version uint8 = 1

// Record kinds.
const (
	kindFrame     uint8 = 1
	kindDetection uint8 = 2
)

// Header layout:
// Magic(4) + CRC(4) + Version(1) + Kind(1) + Compression(1) = 11 bytes.
// The CRC covers everything after the CRC field.
const headerSize = 11

// CRC32 table for the Castagnoli polynomial.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Compression below this body size is never worth the header cost.
const compressThreshold = 256

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("failed to create zstd encoder: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		panic("failed to create zstd decoder: " + err.Error())
	}
}

// Codec encodes and decodes frames and detections.
type Codec struct {
	compression CompressionType
}

// New creates a codec using the given payload compression for encoding.
// Decoding always honors whatever compression the wire record declares.
func New(compression CompressionType) *Codec {
	return &Codec{compression: compression}
}

// EncodeFrame serializes a frame.
func (c *Codec) EncodeFrame(f Frame) ([]byte, error) {
	if f.SourceID == "" {
		return nil, ErrEmptySourceID
	}
	if len(f.SourceID) > maxStringLength || len(f.Payload) > maxFieldLength {
		return nil, ErrMaxLengthExceeded
	}

	body := bufpool.Get()
	defer bufpool.Put(body)
	body.Grow(len(f.Payload) + 64)
	encodeString(body, f.SourceID)
	encodeUint64(body, f.Sequence)
	encodeUint64(body, uint64(f.CapturedAt.UnixNano()))
	encodeBytes(body, f.Payload)

	return c.seal(kindFrame, body.Bytes())
}

// DecodeFrame deserializes a frame. All failures are *DecodeError.
func (c *Codec) DecodeFrame(data []byte) (Frame, error) {
	body, err := c.open(kindFrame, data)
	if err != nil {
		return Frame{}, err
	}

	r := bytes.NewReader(body)
	sourceID, err := decodeString(r)
	if err != nil {
		return Frame{}, decodeErr("source id", err)
	}
	if sourceID == "" {
		return Frame{}, decodeErr("source id", ErrEmptySourceID)
	}
	seq, err := decodeUint64(r)
	if err != nil {
		return Frame{}, decodeErr("sequence", err)
	}
	capturedAt, err := decodeUint64(r)
	if err != nil {
		return Frame{}, decodeErr("captured at", err)
	}
	payload, err := decodeBytes(r)
	if err != nil {
		return Frame{}, decodeErr("payload", err)
	}

	return Frame{
		SourceID:   sourceID,
		Sequence:   seq,
		CapturedAt: time.Unix(0, int64(capturedAt)).UTC(),
		Payload:    payload,
	}, nil
}

// EncodeDetection serializes a detection for the results channel.
func (c *Codec) EncodeDetection(d Detection) ([]byte, error) {
	if d.SourceID == "" {
		return nil, ErrEmptySourceID
	}
	if len(d.SourceID) > maxStringLength {
		return nil, ErrMaxLengthExceeded
	}
	for _, b := range d.Boxes {
		if len(b.Label) > maxStringLength {
			return nil, ErrMaxLengthExceeded
		}
	}

	body := bufpool.Get()
	defer bufpool.Put(body)
	encodeString(body, d.SourceID)
	encodeUint64(body, d.FrameSequence)
	encodeUint32(body, uint32(d.Attempt))
	encodeUint64(body, uint64(d.ProcessedAt.UnixNano()))
	encodeUint16(body, uint16(len(d.Boxes)))
	for _, b := range d.Boxes {
		encodeString(body, b.Label)
		encodeFloat64(body, b.Confidence)
		encodeUint32(body, b.X)
		encodeUint32(body, b.Y)
		encodeUint32(body, b.Width)
		encodeUint32(body, b.Height)
	}

	return c.seal(kindDetection, body.Bytes())
}

// DecodeDetection deserializes a detection. All failures are *DecodeError.
func (c *Codec) DecodeDetection(data []byte) (Detection, error) {
	body, err := c.open(kindDetection, data)
	if err != nil {
		return Detection{}, err
	}

	r := bytes.NewReader(body)
	sourceID, err := decodeString(r)
	if err != nil {
		return Detection{}, decodeErr("source id", err)
	}
	if sourceID == "" {
		return Detection{}, decodeErr("source id", ErrEmptySourceID)
	}
	seq, err := decodeUint64(r)
	if err != nil {
		return Detection{}, decodeErr("frame sequence", err)
	}
	attempt, err := decodeUint32(r)
	if err != nil {
		return Detection{}, decodeErr("attempt", err)
	}
	processedAt, err := decodeUint64(r)
	if err != nil {
		return Detection{}, decodeErr("processed at", err)
	}
	count, err := decodeUint16(r)
	if err != nil {
		return Detection{}, decodeErr("box count", err)
	}

	boxes := make([]Box, 0, count)
	for i := 0; i < int(count); i++ {
		var b Box
		if b.Label, err = decodeString(r); err != nil {
			return Detection{}, decodeErr("box label", err)
		}
		if b.Confidence, err = decodeFloat64(r); err != nil {
			return Detection{}, decodeErr("box confidence", err)
		}
		if b.X, err = decodeUint32(r); err != nil {
			return Detection{}, decodeErr("box coordinates", err)
		}
		if b.Y, err = decodeUint32(r); err != nil {
			return Detection{}, decodeErr("box coordinates", err)
		}
		if b.Width, err = decodeUint32(r); err != nil {
			return Detection{}, decodeErr("box coordinates", err)
		}
		if b.Height, err = decodeUint32(r); err != nil {
			return Detection{}, decodeErr("box coordinates", err)
		}
		boxes = append(boxes, b)
	}
	if len(boxes) == 0 {
		boxes = nil
	}

	return Detection{
		SourceID:      sourceID,
		FrameSequence: seq,
		Attempt:       int(attempt),
		ProcessedAt:   time.Unix(0, int64(processedAt)).UTC(),
		Boxes:         boxes,
	}, nil
}

// seal wraps a record body with the wire header, compressing the body when
// it pays off.
func (c *Codec) seal(kind uint8, body []byte) ([]byte, error) {
	compression := c.compression
	if compression != CompressionNone && len(body) > compressThreshold {
		compressed, err := compress(body, compression)
		if err != nil {
			return nil, err
		}
		if len(compressed) < len(body) {
			body = compressed
		} else {
			compression = CompressionNone
		}
	} else {
		compression = CompressionNone
	}

	var w bytes.Buffer
	w.Grow(headerSize + len(body))
	encodeUint32(&w, Magic)
	encodeUint32(&w, 0) // CRC placeholder
	encodeByte(&w, Version)
	encodeByte(&w, kind)
	encodeByte(&w, uint8(compression))
	w.Write(body)

	out := w.Bytes()
	crc := crc32.Checksum(out[8:], crcTable)
	out[4] = byte(crc >> 24)
	out[5] = byte(crc >> 16)
	out[6] = byte(crc >> 8)
	out[7] = byte(crc)
	return out, nil
}

// open validates the wire header and returns the decompressed record body.
func (c *Codec) open(kind uint8, data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, decodeErr("header", ErrTruncated)
	}

	r := bytes.NewReader(data)
	magic, _ := decodeUint32(r)
	if magic != Magic {
		return nil, decodeErr("header", ErrInvalidMagic)
	}
	crc, _ := decodeUint32(r)
	if crc32.Checksum(data[8:], crcTable) != crc {
		return nil, decodeErr("header", ErrCRCMismatch)
	}
	version, _ := decodeByte(r)
	if version != Version {
		return nil, decodeErr("header", ErrUnsupportedVer)
	}
	gotKind, _ := decodeByte(r)
	if gotKind != kind {
		return nil, decodeErr("header", ErrWrongRecordKind)
	}
	compression, _ := decodeByte(r)

	body, err := decompress(data[headerSize:], CompressionType(compression))
	if err != nil {
		return nil, decodeErr("decompress", err)
	}
	return body, nil
}

func compress(data []byte, ct CompressionType) ([]byte, error) {
	switch ct {
	case CompressionS2:
		return s2.Encode(nil, data), nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	default:
		return data, nil
	}
}

func decompress(data []byte, ct CompressionType) ([]byte, error) {
	switch ct {
	case CompressionS2:
		return s2.Decode(nil, data)
	case CompressionZstd:
		return zstdDecoder.DecodeAll(data, nil)
	default:
		return data, nil
	}
}
