// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package capture

import "errors"

// Payload layout errors.
var (
	ErrBadPayload = errors.New("malformed frame payload")
)

// The pixel payload carried inside a transport frame is opaque to the
// transport layer; capture and detection agree on this layout:
// Width(2) + Height(2) big-endian, then Width*Height grayscale bytes.
const payloadHeaderSize = 4

// EncodePayload packs a raw frame into a transport payload.
func EncodePayload(f RawFrame) []byte {
	out := make([]byte, payloadHeaderSize+len(f.Pixels))
	out[0] = byte(f.Width >> 8)
	out[1] = byte(f.Width)
	out[2] = byte(f.Height >> 8)
	out[3] = byte(f.Height)
	copy(out[payloadHeaderSize:], f.Pixels)
	return out
}

// DecodePayload unpacks a transport payload into pixel data. Dimension and
// length mismatches are permanent failures.
func DecodePayload(payload []byte) (RawFrame, error) {
	if len(payload) < payloadHeaderSize {
		return RawFrame{}, ErrBadPayload
	}
	w := int(payload[0])<<8 | int(payload[1])
	h := int(payload[2])<<8 | int(payload[3])
	if w < 1 || h < 1 || len(payload) != payloadHeaderSize+w*h {
		return RawFrame{}, ErrBadPayload
	}
	return RawFrame{
		Pixels: payload[payloadHeaderSize:],
		Width:  w,
		Height: h,
	}, nil
}
