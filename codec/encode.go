// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"math"
)

// maxFieldLength bounds any single length-prefixed field on the wire.
const maxFieldLength = 64 << 20 // 64 MiB

// maxStringLength bounds length-prefixed strings; encoding longer ones
// would wrap the uint16 prefix and break the encode/decode bijection.
const maxStringLength = math.MaxUint16

func encodeByte(w *bytes.Buffer, b byte) {
	w.WriteByte(b)
}

func encodeUint16(w *bytes.Buffer, v uint16) {
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v))
}

func encodeUint32(w *bytes.Buffer, v uint32) {
	w.WriteByte(byte(v >> 24))
	w.WriteByte(byte(v >> 16))
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v))
}

func encodeUint64(w *bytes.Buffer, v uint64) {
	for shift := 56; shift >= 0; shift -= 8 {
		w.WriteByte(byte(v >> shift))
	}
}

func encodeFloat64(w *bytes.Buffer, v float64) {
	encodeUint64(w, math.Float64bits(v))
}

func encodeBytes(w *bytes.Buffer, field []byte) {
	encodeUint32(w, uint32(len(field)))
	w.Write(field)
}

func encodeString(w *bytes.Buffer, field string) {
	encodeUint16(w, uint16(len(field)))
	w.WriteString(field)
}
