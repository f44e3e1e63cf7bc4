// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"math"
)

func decodeByte(r io.Reader) (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func decodeUint16(r io.Reader) (uint16, error) {
	var num [2]byte
	_, err := io.ReadFull(r, num[:])
	if err != nil {
		return 0, err
	}

	return uint16(num[1]) | uint16(num[0])<<8, nil
}

func decodeUint32(r io.Reader) (uint32, error) {
	var num [4]byte
	_, err := io.ReadFull(r, num[:])
	if err != nil {
		return 0, err
	}

	return uint32(num[3]) | uint32(num[2])<<8 | uint32(num[1])<<16 | uint32(num[0])<<24, nil
}

func decodeUint64(r io.Reader) (uint64, error) {
	var num [8]byte
	_, err := io.ReadFull(r, num[:])
	if err != nil {
		return 0, err
	}

	var v uint64
	for _, b := range num {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

func decodeFloat64(r io.Reader) (float64, error) {
	bits, err := decodeUint64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// decodeBytes reads a uint32 length prefix followed by that many bytes.
// Lengths above maxFieldLength are rejected before allocation so a corrupt
// prefix cannot drive an arbitrarily large allocation.
func decodeBytes(r io.Reader) ([]byte, error) {
	fieldLength, err := decodeUint32(r)
	if err != nil {
		return nil, err
	}
	if fieldLength > maxFieldLength {
		return nil, ErrMaxLengthExceeded
	}
	field := make([]byte, fieldLength)
	_, err = io.ReadFull(r, field)
	if err != nil {
		return nil, err
	}

	return field, nil
}

func decodeString(r io.Reader) (string, error) {
	fieldLength, err := decodeUint16(r)
	if err != nil {
		return "", err
	}
	field := make([]byte, fieldLength)
	_, err = io.ReadFull(r, field)
	if err != nil {
		return "", err
	}

	return string(field), nil
}
