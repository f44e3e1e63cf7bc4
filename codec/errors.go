// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	ErrInvalidMagic      = errors.New("invalid magic number")
	ErrUnsupportedVer    = errors.New("unsupported wire version")
	ErrCRCMismatch       = errors.New("CRC mismatch")
	ErrTruncated         = errors.New("truncated payload")
	ErrWrongRecordKind   = errors.New("wrong record kind")
	ErrEmptySourceID     = errors.New("source id cannot be empty")
	ErrMaxLengthExceeded = errors.New("max length value exceeded")
)

// DecodeError wraps any failure to decode a wire payload. Decode failures
// are permanent: the payload will never become decodable on retry, so
// consumers dead-letter instead of requeueing.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(reason string, err error) error {
	return &DecodeError{Reason: reason, Err: err}
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
