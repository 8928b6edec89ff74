// Package shortvec implements the compact-u16 length prefix used by the
// Solana wire format: 7 bits per byte, least significant group first, with
// the high bit set on every byte but the last.
package shortvec

import (
	"errors"
	"fmt"
	"io"
	"math"
)

const maxEncodedLen = 3

var (
	ErrTooLong      = errors.New("shortvec: encoding exceeds 3 bytes")
	ErrOverflow     = errors.New("shortvec: value exceeds uint16")
	ErrNonCanonical = errors.New("shortvec: non canonical encoding")
)

// EncodeLen writes the encoding of length to w and returns the number of bytes
// written.
func EncodeLen(w io.Writer, length int) (int, error) {
	if length < 0 || length > math.MaxUint16 {
		return 0, fmt.Errorf("len %d outside [0, %d]", length, math.MaxUint16)
	}

	var buf [maxEncodedLen]byte
	n := 0
	for {
		buf[n] = byte(length & 0x7f)
		length >>= 7
		if length == 0 {
			n++
			break
		}
		buf[n] |= 0x80
		n++
	}
	return w.Write(buf[:n])
}

// DecodeLen reads an encoded length from r. Encodings longer than needed are
// rejected.
func DecodeLen(r io.Reader) (int, error) {
	var b [1]byte
	var val int

	for i := 0; ; i++ {
		if i == maxEncodedLen {
			return 0, ErrTooLong
		}
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}

		group := int(b[0] & 0x7f)
		if i > 0 && b[0] == 0 {
			return 0, ErrNonCanonical
		}
		val |= group << (7 * i)

		if b[0]&0x80 == 0 {
			break
		}
	}

	if val > math.MaxUint16 {
		return 0, ErrOverflow
	}
	return val, nil
}
