package shortvec

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	for i := 0; i <= math.MaxUint16; i += 7 {
		var buf bytes.Buffer
		_, err := EncodeLen(&buf, i)
		require.NoError(t, err)

		actual, err := DecodeLen(&buf)
		require.NoError(t, err)
		require.Equal(t, i, actual)
		require.Zero(t, buf.Len())
	}
}

func TestKnownEncodings(t *testing.T) {
	for _, tc := range []struct {
		val     int
		encoded []byte
	}{
		{0x0, []byte{0x0}},
		{0x7f, []byte{0x7f}},
		{0x80, []byte{0x80, 0x01}},
		{0xff, []byte{0xff, 0x01}},
		{0x100, []byte{0x80, 0x02}},
		{0x7fff, []byte{0xff, 0xff, 0x01}},
		{0xffff, []byte{0xff, 0xff, 0x03}},
	} {
		var buf bytes.Buffer
		n, err := EncodeLen(&buf, tc.val)
		require.NoError(t, err)
		assert.Equal(t, len(tc.encoded), n)
		assert.Equal(t, tc.encoded, buf.Bytes())

		decoded, err := DecodeLen(bytes.NewReader(tc.encoded))
		require.NoError(t, err)
		assert.Equal(t, tc.val, decoded)
	}
}

func TestInvalid(t *testing.T) {
	_, err := EncodeLen(&bytes.Buffer{}, math.MaxUint16+1)
	assert.Error(t, err)
	_, err = EncodeLen(&bytes.Buffer{}, -1)
	assert.Error(t, err)

	for _, tc := range []struct {
		encoded  []byte
		expected error
	}{
		{[]byte{0x80, 0x00}, ErrNonCanonical},
		{[]byte{0xff, 0xff, 0x04}, ErrOverflow},
		{[]byte{0x80, 0x80, 0x80, 0x01}, ErrTooLong},
		{[]byte{0x80}, io.ErrUnexpectedEOF},
		{nil, io.EOF},
	} {
		_, err := DecodeLen(bytes.NewReader(tc.encoded))
		assert.Equal(t, tc.expected, err, "%x", tc.encoded)
	}
}
