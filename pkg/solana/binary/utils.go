package binary

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
)

const DiscriminatorSize = 8

var ErrShortBuffer = errors.New("buffer too short")

func PutDiscriminator(dst []byte, src []byte, offset *int) {
	copy(dst, src[:DiscriminatorSize])
	*offset += DiscriminatorSize
}

func PutKey32(dst []byte, src []byte, offset *int) {
	copy(dst, src)
	*offset += ed25519.PublicKeySize
}

func PutFixed(dst []byte, src []byte, size int, offset *int) {
	copy(dst[:size], src)
	*offset += size
}

func PutUint64(dst []byte, v uint64, offset *int) {
	binary.LittleEndian.PutUint64(dst, v)
	*offset += 8
}

func PutInt64(dst []byte, v int64, offset *int) {
	binary.LittleEndian.PutUint64(dst, uint64(v))
	*offset += 8
}

func PutUint32(dst []byte, v uint32, offset *int) {
	binary.LittleEndian.PutUint32(dst, v)
	*offset += 4
}

func PutUint16(dst []byte, v uint16, offset *int) {
	binary.LittleEndian.PutUint16(dst, v)
	*offset += 2
}

func PutUint8(dst []byte, v uint8, offset *int) {
	dst[0] = v
	*offset += 1
}

func PutBool(dst []byte, v bool, offset *int) {
	if v {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
	*offset += 1
}

// PutVec writes a borsh Vec<u8>: a little endian u32 length followed by the bytes.
func PutVec(dst []byte, v []byte, offset *int) {
	binary.LittleEndian.PutUint32(dst, uint32(len(v)))
	copy(dst[4:], v)
	*offset += 4 + len(v)
}

func GetDiscriminator(src []byte, dst *[]byte, offset *int) {
	*dst = make([]byte, DiscriminatorSize)
	copy(*dst, src)
	*offset += DiscriminatorSize
}

func GetKey32(src []byte, dst *ed25519.PublicKey, offset *int) {
	*dst = make([]byte, ed25519.PublicKeySize)
	copy(*dst, src)
	*offset += ed25519.PublicKeySize
}

func GetFixed(src []byte, dst []byte, offset *int) {
	copy(dst, src[:len(dst)])
	*offset += len(dst)
}

func GetUint64(src []byte, dst *uint64, offset *int) {
	*dst = binary.LittleEndian.Uint64(src)
	*offset += 8
}

func GetInt64(src []byte, dst *int64, offset *int) {
	*dst = int64(binary.LittleEndian.Uint64(src))
	*offset += 8
}

func GetUint32(src []byte, dst *uint32, offset *int) {
	*dst = binary.LittleEndian.Uint32(src)
	*offset += 4
}

func GetUint16(src []byte, dst *uint16, offset *int) {
	*dst = binary.LittleEndian.Uint16(src)
	*offset += 2
}

func GetUint8(src []byte, dst *uint8, offset *int) {
	*dst = src[0]
	*offset += 1
}

func GetBool(src []byte, dst *bool, offset *int) {
	*dst = src[0] != 0
	*offset += 1
}

// GetVec reads a borsh Vec<u8>.
func GetVec(src []byte, dst *[]byte, offset *int) error {
	if len(src) < 4 {
		return ErrShortBuffer
	}
	size := int(binary.LittleEndian.Uint32(src))
	if len(src) < 4+size {
		return ErrShortBuffer
	}
	*dst = make([]byte, size)
	copy(*dst, src[4:4+size])
	*offset += 4 + size
	return nil
}

// VecSize is the encoded size of a borsh Vec<u8> holding n bytes.
func VecSize(n int) int {
	return 4 + n
}
