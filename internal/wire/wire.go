// Package wire frames soft-expiry records. The logical expiry travels with the
// payload so readers can tell fresh from stale while the backend still holds
// the entry for the grace window.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version  byte = 1
	kindSoft byte = 1

	hdrSoft = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("cachekit: corrupt entry")
	magic4     = [...]byte{'C', 'K', 'I', 'T'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Soft: magic(4) | ver(1) | kind(1=soft) | expiresAt(i64 be, unix millis) | vlen(u32 be) | payload(vlen)
func EncodeSoft(expiresAt time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrSoft + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSoft)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(expiresAt.UnixMilli()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeSoft rejects foreign bytes, short frames and trailing data.
// The payload aliases b.
func DecodeSoft(b []byte) (expiresAt time.Time, payload []byte, err error) {
	if len(b) < hdrSoft || !hasMagic(b) || b[4] != version || b[5] != kindSoft {
		return time.Time{}, nil, ErrCorrupt
	}

	off := 6

	ms := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return time.Time{}, nil, ErrCorrupt
	}

	return time.UnixMilli(ms), b[off : off+vlen], nil
}
