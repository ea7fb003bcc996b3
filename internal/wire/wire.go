package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindEntry byte = 1

	entryHeader = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("putguard: corrupt entry")
	magic4     = [...]byte{'P', 'G', 'R', 'D'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | kind(1=entry) | loadedAt(i64 be, unix nanos) | vlen(u32 be) | payload(vlen)
func EncodeEntry(loadedAt int64, payload []byte) []byte {
	b := make([]byte, entryHeader+len(payload))
	copy(b, magic4[:])
	b[4] = version
	b[5] = kindEntry
	binary.BigEndian.PutUint64(b[6:14], uint64(loadedAt))
	binary.BigEndian.PutUint32(b[14:18], uint32(len(payload)))
	copy(b[entryHeader:], payload)
	return b
}

// DecodeEntry returns the load time and a payload slice aliasing b.
func DecodeEntry(b []byte) (loadedAt int64, payload []byte, err error) {
	if len(b) < entryHeader || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return 0, nil, ErrCorrupt
	}
	loadedAt = int64(binary.BigEndian.Uint64(b[6:14]))
	vlen := int(binary.BigEndian.Uint32(b[14:18]))
	if vlen != len(b)-entryHeader { // truncated or trailing bytes
		return 0, nil, ErrCorrupt
	}
	return loadedAt, b[entryHeader:], nil
}
