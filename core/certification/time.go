package certification

import (
	"encoding/binary"
	"time"

	"golang.org/x/xerrors"
)

// EncodeTime returns the unsigned LEB128 encoding of the number of
// nanoseconds since the Unix epoch.
func EncodeTime(t time.Time) []byte {
	return binary.AppendUvarint(nil, uint64(t.UnixNano()))
}

// DecodeTime returns the time of the LEB128 encoding.
func DecodeTime(data []byte) (time.Time, error) {
	nanos, n := binary.Uvarint(data)
	if n <= 0 {
		return time.Time{}, xerrors.Errorf("invalid time encoding %x", data)
	}

	if n != len(data) {
		return time.Time{}, xerrors.Errorf("%d trailing bytes after time", len(data)-n)
	}

	return time.Unix(0, int64(nanos)), nil
}
