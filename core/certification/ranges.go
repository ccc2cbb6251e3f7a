package certification

import (
	"bytes"

	"go.dedis.ch/certkv/serde/cbor"
	"golang.org/x/xerrors"
)

// Range is an inclusive range of subjects.
type Range struct {
	_    struct{} `cbor:",toarray"`
	Low  []byte
	High []byte
}

// NewRange returns the range [low, high].
func NewRange(low, high []byte) Range {
	return Range{Low: low, High: high}
}

// Contains returns true when the subject is inside the range.
func (r Range) Contains(subject []byte) bool {
	return bytes.Compare(r.Low, subject) <= 0 && bytes.Compare(subject, r.High) <= 0
}

// EncodeRanges returns the CBOR encoding of the list of ranges, as it is
// stored under the canister_ranges label of a subnet.
func EncodeRanges(ranges []Range) ([]byte, error) {
	if ranges == nil {
		ranges = []Range{}
	}

	data, err := cbor.Marshal(ranges)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal ranges: %v", err)
	}

	return data, nil
}

// DecodeRanges returns the ranges of the CBOR data.
func DecodeRanges(data []byte) ([]Range, error) {
	var ranges []Range

	err := cbor.Unmarshal(cbor.StripSelfDescribe(data), &ranges)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal ranges: %v", err)
	}

	for _, r := range ranges {
		if r.Low == nil || r.High == nil {
			return nil, xerrors.New("incomplete range")
		}
	}

	return ranges, nil
}

// InRanges returns true when one of the ranges contains the subject.
func InRanges(ranges []Range, subject []byte) bool {
	for _, r := range ranges {
		if r.Contains(subject) {
			return true
		}
	}

	return false
}
