package verify

import "fmt"

// Kind is the kind of a verification failure.
type Kind int

const (
	// KindDecode is the failure to decode a certificate or a witness.
	KindDecode Kind = iota
	// KindSignatureInvalid is a certificate that the root key doesn't
	// authenticate.
	KindSignatureInvalid
	// KindStaleOrFuture is a certificate whose time is too far from the
	// current time, or missing.
	KindStaleOrFuture
	// KindCertifiedDataMissing is a certificate without the certified data
	// of the subject.
	KindCertifiedDataMissing
	// KindWitnessRootMismatch is a witness whose digest is not the certified
	// data.
	KindWitnessRootMismatch
	// KindValueNotWitnessed is a witness that doesn't reveal the path.
	KindValueNotWitnessed
	// KindValueMismatch is a witness that reveals a different value.
	KindValueMismatch
)

var kindNames = map[Kind]string{
	KindDecode:               "DecodeError",
	KindSignatureInvalid:     "SignatureInvalid",
	KindStaleOrFuture:        "StaleOrFutureCertificate",
	KindCertifiedDataMissing: "CertifiedDataMissing",
	KindWitnessRootMismatch:  "WitnessRootMismatch",
	KindValueNotWitnessed:    "ValueNotWitnessed",
	KindValueMismatch:        "ValueMismatch",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	name, found := kindNames[k]
	if !found {
		return fmt.Sprintf("Kind(%d)", int(k))
	}

	return name
}

// The sentinels are matched with errors.Is on the kind only.
var (
	ErrDecode               = &Error{Kind: KindDecode}
	ErrSignatureInvalid     = &Error{Kind: KindSignatureInvalid}
	ErrStaleOrFuture        = &Error{Kind: KindStaleOrFuture}
	ErrCertifiedDataMissing = &Error{Kind: KindCertifiedDataMissing}
	ErrWitnessRootMismatch  = &Error{Kind: KindWitnessRootMismatch}
	ErrValueNotWitnessed    = &Error{Kind: KindValueNotWitnessed}
	ErrValueMismatch        = &Error{Kind: KindValueMismatch}
)

// Error is the error of a failed verification.
type Error struct {
	Kind Kind
	Err  error
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}

	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

// Unwrap returns the cause of the failure.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is returns true when the target is an error of the same kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}

	return other.Kind == e.Kind
}
