// Package interfaces defines the shared types, sentinel errors, and
// collaborator contracts for the keybox provisioning system. It provides the
// contract between components without implementation details.
package interfaces

import (
	"context"
	"errors"
	"fmt"
)

// KeySlot identifies a per-algorithm partition of the secure credential
// store. Every attestation key and its certificate chain live under exactly
// one slot.
type KeySlot int

const (
	// KeySlotInvalid is the zero value and never addresses storage.
	KeySlotInvalid KeySlot = iota

	// KeySlotRSA holds the RSA attestation key and chain.
	KeySlotRSA

	// KeySlotECDSA holds the EC attestation key and chain.
	KeySlotECDSA

	// KeySlotEdDSA holds the Ed25519 attestation key and chain.
	KeySlotEdDSA

	// KeySlotEPID holds the EPID provisioning blob.
	KeySlotEPID

	// KeySlotClaimable0 is the first claimable slot, provisioned at
	// manufacture and claimed by the first owner.
	KeySlotClaimable0

	// System-on-module variants, provisioned by the module vendor rather
	// than the device maker.
	KeySlotSomRSA
	KeySlotSomECDSA
	KeySlotSomEdDSA
	KeySlotSomEPID
)

// AllKeySlots lists every valid slot in display order.
var AllKeySlots = []KeySlot{
	KeySlotRSA,
	KeySlotECDSA,
	KeySlotEdDSA,
	KeySlotEPID,
	KeySlotClaimable0,
	KeySlotSomRSA,
	KeySlotSomECDSA,
	KeySlotSomEdDSA,
	KeySlotSomEPID,
}

var slotNames = map[KeySlot]string{
	KeySlotRSA:        "rsa",
	KeySlotECDSA:      "ec",
	KeySlotEdDSA:      "ed",
	KeySlotEPID:       "epid",
	KeySlotClaimable0: "c0",
	KeySlotSomRSA:     "s_rsa",
	KeySlotSomECDSA:   "s_ec",
	KeySlotSomEdDSA:   "s_ed",
	KeySlotSomEPID:    "s_epid",
}

// ParseKeySlot converts a storage slot name (as produced by String) back to
// a KeySlot. Unknown names fail with ErrUnsupportedAlgorithm.
func ParseKeySlot(name string) (KeySlot, error) {
	for slot, n := range slotNames {
		if n == name {
			return slot, nil
		}
	}
	return KeySlotInvalid, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
}

// String returns the stable slot name used to derive storage record names.
func (s KeySlot) String() string {
	if n, ok := slotNames[s]; ok {
		return n
	}
	return "invalid"
}

// Valid reports whether the slot addresses a real store partition.
func (s KeySlot) Valid() bool {
	_, ok := slotNames[s]
	return ok
}

// AlgorithmAttr returns the value of the algorithm attribute that marks this
// slot's Key element in a keybox document. Slots that never appear in
// keyboxes return the empty string.
func (s KeySlot) AlgorithmAttr() string {
	switch s {
	case KeySlotRSA, KeySlotSomRSA:
		return "rsa"
	case KeySlotECDSA, KeySlotSomECDSA:
		return "ecdsa"
	default:
		return ""
	}
}

// Pipeline errors. Each provisioning failure wraps exactly one of these so
// callers can classify the terminal result of a pass with errors.Is.
var (
	// ErrRetrieval indicates the raw keybox bytes could not be obtained.
	ErrRetrieval = errors.New("keybox retrieval failed")

	// ErrDecode indicates a bad container header or a decompression failure.
	ErrDecode = errors.New("keybox container decode failed")

	// ErrParse indicates malformed XML or a document without a root element.
	ErrParse = errors.New("keybox parse failed")

	// ErrLookup indicates a required element is absent from the document.
	ErrLookup = errors.New("keybox element not found")

	// ErrMalformedCredential indicates missing PEM markers or base64 the
	// codec rejects.
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrUnsupportedAlgorithm indicates a slot outside the supported set.
	ErrUnsupportedAlgorithm = errors.New("unsupported key algorithm")
)

// ErrSizeBound is the ErrDecode specialization reported when a declared
// decompressed length exceeds the configured maximum. It is checked before
// any output allocation happens.
var ErrSizeBound = fmt.Errorf("%w: declared size exceeds configured maximum", ErrDecode)

// KeyboxSource supplies raw keybox container bytes when the caller of a
// provisioning pass does not provide them directly.
type KeyboxSource interface {
	// Retrieve returns the raw container bytes. An empty result is treated
	// as a retrieval failure by callers.
	Retrieve(ctx context.Context) ([]byte, error)
}
