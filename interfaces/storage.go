package interfaces

import (
	"context"
	"errors"
)

// MaxRecordNameLen bounds the length of a record name accepted by any
// RecordStore implementation.
const MaxRecordNameLen = 64

// Storage errors shared by all RecordStore implementations and the slot
// store built on top of them.
var (
	// ErrRecordNotFound is returned when reading or sizing a record that
	// does not exist. Deleting an absent record is not an error.
	ErrRecordNotFound = errors.New("record not found")

	// ErrStoreUnavailable indicates the backend cannot be reached at all.
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrInvalidRecordName is returned for empty, oversized, or unsafe
	// record names.
	ErrInvalidRecordName = errors.New("invalid record name")

	// ErrStorageWrite indicates a failed write or delete of credential
	// material.
	ErrStorageWrite = errors.New("secure storage write failed")

	// ErrStorageInvariant indicates persisted state that violates the
	// store's own guarantees, such as a certificate chain that is not empty
	// after a reset or a stored chain length above the configured maximum.
	ErrStorageInvariant = errors.New("secure storage invariant violated")

	// ErrInvalidStoreURI is returned by the store factory for URIs it
	// cannot parse or whose scheme it does not support.
	ErrInvalidStoreURI = errors.New("invalid record store URI")
)

// RecordStore is the secure-storage collaborator: a flat namespace of named
// binary records. Implementations must overwrite existing records in place,
// return ErrRecordNotFound from ReadRecord for absent names, and treat
// deletion of an absent record as success.
//
// The slot-typed store in the securestore package derives all record names;
// implementations only need to persist them faithfully.
type RecordStore interface {
	// WriteRecord creates or replaces the named record.
	WriteRecord(ctx context.Context, name string, data []byte) error

	// ReadRecord returns the record contents, or ErrRecordNotFound.
	ReadRecord(ctx context.Context, name string) ([]byte, error)

	// DeleteRecord removes the named record. Absent records are ignored.
	DeleteRecord(ctx context.Context, name string) error
}
