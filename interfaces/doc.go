// Package interfaces defines the contracts between the keybox provisioning
// components: the key slot model, the sentinel errors every layer wraps, and
// the collaborator interfaces the core calls but does not implement.
//
// # Key Slots
//
// A KeySlot names one per-algorithm partition of the secure credential
// store. The keybox pipeline provisions KeySlotRSA and KeySlotECDSA; the
// remaining slots (EdDSA, EPID, claimable, system-on-module variants) are
// addressable through the direct store API for callers that import
// credentials from other channels.
//
//	slot, err := interfaces.ParseKeySlot("rsa")
//	name := slot.String()        // "rsa"
//	attr := slot.AlgorithmAttr() // "rsa", matches <Key algorithm="rsa">
//
// # Collaborators
//
// RecordStore is the secure-storage backend: a flat namespace of named
// binary records with overwrite semantics. KeyboxSource supplies raw
// container bytes when a provisioning pass is started without them.
//
// # Errors
//
// The pipeline sentinels (ErrRetrieval, ErrDecode, ErrParse, ErrLookup,
// ErrMalformedCredential, ErrUnsupportedAlgorithm) classify how a pass
// failed. The storage sentinels (ErrRecordNotFound, ErrStorageWrite,
// ErrStorageInvariant, ErrStoreUnavailable, ErrInvalidRecordName) classify
// store-level failures. All errors surfaced by this module wrap one of them,
// so callers use errors.Is:
//
//	if _, err := prov.Run(ctx, raw); errors.Is(err, interfaces.ErrMalformedCredential) {
//	    // vendor shipped a broken keybox
//	}
package interfaces
