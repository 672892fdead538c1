// Package provisioner sequences provisioning passes.
//
// A pass moves attestation credentials from a keybox container into the
// secure store in a fixed order: obtain the raw container (from the caller
// or a KeyboxSource), decode it, parse the document, then provision the RSA
// slot followed by the EC slot. For each slot the private key is written
// first and the certificates follow in document order, extraction and
// storage interleaved.
//
// The first failure aborts the pass, and nothing written so far is rolled
// back. A device that failed mid-pass holds the credentials of every fully
// or partially provisioned slot and reports the failure through one of the
// interfaces sentinel errors, wrapped in a SlotError when a slot was being
// filled.
//
// Passes are not concurrent. Run guards itself and fails fast with
// ErrPassInProgress rather than queueing.
package provisioner
