// Package securestore persists provisioned attestation credentials.
//
// The package has two layers. Store is the slot-addressed credential store:
// it derives record names, encodes chain lengths, and enforces the
// certificate chain policy. Underneath it, implementations of
// interfaces.RecordStore persist named binary records.
//
// # Record layout
//
// Each key slot owns three kinds of records:
//
//   - AttestKey.<slot> holds the private key material
//   - AttestCert.<slot>.<i> holds chain entry i
//   - AttestKey.<slot>.length holds the chain length as a little-endian
//     uint32
//
// The device-wide attestation batch ID lives under AttestUuid.
//
// # Chain policy
//
// A slot's certificate chain is append-only up to the configured capacity
// (DefaultMaxCertChainLength unless overridden). Appending to a full chain
// wipes the whole chain first and restarts it with the new certificate;
// entries are never trimmed individually. After the wipe the stored length
// is re-read and must be exactly zero, so a backend that failed the reset
// cannot be appended past capacity.
//
// # Backends
//
// Four RecordStore implementations are provided:
//
//   - MemoryStore, an in-process map for tests and dry runs
//   - FileStore, one 0600 file per record under a 0700 directory
//   - VaultStore, a HashiCorp Vault KV v2 mount
//   - S3Store, private objects in an S3-compatible bucket
//
// StoreFromURI selects one from a location URI such as
// file:///var/lib/keybox or vault://vault.example.com:8200/secret/keybox.
// SealedStore can wrap any of them to encrypt records with
// XChaCha20-Poly1305 under a key derived from a device secret.
package securestore
