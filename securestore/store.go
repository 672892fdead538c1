package securestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/attestify/keybox-provisioner/interfaces"
	"github.com/google/uuid"
)

// Record name layout. One key record, one numbered record per chain entry,
// and one length record per slot, plus the device-wide attestation ID.
const (
	keyRecordPrefix  = "AttestKey"
	certRecordPrefix = "AttestCert"
	lengthSuffix     = "length"
	attestIDRecord   = "AttestUuid"
)

// DefaultMaxCertChainLength is the per-slot certificate chain capacity.
const DefaultMaxCertChainLength = 3

// chainLenRecordLen is the encoded size of a chain length record, a
// little-endian uint32.
const chainLenRecordLen = 4

// Store is the slot-addressed secure credential store. It derives all
// record names, enforces the chain capacity, and implements the
// reset-on-overflow policy: a full chain is wiped entirely before the next
// certificate is accepted, never trimmed entry by entry.
type Store struct {
	records     interfaces.RecordStore
	maxChainLen uint32
	log         *slog.Logger
}

// New creates a Store over the given record backend. A maxChainLen of 0
// selects DefaultMaxCertChainLength.
func New(records interfaces.RecordStore, maxChainLen uint32, log *slog.Logger) *Store {
	if maxChainLen == 0 {
		maxChainLen = DefaultMaxCertChainLength
	}
	return &Store{
		records:     records,
		maxChainLen: maxChainLen,
		log:         log,
	}
}

// MaxCertChainLength returns the configured per-slot chain capacity.
func (s *Store) MaxCertChainLength() uint32 {
	return s.maxChainLen
}

// WriteKey stores private key material for slot, replacing any previous
// key. The old record is deleted first so a failed write cannot leave stale
// material behind.
func (s *Store) WriteKey(ctx context.Context, slot interfaces.KeySlot, key []byte) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}

	name := keyRecordName(slot)
	if err := s.records.DeleteRecord(ctx, name); err != nil {
		return fmt.Errorf("%w: clearing %s: %v", interfaces.ErrStorageWrite, name, err)
	}
	if err := s.records.WriteRecord(ctx, name, key); err != nil {
		return fmt.Errorf("%w: %s: %v", interfaces.ErrStorageWrite, name, err)
	}

	s.log.Debug("Stored attestation key",
		slog.String("slot", slot.String()),
		slog.Int("size", len(key)))
	return nil
}

// ReadKey returns slot's stored private key material, or ErrRecordNotFound.
func (s *Store) ReadKey(ctx context.Context, slot interfaces.KeySlot) ([]byte, error) {
	if err := s.checkSlot(slot); err != nil {
		return nil, err
	}
	return s.records.ReadRecord(ctx, keyRecordName(slot))
}

// KeyExists reports whether slot holds non-empty key material.
func (s *Store) KeyExists(ctx context.Context, slot interfaces.KeySlot) (bool, error) {
	if err := s.checkSlot(slot); err != nil {
		return false, err
	}

	data, err := s.records.ReadRecord(ctx, keyRecordName(slot))
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(data) > 0, nil
}

// WriteCert stores cert as entry index of slot's chain and persists index+1
// as the new chain length. Indexes at or above the configured capacity are
// rejected so the persisted length can never exceed it.
func (s *Store) WriteCert(ctx context.Context, slot interfaces.KeySlot, cert []byte, index uint32) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	if index >= s.maxChainLen {
		return fmt.Errorf("%w: certificate index %d exceeds chain capacity %d",
			interfaces.ErrStorageInvariant, index, s.maxChainLen)
	}

	name := certRecordName(slot, index)
	if err := s.records.WriteRecord(ctx, name, cert); err != nil {
		return fmt.Errorf("%w: %s: %v", interfaces.ErrStorageWrite, name, err)
	}
	if err := s.writeChainLength(ctx, slot, index+1); err != nil {
		return err
	}

	s.log.Debug("Stored certificate",
		slog.String("slot", slot.String()),
		slog.Int("index", int(index)),
		slog.Int("size", len(cert)))
	return nil
}

// ReadCertChainLength returns the persisted chain length for slot. Absent
// records fail with ErrRecordNotFound; malformed records and stored values
// above the configured capacity fail with ErrStorageInvariant. AppendCert
// deliberately conflates all of those with an empty chain; callers that
// need the distinction use this directly.
func (s *Store) ReadCertChainLength(ctx context.Context, slot interfaces.KeySlot) (uint32, error) {
	if err := s.checkSlot(slot); err != nil {
		return 0, err
	}

	data, err := s.records.ReadRecord(ctx, chainLenRecordName(slot))
	if err != nil {
		return 0, err
	}
	if len(data) != chainLenRecordLen {
		return 0, fmt.Errorf("%w: chain length record for %s holds %d bytes",
			interfaces.ErrStorageInvariant, slot, len(data))
	}

	length := binary.LittleEndian.Uint32(data)
	if length > s.maxChainLen {
		return 0, fmt.Errorf("%w: stored chain length %d exceeds capacity %d",
			interfaces.ErrStorageInvariant, length, s.maxChainLen)
	}
	return length, nil
}

// ReadCertChain returns slot's stored certificate chain in order. A slot
// that never held certificates yields an empty chain.
func (s *Store) ReadCertChain(ctx context.Context, slot interfaces.KeySlot) ([][]byte, error) {
	length, err := s.ReadCertChainLength(ctx, slot)
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	chain := make([][]byte, 0, length)
	for i := uint32(0); i < length; i++ {
		cert, err := s.records.ReadRecord(ctx, certRecordName(slot, i))
		if err != nil {
			return nil, fmt.Errorf("%w: chain entry %d for %s unreadable: %v",
				interfaces.ErrStorageInvariant, i, slot, err)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

// DeleteCertChain removes every certificate record for slot and persists a
// zero length. The full capacity range is scanned rather than the recorded
// length, so a corrupt length record cannot strand entries.
func (s *Store) DeleteCertChain(ctx context.Context, slot interfaces.KeySlot) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}

	for i := uint32(0); i < s.maxChainLen; i++ {
		name := certRecordName(slot, i)
		if err := s.records.DeleteRecord(ctx, name); err != nil {
			return fmt.Errorf("%w: deleting %s: %v", interfaces.ErrStorageWrite, name, err)
		}
	}
	if err := s.writeChainLength(ctx, slot, 0); err != nil {
		return err
	}

	s.log.Debug("Reset certificate chain", slog.String("slot", slot.String()))
	return nil
}

// AppendCert writes cert as the next entry of slot's chain, wiping the
// whole chain first when it is full.
//
// The pre-write length read treats any failure as an empty chain, carried
// from the legacy provisioning flow: "chain absent" is not distinguished
// from "chain unreadable", so a corrupt length record restarts the chain
// instead of failing the pass. After a reset the length is re-read and must
// be exactly zero, defending against a partial delete.
func (s *Store) AppendCert(ctx context.Context, slot interfaces.KeySlot, cert []byte) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}

	length, err := s.ReadCertChainLength(ctx, slot)
	if err != nil {
		s.log.Debug("Chain length unreadable, treating chain as empty",
			slog.String("slot", slot.String()),
			"err", err)
		length = 0
	}

	if length >= s.maxChainLen {
		s.log.Info("Certificate chain full, resetting",
			slog.String("slot", slot.String()),
			slog.Int("length", int(length)),
			slog.Int("capacity", int(s.maxChainLen)))

		if err := s.DeleteCertChain(ctx, slot); err != nil {
			return err
		}

		length, err = s.ReadCertChainLength(ctx, slot)
		if err != nil {
			return fmt.Errorf("%w: chain length unreadable after reset: %v",
				interfaces.ErrStorageInvariant, err)
		}
		if length != 0 {
			return fmt.Errorf("%w: chain for %s reports length %d after reset",
				interfaces.ErrStorageInvariant, slot, length)
		}
	}

	return s.WriteCert(ctx, slot, cert, length)
}

// WriteKeyAndChain imports key material together with its complete
// certificate chain, replacing whatever the slot held. Chains longer than
// the configured capacity are rejected before anything is written.
func (s *Store) WriteKeyAndChain(ctx context.Context, slot interfaces.KeySlot, key []byte, chain [][]byte) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	if uint32(len(chain)) > s.maxChainLen {
		return fmt.Errorf("%w: chain of %d certificates exceeds capacity %d",
			interfaces.ErrStorageInvariant, len(chain), s.maxChainLen)
	}

	if err := s.WriteKey(ctx, slot, key); err != nil {
		return err
	}
	if err := s.DeleteCertChain(ctx, slot); err != nil {
		return err
	}
	for i, cert := range chain {
		if err := s.WriteCert(ctx, slot, cert, uint32(i)); err != nil {
			return err
		}
	}
	return nil
}

// ReadAttestationID returns the provisioned attestation batch ID, or
// uuid.Nil without error when none has been written yet.
func (s *Store) ReadAttestationID(ctx context.Context) (uuid.UUID, error) {
	data, err := s.records.ReadRecord(ctx, attestIDRecord)
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.ParseBytes(data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: attestation ID record: %v", interfaces.ErrStorageInvariant, err)
	}
	return id, nil
}

// WriteAttestationID persists the attestation batch ID.
func (s *Store) WriteAttestationID(ctx context.Context, id uuid.UUID) error {
	if err := s.records.WriteRecord(ctx, attestIDRecord, []byte(id.String())); err != nil {
		return fmt.Errorf("%w: attestation ID: %v", interfaces.ErrStorageWrite, err)
	}
	return nil
}

func (s *Store) checkSlot(slot interfaces.KeySlot) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: slot %d", interfaces.ErrUnsupportedAlgorithm, int(slot))
	}
	return nil
}

func (s *Store) writeChainLength(ctx context.Context, slot interfaces.KeySlot, length uint32) error {
	buf := make([]byte, chainLenRecordLen)
	binary.LittleEndian.PutUint32(buf, length)

	if err := s.records.WriteRecord(ctx, chainLenRecordName(slot), buf); err != nil {
		return fmt.Errorf("%w: chain length for %s: %v", interfaces.ErrStorageWrite, slot, err)
	}
	return nil
}

func keyRecordName(slot interfaces.KeySlot) string {
	return fmt.Sprintf("%s.%s", keyRecordPrefix, slot)
}

func certRecordName(slot interfaces.KeySlot, index uint32) string {
	return fmt.Sprintf("%s.%s.%d", certRecordPrefix, slot, index)
}

func chainLenRecordName(slot interfaces.KeySlot) string {
	return fmt.Sprintf("%s.%s.%s", keyRecordPrefix, slot, lengthSuffix)
}
