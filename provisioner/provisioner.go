package provisioner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/atomic"

	"github.com/attestify/keybox-provisioner/interfaces"
	"github.com/attestify/keybox-provisioner/keybox"
	"github.com/attestify/keybox-provisioner/securestore"
)

// provisionedSlots are the slots a pass fills, in order. RSA first, then EC,
// matching the credential layout of factory keyboxes.
var provisionedSlots = []interfaces.KeySlot{
	interfaces.KeySlotRSA,
	interfaces.KeySlotECDSA,
}

// ErrPassInProgress is returned by Run while another pass holds the store.
var ErrPassInProgress = errors.New("provisioning pass already in progress")

// Provisioner executes provisioning passes: it obtains a keybox container,
// decodes and parses it, and moves the credentials of every provisioned
// slot into the secure store.
type Provisioner struct {
	store      *securestore.Store
	source     interfaces.KeyboxSource
	decodeOpts keybox.DecodeOptions
	log        *slog.Logger

	running atomic.Bool
}

// New creates a Provisioner writing to store. source supplies container
// bytes when Run is called without them and may be nil if callers always
// pass bytes directly.
func New(store *securestore.Store, source interfaces.KeyboxSource, decodeOpts keybox.DecodeOptions, log *slog.Logger) *Provisioner {
	return &Provisioner{
		store:      store,
		source:     source,
		decodeOpts: decodeOpts,
		log:        log,
	}
}

// SlotResult describes the outcome of provisioning one slot.
type SlotResult struct {
	Slot         interfaces.KeySlot
	KeyReplaced  bool
	CertsWritten int
}

// Report summarizes a completed provisioning pass.
type Report struct {
	ContainerBytes int
	DecodedBytes   int
	Slots          []SlotResult
}

// SlotError wraps a provisioning failure with the slot it occurred in. It
// unwraps to the underlying error, so errors.Is still classifies the
// failure against the interfaces sentinels.
type SlotError struct {
	Slot interfaces.KeySlot
	Err  error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("slot %s: %v", e.Slot, e.Err)
}

func (e *SlotError) Unwrap() error {
	return e.Err
}

// Run executes one provisioning pass. When raw is empty the container is
// obtained from the configured source. Slots are provisioned in order and
// the first failure aborts the pass; credentials already written by earlier
// slots are kept.
func (p *Provisioner) Run(ctx context.Context, raw []byte) (*Report, error) {
	if p.running.Swap(true) {
		return nil, ErrPassInProgress
	}
	defer p.running.Store(false)

	p.log.Debug("Provisioning pass started")

	if len(raw) == 0 {
		var err error
		raw, err = p.retrieve(ctx)
		if err != nil {
			return nil, err
		}
	}
	p.log.Debug("Obtained keybox container", slog.Int("size", len(raw)))

	xmlBytes, err := keybox.Decode(raw, p.decodeOpts)
	if err != nil {
		return nil, err
	}
	p.log.Debug("Decoded keybox container", slog.Int("size", len(xmlBytes)))

	kb, err := keybox.Parse(xmlBytes)
	if err != nil {
		return nil, err
	}
	p.log.Debug("Parsed keybox document")

	report := &Report{
		ContainerBytes: len(raw),
		DecodedBytes:   len(xmlBytes),
	}
	for _, slot := range provisionedSlots {
		result, err := p.provisionSlot(ctx, kb, slot)
		if err != nil {
			return nil, &SlotError{Slot: slot, Err: err}
		}
		report.Slots = append(report.Slots, result)

		p.log.Info("Provisioned slot",
			slog.String("slot", slot.String()),
			slog.Int("certificates", result.CertsWritten),
			slog.Bool("replacedKey", result.KeyReplaced))
	}

	p.log.Info("Provisioning pass complete", slog.Int("slots", len(report.Slots)))
	return report, nil
}

func (p *Provisioner) retrieve(ctx context.Context) ([]byte, error) {
	if p.source == nil {
		return nil, fmt.Errorf("%w: no container bytes and no source configured", interfaces.ErrRetrieval)
	}

	raw, err := p.source.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrRetrieval, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: source returned no data", interfaces.ErrRetrieval)
	}
	return raw, nil
}

// provisionSlot moves one slot's credentials from the document to the
// store: the private key first, then every certificate in document order.
// Extraction and storage are interleaved, so a malformed certificate still
// leaves the key and the certificates before it persisted.
func (p *Provisioner) provisionSlot(ctx context.Context, kb *keybox.Keybox, slot interfaces.KeySlot) (SlotResult, error) {
	result := SlotResult{Slot: slot}

	keyEl, err := kb.KeyElement(slot)
	if err != nil {
		return result, err
	}
	key, err := keybox.PrivateKey(keyEl, slot)
	if err != nil {
		return result, err
	}

	exists, err := p.store.KeyExists(ctx, slot)
	if err != nil {
		return result, err
	}
	if exists {
		p.log.Debug("Replacing existing attestation key", slog.String("slot", slot.String()))
	}
	result.KeyReplaced = exists

	if err := p.store.WriteKey(ctx, slot, key); err != nil {
		return result, err
	}

	certs := keybox.NewFinder(keyEl, keybox.ElementCertificate)
	for el := certs.Next(); el != nil; el = certs.Next() {
		cert, err := keybox.Certificate(el)
		if err != nil {
			return result, err
		}
		if err := p.store.AppendCert(ctx, slot, cert); err != nil {
			return result, err
		}
		result.CertsWritten++
	}

	return result, nil
}
