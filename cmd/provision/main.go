package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/attestify/keybox-provisioner/cmd/flags"
	"github.com/attestify/keybox-provisioner/interfaces"
	"github.com/attestify/keybox-provisioner/keybox"
	"github.com/attestify/keybox-provisioner/provisioner"
	"github.com/attestify/keybox-provisioner/securestore"
)

var flagKeybox = &cli.StringFlag{
	Name:     "keybox",
	Required: true,
	Usage:    "path of the keybox container file",
}
var flagStampID = &cli.BoolFlag{
	Name:  "stamp-id",
	Value: false,
	Usage: "write a fresh attestation batch ID after a successful pass",
}
var flagSlot = &cli.StringFlag{
	Name:     "slot",
	Required: true,
	Usage:    "key slot to reset: rsa, ec, ed, epid, c0, s_rsa, s_ec, s_ed, s_epid",
}

const usage string = "Provision attestation credentials from factory keybox containers"

func main() {
	app := &cli.App{
		Name:  "keybox-provision",
		Usage: usage,
		Flags: append([]cli.Flag{flags.LogServiceFlagFn("keybox-provision")}, flags.CommonFlags...),
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "execute one provisioning pass",
				Flags:  []cli.Flag{flagKeybox, flagStampID, flags.MaxKeyboxSizeFlag},
				Action: runPass,
			},
			{
				Name:   "status",
				Usage:  "report per-slot provisioning state",
				Action: showStatus,
			},
			{
				Name:   "reset",
				Usage:  "wipe one slot's certificate chain",
				Flags:  []cli.Flag{flagSlot},
				Action: resetSlot,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newStore builds the slot store from the shared store flags, sealing
// records when a device secret is configured.
func newStore(cCtx *cli.Context, logger *slog.Logger) (*securestore.Store, error) {
	records, err := securestore.StoreFromURI(cCtx.String(flags.StoreFlag.Name), logger)
	if err != nil {
		return nil, fmt.Errorf("could not create record store: %w", err)
	}

	if secretHex := cCtx.String(flags.SealSecretHexFlag.Name); secretHex != "" {
		secret, err := hex.DecodeString(secretHex)
		if err != nil {
			return nil, fmt.Errorf("could not parse seal secret: %w", err)
		}
		records, err = securestore.NewSealedStore(records, secret, logger)
		if err != nil {
			return nil, fmt.Errorf("could not create sealed store: %w", err)
		}
	}

	return securestore.New(records, uint32(cCtx.Uint(flags.MaxChainLengthFlag.Name)), logger), nil
}

func runPass(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	store, err := newStore(cCtx, logger)
	if err != nil {
		return err
	}

	source := provisioner.FileSource{Path: cCtx.String(flagKeybox.Name)}
	opts := keybox.DecodeOptions{MaxDecodedSize: cCtx.Int(flags.MaxKeyboxSizeFlag.Name)}

	report, err := provisioner.New(store, source, opts, logger).Run(cCtx.Context, nil)
	if err != nil {
		logger.Error("Provisioning pass failed", "err", err)
		return err
	}

	for _, slot := range report.Slots {
		fmt.Printf("slot %s: key written (replaced=%v), %d certificates\n",
			slot.Slot, slot.KeyReplaced, slot.CertsWritten)
	}

	if cCtx.Bool(flagStampID.Name) {
		id := uuid.New()
		if err := store.WriteAttestationID(cCtx.Context, id); err != nil {
			return fmt.Errorf("could not stamp attestation ID: %w", err)
		}
		fmt.Printf("attestation ID: %s\n", id)
	}
	return nil
}

func showStatus(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	store, err := newStore(cCtx, logger)
	if err != nil {
		return err
	}
	ctx := cCtx.Context

	for _, slot := range interfaces.AllKeySlots {
		exists, err := store.KeyExists(ctx, slot)
		if err != nil {
			return err
		}

		length, err := store.ReadCertChainLength(ctx, slot)
		if err != nil && !errors.Is(err, interfaces.ErrRecordNotFound) {
			return err
		}

		fmt.Printf("slot %-6s key=%-5v certs=%d\n", slot, exists, length)
	}

	id, err := store.ReadAttestationID(ctx)
	if err != nil {
		return err
	}
	if id == uuid.Nil {
		fmt.Println("attestation ID: unset")
	} else {
		fmt.Printf("attestation ID: %s\n", id)
	}
	return nil
}

func resetSlot(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	store, err := newStore(cCtx, logger)
	if err != nil {
		return err
	}

	slot, err := interfaces.ParseKeySlot(cCtx.String(flagSlot.Name))
	if err != nil {
		return err
	}

	if err := store.DeleteCertChain(cCtx.Context, slot); err != nil {
		return err
	}
	fmt.Printf("slot %s: certificate chain reset\n", slot)
	return nil
}
