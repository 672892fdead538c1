package securestore

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/attestify/keybox-provisioner/interfaces"
)

// VaultStore keeps records in a HashiCorp Vault KV version 2 mount. Vault
// stores JSON strings, so record bytes are base64-wrapped under a single
// "content" field.
type VaultStore struct {
	client    *api.Client
	mountPath string
	prefix    string
	log       *slog.Logger
}

// NewVaultStore creates a Vault-backed record store. An empty address or
// token falls back to the client's VAULT_ADDR and VAULT_TOKEN environment
// handling. mountPath names the KV v2 mount; prefix scopes record paths
// within it and may be empty.
func NewVaultStore(address, token, mountPath, prefix string, log *slog.Logger) (*VaultStore, error) {
	config := api.DefaultConfig()
	if address != "" {
		config.Address = address
	}
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	if mountPath == "" {
		mountPath = "secret"
	}

	return &VaultStore{
		client:    client,
		mountPath: mountPath,
		prefix:    strings.Trim(prefix, "/"),
		log:       log,
	}, nil
}

func (b *VaultStore) WriteRecord(ctx context.Context, name string, data []byte) error {
	if err := validateRecordName(name); err != nil {
		return err
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"content": base64.StdEncoding.EncodeToString(data),
		},
	}
	if _, err := b.client.Logical().WriteWithContext(ctx, b.recordPath(name), payload); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	b.log.Debug("Stored record in Vault",
		slog.String("path", b.recordPath(name)),
		slog.Int("size", len(data)))
	return nil
}

func (b *VaultStore) ReadRecord(ctx context.Context, name string) ([]byte, error) {
	if err := validateRecordName(name); err != nil {
		return nil, err
	}

	secret, err := b.client.Logical().ReadWithContext(ctx, b.recordPath(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrRecordNotFound
	}

	// A soft-deleted KV v2 version still returns a secret, with a nil
	// inner data map.
	inner, ok := secret.Data["data"].(map[string]interface{})
	if !ok || inner == nil {
		return nil, interfaces.ErrRecordNotFound
	}
	content, ok := inner["content"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: record %s has no content field", interfaces.ErrStorageInvariant, name)
	}

	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("%w: record %s is not valid base64: %v", interfaces.ErrStorageInvariant, name, err)
	}
	return data, nil
}

func (b *VaultStore) DeleteRecord(ctx context.Context, name string) error {
	if err := validateRecordName(name); err != nil {
		return err
	}

	if _, err := b.client.Logical().DeleteWithContext(ctx, b.recordPath(name)); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (b *VaultStore) recordPath(name string) string {
	if b.prefix == "" {
		return fmt.Sprintf("%s/data/%s", b.mountPath, name)
	}
	return fmt.Sprintf("%s/data/%s/%s", b.mountPath, b.prefix, name)
}
