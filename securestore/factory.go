package securestore

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/attestify/keybox-provisioner/interfaces"
)

// StoreFromURI creates a record store from a location URI.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - memory:// - In-process storage for tests and dry runs
//   - file:// - Local filesystem storage
//   - vault:// - HashiCorp Vault KV v2 storage
//   - s3:// - Amazon S3 or compatible object storage
//
// Returns an error wrapping interfaces.ErrInvalidStoreURI if the URI is
// invalid or the scheme is unsupported.
func StoreFromURI(locationURI string, log *slog.Logger) (interfaces.RecordStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidStoreURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return createFileStore(u, log)
	case "vault":
		return createVaultStore(u, log)
	case "s3":
		return createS3Store(u, log)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidStoreURI, u.Scheme)
	}
}

// createFileStore creates a filesystem record store.
// URI format: file:///absolute/path or file://./relative/path
func createFileStore(u *url.URL, log *slog.Logger) (interfaces.RecordStore, error) {
	log.Debug("Creating file record store", slog.String("uri", u.String()))

	dir := u.Path
	if u.Host != "" {
		dir = u.Host + "/" + strings.TrimPrefix(dir, "/")
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: empty path in file URI", interfaces.ErrInvalidStoreURI)
	}

	return NewFileStore(dir, log)
}

// createVaultStore creates a Vault KV v2 record store.
// URI format: vault://host:port/mount/prefix?token=TOKEN&tls=disable
// The first path element names the KV mount; the rest becomes the record
// prefix. An absent token falls back to VAULT_TOKEN.
func createVaultStore(u *url.URL, log *slog.Logger) (interfaces.RecordStore, error) {
	log.Debug("Creating Vault record store", slog.String("uri", u.Redacted()))

	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing Vault address", interfaces.ErrInvalidStoreURI)
	}

	query := u.Query()
	scheme := "https"
	if query.Get("tls") == "disable" {
		scheme = "http"
	}

	var mount, prefix string
	if parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2); len(parts) > 0 {
		mount = parts[0]
		if len(parts) == 2 {
			prefix = parts[1]
		}
	}

	return NewVaultStore(scheme+"://"+u.Host, query.Get("token"), mount, prefix, log)
}

// createS3Store creates an S3 or S3-compatible record store.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=minio.local:9000
// Missing credentials fall back to the SDK's default chain.
func createS3Store(u *url.URL, log *slog.Logger) (interfaces.RecordStore, error) {
	log.Debug("Creating S3 record store", slog.String("uri", u.Redacted()))

	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket name", interfaces.ErrInvalidStoreURI)
	}

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Store(u.Host, strings.TrimPrefix(u.Path, "/"), region, query.Get("endpoint"), accessKey, secretKey, log)
}
