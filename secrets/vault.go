package secrets

import (
	"context"
	"errors"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/cityofaustin/moped-claimsx"
)

// Vault reads fields of one KV v2 secret.
type Vault struct {
	client *vault.Client
	mount  string
	path   string
}

// VaultConfig locates the secret.
type VaultConfig struct {
	Address string
	Token   string
	Mount   string
	Path    string
}

// NewVault builds a Vault source with its own client.
func NewVault(cfg VaultConfig) (*Vault, error) {
	vcfg := vault.DefaultConfig()
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, claimsx.NewError(claimsx.ErrCodeConfiguration, err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return NewVaultWithClient(client, cfg.Mount, cfg.Path)
}

// NewVaultWithClient wraps an existing client.
func NewVaultWithClient(client *vault.Client, mount, path string) (*Vault, error) {
	if client == nil || path == "" {
		return nil, claimsx.NewError(claimsx.ErrCodeConfiguration, errors.New("vault client and secret path are required"))
	}
	if mount == "" {
		mount = "secret"
	}
	return &Vault{client: client, mount: mount, path: path}, nil
}

// Secret implements Source.
func (v *Vault) Secret(ctx context.Context, name string) (string, error) {
	secret, err := v.client.KVv2(v.mount).Get(ctx, v.path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("vault secret %s/%s not found", v.mount, v.path))
		}
		return "", claimsx.NewError(claimsx.ErrCodeSecretUnavailable, fmt.Errorf("read vault secret: %w", err))
	}
	if secret == nil || secret.Data == nil {
		return "", claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("vault secret %s/%s has no data", v.mount, v.path))
	}
	value, ok := secret.Data[name].(string)
	if !ok {
		return "", claimsx.NewError(claimsx.ErrCodeConfiguration, fmt.Errorf("vault secret has no string field %s", name))
	}
	return value, nil
}
