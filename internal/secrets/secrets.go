// Package secrets resolves the warehouse password, either from the
// environment or from Azure Key Vault when running in production.
package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/Dan9191/sales-forecast/internal/config"
	"github.com/sirupsen/logrus"
)

// SecretGetter fetches the latest value of a named secret
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// Resolver resolves the warehouse password for the configured user
type Resolver struct {
	cfg    *config.Config
	log    *logrus.Logger
	getter SecretGetter
}

// NewResolver creates a resolver. The vault client is only built when ENV is prod.
func NewResolver(cfg *config.Config, log *logrus.Logger) (*Resolver, error) {
	r := &Resolver{cfg: cfg, log: log}
	if !cfg.IsProd() {
		return r, nil
	}

	vault, err := NewKeyVault(cfg.VaultURL)
	if err != nil {
		return nil, err
	}
	r.getter = vault
	return r, nil
}

// NewResolverWithGetter creates a resolver backed by the given secret store
func NewResolverWithGetter(cfg *config.Config, log *logrus.Logger, getter SecretGetter) *Resolver {
	return &Resolver{cfg: cfg, log: log, getter: getter}
}

// Password returns SNOWFLAKE_PASSWORD outside prod, the vault secret otherwise
func (r *Resolver) Password(ctx context.Context) (string, error) {
	if !r.cfg.IsProd() {
		r.log.Debugf("Using warehouse password from environment (ENV=%s)", r.cfg.Env)
		return r.cfg.Warehouse.Password, nil
	}
	if r.getter == nil {
		return "", fmt.Errorf("secret store is not configured")
	}

	name := SecretName(r.cfg.Warehouse.User)
	value, err := r.getter.GetSecret(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if value == "" {
		return "", fmt.Errorf("secret %s is empty", name)
	}

	r.log.Infof("Resolved warehouse password from key vault secret %s", name)
	return value, nil
}

// SecretName derives the vault secret name from the warehouse user.
// Key Vault names do not allow underscores.
func SecretName(user string) string {
	return strings.ReplaceAll(user, "_", "")
}

// KeyVault reads secrets from Azure Key Vault
type KeyVault struct {
	client *azsecrets.Client
}

// NewKeyVault creates a Key Vault client using the default Azure credential chain
func NewKeyVault(vaultURL string) (*KeyVault, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure credential: %w", err)
	}

	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create key vault client: %w", err)
	}

	return &KeyVault{client: client}, nil
}

// GetSecret returns the latest version of the named secret
func (k *KeyVault) GetSecret(ctx context.Context, name string) (string, error) {
	resp, err := k.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", err
	}
	if resp.Value == nil {
		return "", nil
	}
	return *resp.Value, nil
}
