package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/Dan9191/sales-forecast/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVault struct {
	secrets map[string]string
	err     error
	asked   []string
}

func (f *fakeVault) GetSecret(_ context.Context, name string) (string, error) {
	f.asked = append(f.asked, name)
	if f.err != nil {
		return "", f.err
	}
	return f.secrets[name], nil
}

func newConfig(env string) *config.Config {
	return &config.Config{
		Env:      env,
		VaultURL: "https://forecast.vault.azure.net/",
		Warehouse: config.Warehouse{
			Driver:   config.DriverSnowflake,
			User:     "svc_sales_forecast",
			Password: "from-env",
		},
	}
}

func TestSecretName(t *testing.T) {
	assert.Equal(t, "svcsalesforecast", SecretName("svc_sales_forecast"))
	assert.Equal(t, "plain", SecretName("plain"))
}

func TestPasswordFromEnvironmentOutsideProd(t *testing.T) {
	log, _ := test.NewNullLogger()

	for _, env := range []string{"local", "staging", "dev"} {
		vault := &fakeVault{}
		r := NewResolverWithGetter(newConfig(env), log, vault)

		password, err := r.Password(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "from-env", password, env)
		assert.Empty(t, vault.asked, env)
	}
}

func TestPasswordFromVaultInProd(t *testing.T) {
	log, hook := test.NewNullLogger()
	vault := &fakeVault{secrets: map[string]string{"svcsalesforecast": "from-vault"}}
	r := NewResolverWithGetter(newConfig("prod"), log, vault)

	password, err := r.Password(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-vault", password)
	assert.Equal(t, []string{"svcsalesforecast"}, vault.asked)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}

func TestPasswordVaultErrors(t *testing.T) {
	log, _ := test.NewNullLogger()

	r := NewResolverWithGetter(newConfig("prod"), log, &fakeVault{err: errors.New("forbidden")})
	_, err := r.Password(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")

	r = NewResolverWithGetter(newConfig("prod"), log, &fakeVault{secrets: map[string]string{}})
	_, err = r.Password(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")

	r = NewResolverWithGetter(newConfig("prod"), log, nil)
	_, err = r.Password(context.Background())
	require.Error(t, err)
}
