package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trimtab-dev/trimtab/internal/config"
	"github.com/trimtab-dev/trimtab/internal/reconcile"
	"github.com/trimtab-dev/trimtab/internal/secrets"
)

type stubPlugin struct {
	name string
}

func (p *stubPlugin) Name() string { return p.name }

func (p *stubPlugin) DecodeConfig(tree config.Tree, instanceOrder []string) (Config, error) {
	return nil, nil
}

func (p *stubPlugin) GetSecrets(ctx context.Context, env Env, inst Instance) (secrets.Secrets, error) {
	return secrets.Secrets{}, nil
}

func (p *stubPlugin) TestSecrets(ctx context.Context, env Env, sec secrets.Secrets) (bool, error) {
	return true, nil
}

func (p *stubPlugin) FromRemote(ctx context.Context, env Env, inst Instance, sec secrets.Secrets) (Instance, error) {
	return nil, nil
}

func (p *stubPlugin) UpdateRemote(ctx context.Context, env Env, tree string, local Instance, sec secrets.Secrets, remote Instance) ([]reconcile.Change, error) {
	return nil, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r, err := NewRegistry(&stubPlugin{name: "dummy"}, &stubPlugin{name: "other"})
	require.NoError(t, err)

	p, ok := r.Get("dummy")
	require.True(t, ok)
	assert.Equal(t, "dummy", p.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryDuplicate(t *testing.T) {
	_, err := NewRegistry(&stubPlugin{name: "dummy"}, &stubPlugin{name: "dummy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `registered twice`)
}

func TestRegistryNormalizesNames(t *testing.T) {
	// U+0065 U+0301 (decomposed) and U+00E9 (precomposed) are the
	// same plugin name.
	r, err := NewRegistry(&stubPlugin{name: "café"})
	require.NoError(t, err)

	_, ok := r.Get("café")
	assert.True(t, ok)
}

func TestRegistryNamesSorted(t *testing.T) {
	r, err := NewRegistry(&stubPlugin{name: "zeta"}, &stubPlugin{name: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
}

func TestEnvLoggerFallback(t *testing.T) {
	var env Env
	assert.NotNil(t, env.Logger())
}
