package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trimtab-dev/trimtab/internal/config"
	"github.com/trimtab-dev/trimtab/internal/plugin"
	"github.com/trimtab-dev/trimtab/internal/reconcile"
	"github.com/trimtab-dev/trimtab/internal/secrets"
)

// fakeInstance is a minimal instance configuration for sequencer
// tests.
type fakeInstance struct {
	name string
	deps []config.InstanceRef
}

func (i *fakeInstance) HostURL() string { return "http://" + i.name + ":5000" }

func (i *fakeInstance) InstanceRefs() []config.InstanceRef { return i.deps }

// fakePlugin implements every plugin capability and records each
// operation in a shared call log.
type fakePlugin struct {
	name  string
	order []string
	insts map[string]*fakeInstance

	calls *[]string

	secretsErr  map[string]error
	needsInit   map[string]bool
	changes     map[string][]reconcile.Change
	postRender  func(inst *fakeInstance, run plugin.RunState) error
	updateTrees map[string]string
}

func newFakePlugin(name string, calls *[]string) *fakePlugin {
	return &fakePlugin{
		name:        name,
		insts:       make(map[string]*fakeInstance),
		calls:       calls,
		secretsErr:  make(map[string]error),
		needsInit:   make(map[string]bool),
		changes:     make(map[string][]reconcile.Change),
		updateTrees: make(map[string]string),
	}
}

func (p *fakePlugin) addInstance(name string, deps ...config.InstanceRef) {
	p.order = append(p.order, name)
	p.insts[name] = &fakeInstance{name: name, deps: deps}
}

func (p *fakePlugin) record(op, inst string) {
	*p.calls = append(*p.calls, fmt.Sprintf("%s/%s:%s", p.name, inst, op))
}

func (p *fakePlugin) Name() string { return p.name }

func (p *fakePlugin) DecodeConfig(tree config.Tree, instanceOrder []string) (plugin.Config, error) {
	return &fakeConfig{plugin: p}, nil
}

func (p *fakePlugin) GetSecrets(ctx context.Context, env plugin.Env, inst plugin.Instance) (secrets.Secrets, error) {
	name := inst.(*fakeInstance).name
	p.record("handshake", name)
	if err := p.secretsErr[name]; err != nil {
		return secrets.Secrets{}, err
	}
	return secrets.Secrets{Hostname: name, Port: 5000, Protocol: "http", APIKey: "key-" + name}, nil
}

func (p *fakePlugin) TestSecrets(ctx context.Context, env plugin.Env, sec secrets.Secrets) (bool, error) {
	p.record("test", sec.Hostname)
	return true, nil
}

func (p *fakePlugin) IsInitialized(ctx context.Context, env plugin.Env, inst plugin.Instance) (bool, error) {
	name := inst.(*fakeInstance).name
	p.record("is_initialized", name)
	return !p.needsInit[name], nil
}

func (p *fakePlugin) Initialize(ctx context.Context, env plugin.Env, inst plugin.Instance) error {
	p.record("initialize", inst.(*fakeInstance).name)
	return nil
}

func (p *fakePlugin) PostInitRender(ctx context.Context, env plugin.Env, inst plugin.Instance, sec secrets.Secrets, run plugin.RunState) (plugin.Instance, error) {
	fi := inst.(*fakeInstance)
	p.record("post_init_render", fi.name)
	if p.postRender != nil {
		if err := p.postRender(fi, run); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func (p *fakePlugin) FromRemote(ctx context.Context, env plugin.Env, inst plugin.Instance, sec secrets.Secrets) (plugin.Instance, error) {
	name := inst.(*fakeInstance).name
	p.record("from_remote", name)
	return &fakeInstance{name: name + "-remote"}, nil
}

func (p *fakePlugin) UpdateRemote(ctx context.Context, env plugin.Env, tree string, local plugin.Instance, sec secrets.Secrets, remote plugin.Instance) ([]reconcile.Change, error) {
	name := local.(*fakeInstance).name
	p.record("update_remote", name)
	p.updateTrees[name] = tree
	return p.changes[name], nil
}

type fakeConfig struct {
	plugin *fakePlugin
}

func (c *fakeConfig) InstanceNames() []string { return c.plugin.order }

func (c *fakeConfig) Instance(name string) (plugin.Instance, error) {
	inst, ok := c.plugin.insts[name]
	if !ok {
		return nil, fmt.Errorf("no instance %q", name)
	}
	return inst, nil
}

func configFile(plugins ...string) *config.File {
	file := &config.File{
		Tree:          config.Tree{},
		Settings:      config.DefaultSettings(),
		InstanceOrder: make(map[string][]string),
	}
	for _, name := range plugins {
		file.Tree[name] = map[string]any{}
		file.PluginOrder = append(file.PluginOrder, name)
	}
	return file
}

func mustRegistry(t *testing.T, plugins ...plugin.Plugin) *plugin.Registry {
	t.Helper()
	r, err := plugin.NewRegistry(plugins...)
	require.NoError(t, err)
	return r
}

func TestRunReconcilesInDependencyOrder(t *testing.T) {
	var calls []string
	fake := newFakePlugin("fake", &calls)
	fake.addInstance("a", config.NewInstanceRef("fake", "b"))
	fake.addInstance("b")

	seq := New(mustRegistry(t, fake))
	report, err := seq.Run(context.Background(), configFile("fake"))
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, config.NewInstanceRef("fake", "b"), report.Results[0].Ref)
	assert.Equal(t, config.NewInstanceRef("fake", "a"), report.Results[1].Ref)
	assert.Equal(t, StateReconciled, report.Results[0].State)
	assert.Equal(t, StateReconciled, report.Results[1].State)
	assert.False(t, report.Failed())

	// b is run to completion before the first operation against a.
	var firstA, lastB int
	for i, call := range calls {
		if call == "fake/a:is_initialized" && firstA == 0 {
			firstA = i
		}
		if call == "fake/b:update_remote" {
			lastB = i
		}
	}
	assert.Less(t, lastB, firstA)
}

func TestRunReportsChanges(t *testing.T) {
	var calls []string
	fake := newFakePlugin("fake", &calls)
	fake.addInstance("default")
	fake.changes["default"] = []reconcile.Change{
		{Tree: "fake.settings", Field: "instance_value", Old: "null", New: `"X"`},
	}

	seq := New(mustRegistry(t, fake))
	report, err := seq.Run(context.Background(), configFile("fake"))
	require.NoError(t, err)

	res := report.Result(config.NewInstanceRef("fake", "default"))
	require.NotNil(t, res)
	assert.True(t, res.Changed)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, `fake.settings.instance_value: null -> "X"`, res.Changes[0].String())
	assert.True(t, report.Updated())

	// The implicit single instance reports under the bare plugin name.
	assert.Equal(t, "fake", fake.updateTrees["default"])
}

func TestRunNamedInstanceTree(t *testing.T) {
	var calls []string
	fake := newFakePlugin("fake", &calls)
	fake.addInstance("main")

	seq := New(mustRegistry(t, fake))
	_, err := seq.Run(context.Background(), configFile("fake"))
	require.NoError(t, err)
	assert.Equal(t, `fake.instances["main"]`, fake.updateTrees["main"])
}

func TestRunInitializesUninitializedInstance(t *testing.T) {
	var calls []string
	fake := newFakePlugin("fake", &calls)
	fake.addInstance("default")
	fake.needsInit["default"] = true

	seq := New(mustRegistry(t, fake))
	report, err := seq.Run(context.Background(), configFile("fake"))
	require.NoError(t, err)
	assert.Equal(t, StateReconciled, report.Results[0].State)
	assert.Contains(t, calls, "fake/default:initialize")
}

func TestRunFailureIsolation(t *testing.T) {
	var calls []string
	fake := newFakePlugin("fake", &calls)
	fake.addInstance("bad")
	fake.addInstance("good")
	fake.addInstance("dependent", config.NewInstanceRef("fake", "bad"))
	fake.secretsErr["bad"] = errors.New("API key incorrect")

	seq := New(mustRegistry(t, fake))
	report, err := seq.Run(context.Background(), configFile("fake"))
	require.NoError(t, err)

	bad := report.Result(config.NewInstanceRef("fake", "bad"))
	require.NotNil(t, bad)
	assert.Equal(t, StateFailed, bad.State)
	assert.Contains(t, bad.Reason, "connecting to instance")
	assert.Contains(t, bad.Reason, "API key incorrect")

	good := report.Result(config.NewInstanceRef("fake", "good"))
	require.NotNil(t, good)
	assert.Equal(t, StateReconciled, good.State)

	dependent := report.Result(config.NewInstanceRef("fake", "dependent"))
	require.NotNil(t, dependent)
	assert.Equal(t, StateFailed, dependent.State)
	assert.Equal(t, `dependency fake.instances["bad"] failed`, dependent.Reason)
	assert.ErrorIs(t, dependent.Err, errDependencyFailed)

	// The dependent instance is never attempted.
	assert.NotContains(t, calls, "fake/dependent:is_initialized")
	assert.True(t, report.Failed())
}

func TestRunConfigurationErrorBeforeNetwork(t *testing.T) {
	var calls []string
	fake := newFakePlugin("fake", &calls)
	fake.addInstance("a", config.NewInstanceRef("fake", "b"))
	fake.addInstance("b", config.NewInstanceRef("fake", "a"))

	seq := New(mustRegistry(t, fake))
	_, err := seq.Run(context.Background(), configFile("fake"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
	assert.Empty(t, calls)
}

func TestRunUnknownSection(t *testing.T) {
	var calls []string
	fake := newFakePlugin("fake", &calls)
	fake.addInstance("default")

	seq := New(mustRegistry(t, fake))
	_, err := seq.Run(context.Background(), configFile("fake", "mystery"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `configuration section "mystery"`)
	assert.Empty(t, calls)
}

func TestRunPostInitRenderSeesDependencySecrets(t *testing.T) {
	var calls []string
	fake := newFakePlugin("fake", &calls)
	fake.addInstance("source")
	fake.addInstance("consumer", config.NewInstanceRef("fake", "source"))
	fake.postRender = func(inst *fakeInstance, run plugin.RunState) error {
		if inst.name != "consumer" {
			return nil
		}
		sec, ok := run.InstanceSecrets(config.NewInstanceRef("fake", "source"))
		if !ok {
			return errors.New("source secrets not available")
		}
		if sec.APIKey != "key-source" {
			return fmt.Errorf("unexpected API key %q", sec.APIKey)
		}
		return nil
	}

	seq := New(mustRegistry(t, fake))
	report, err := seq.Run(context.Background(), configFile("fake"))
	require.NoError(t, err)
	assert.False(t, report.Failed())
}

func TestRunCachedSecretsSkipHandshake(t *testing.T) {
	store, err := secrets.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	cached := secrets.Secrets{Hostname: "default", Port: 5000, Protocol: "http", APIKey: "cached-key"}
	require.NoError(t, store.PutSecrets(context.Background(), "fake", "default", cached))

	var calls []string
	fake := newFakePlugin("fake", &calls)
	fake.addInstance("default")

	seq := New(mustRegistry(t, fake), WithStore(store))
	report, err := seq.Run(context.Background(), configFile("fake"))
	require.NoError(t, err)
	assert.False(t, report.Failed())
	assert.NotContains(t, calls, "fake/default:handshake")
}

func TestRunRecordsHistory(t *testing.T) {
	store, err := secrets.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	var calls []string
	fake := newFakePlugin("fake", &calls)
	fake.addInstance("default")
	fake.changes["default"] = []reconcile.Change{
		{Tree: "fake.settings", Field: "instance_value", Old: "null", New: `"X"`},
	}

	seq := New(mustRegistry(t, fake), WithStore(store))
	report, err := seq.Run(context.Background(), configFile("fake"))
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)

	// A fresh handshake stores the secrets for the next run.
	stored, ok, err := store.GetSecrets(context.Background(), "fake", "default")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "key-default", stored.APIKey)
}

func TestReportByPlugin(t *testing.T) {
	report := &Report{Results: []Result{
		{Ref: config.NewInstanceRef("b", "x")},
		{Ref: config.NewInstanceRef("a", "y")},
		{Ref: config.NewInstanceRef("b", "z")},
	}}
	groups := report.ByPlugin()
	require.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0].Plugin)
	assert.Len(t, groups[0].Results, 2)
	assert.Equal(t, "a", groups[1].Plugin)
}

func TestInstanceStateString(t *testing.T) {
	assert.Equal(t, "RECONCILED", StateReconciled.String())
	assert.Equal(t, "FAILED", StateFailed.String())
	assert.Equal(t, "UNKNOWN", InstanceState(99).String())
}
