// Package dummy implements the reference plugin: a minimal remote
// application exposing a handshake endpoint, a status endpoint, and a
// flat settings resource. It exercises every optional plugin
// capability and serves as the template for writing real plugins.
package dummy

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/trimtab-dev/trimtab/internal/api"
	"github.com/trimtab-dev/trimtab/internal/config"
	"github.com/trimtab-dev/trimtab/internal/plugin"
	"github.com/trimtab-dev/trimtab/internal/reconcile"
	"github.com/trimtab-dev/trimtab/internal/secrets"
)

// DefaultName is the configuration section name the plugin registers
// under.
const DefaultName = "dummy"

// Plugin reconciles Dummy instances.
type Plugin struct {
	name string
}

// New creates the plugin under its default section name.
func New() *Plugin {
	return NewNamed(DefaultName)
}

// NewNamed creates the plugin under a custom section name, so several
// independent Dummy deployments can be driven from one configuration.
func NewNamed(name string) *Plugin {
	return &Plugin{name: name}
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return p.name }

// DecodeConfig implements plugin.Plugin.
func (p *Plugin) DecodeConfig(tree config.Tree, instanceOrder []string) (plugin.Config, error) {
	return decodeConfig(p.name, tree, instanceOrder)
}

func (p *Plugin) client(env plugin.Env, baseURL, apiKey string) *api.Client {
	opts := []api.Option{
		api.WithTimeout(env.RequestTimeout),
		api.WithLogger(env.Logger()),
	}
	if apiKey != "" {
		opts = append(opts, api.WithAPIKey(apiKey))
	}
	return api.New(baseURL, opts...)
}

// initData is the session initialization metadata the instance serves
// before authentication.
type initData struct {
	APIRoot     string `json:"apiRoot"`
	APIKey      string `json:"apiKey"`
	Version     string `json:"version"`
	Initialized *bool  `json:"initialized"`
}

// Older instances serve the metadata as a JavaScript assignment
// instead of plain JSON.
var initJSPattern = regexp.MustCompile(`(?s)^window\.Dummy = ({.*});$`)

// fetchInitData reads the initialization metadata from an instance,
// accepting both the JSON and the legacy JavaScript response shapes.
func (p *Plugin) fetchInitData(ctx context.Context, env plugin.Env, baseURL, apiKey string) (initData, error) {
	client := p.client(env, baseURL, apiKey)
	body, err := client.GetText(ctx, "/initialize.json")
	if err != nil {
		return initData{}, err
	}
	if m := initJSPattern.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	var data initData
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return initData{}, fmt.Errorf("malformed initialization metadata from %s: %w", baseURL, err)
	}
	return data, nil
}

func instanceBaseURL(inst *Instance) string {
	return inst.HostURL() + inst.URLBase
}

// IsInitialized implements plugin.Initializer. An instance that does
// not report initialization state, or that refuses the unauthenticated
// metadata request, is treated as already initialized.
func (p *Plugin) IsInitialized(ctx context.Context, env plugin.Env, inst plugin.Instance) (bool, error) {
	cfg := inst.(*Instance)
	data, err := p.fetchInitData(ctx, env, instanceBaseURL(cfg), cfg.APIKey)
	if err != nil {
		if api.IsUnauthorized(err) {
			return true, nil
		}
		return false, err
	}
	if data.Initialized == nil {
		return true, nil
	}
	return *data.Initialized, nil
}

// Initialize implements plugin.Initializer.
func (p *Plugin) Initialize(ctx context.Context, env plugin.Env, inst plugin.Instance) error {
	cfg := inst.(*Instance)
	base := instanceBaseURL(cfg)
	data, err := p.fetchInitData(ctx, env, base, cfg.APIKey)
	if err != nil {
		return err
	}
	client := p.client(env, base, cfg.APIKey)
	return client.Post(ctx, data.APIRoot+"/init", nil, nil)
}

// GetSecrets implements plugin.Plugin. The API key is taken from the
// configuration when present, otherwise from the handshake metadata,
// which instances only expose while authentication is disabled.
func (p *Plugin) GetSecrets(ctx context.Context, env plugin.Env, inst plugin.Instance) (secrets.Secrets, error) {
	cfg := inst.(*Instance)
	data, err := p.fetchInitData(ctx, env, instanceBaseURL(cfg), cfg.APIKey)
	if err != nil {
		return secrets.Secrets{}, err
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = data.APIKey
	}
	if apiKey == "" {
		return secrets.Secrets{}, fmt.Errorf(
			"unable to retrieve the API key for instance at %s: authentication is enabled, set api_key in the configuration",
			cfg.HostURL(),
		)
	}

	return secrets.Secrets{
		Hostname: cfg.Hostname,
		Port:     cfg.Port,
		Protocol: cfg.Protocol,
		URLBase:  cfg.URLBase + data.APIRoot,
		APIKey:   apiKey,
		Version:  data.Version,
	}, nil
}

// TestSecrets implements plugin.Plugin: a status read proves liveness
// and that the API key is accepted.
func (p *Plugin) TestSecrets(ctx context.Context, env plugin.Env, sec secrets.Secrets) (bool, error) {
	client := p.client(env, sec.HostURL(), sec.APIKey)
	var status struct {
		Version string `json:"version"`
	}
	if err := client.Get(ctx, sec.URLBase+"/status", &status); err != nil {
		if api.IsUnauthorized(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FromRemote implements plugin.Plugin.
func (p *Plugin) FromRemote(ctx context.Context, env plugin.Env, inst plugin.Instance, sec secrets.Secrets) (plugin.Instance, error) {
	cfg := inst.(*Instance)
	client := p.client(env, sec.HostURL(), sec.APIKey)

	var attrs reconcile.Attrs
	if err := client.Get(ctx, sec.URLBase+"/settings", &attrs); err != nil {
		return nil, err
	}
	locals, err := reconcile.LocalAttrs(settingsRemoteMap, attrs)
	if err != nil {
		return nil, err
	}
	settings, err := settingsFromAttrs(locals)
	if err != nil {
		return nil, err
	}

	return &Instance{
		Hostname:   sec.Hostname,
		Port:       sec.Port,
		Protocol:   sec.Protocol,
		URLBase:    cfg.URLBase,
		APIKey:     sec.APIKey,
		Version:    sec.Version,
		Settings:   settings,
		name:       cfg.name,
		pluginName: cfg.pluginName,
	}, nil
}

// UpdateRemote implements plugin.Plugin. The settings resource is
// replaced wholesale, so unchanged and unmanaged values are written
// back verbatim; no write happens when nothing changed.
func (p *Plugin) UpdateRemote(ctx context.Context, env plugin.Env, tree string, local plugin.Instance, sec secrets.Secrets, remote plugin.Instance) ([]reconcile.Change, error) {
	localCfg := local.(*Instance)
	remoteCfg := remote.(*Instance)

	delta := reconcile.UpdateAttrs(tree+".settings", &localCfg.Settings, &remoteCfg.Settings, settingsRemoteMap, reconcile.UpdateOpts{
		Log: env.Logger(),
	})
	if !delta.Changed {
		return nil, nil
	}

	client := p.client(env, sec.HostURL(), sec.APIKey)
	if err := client.Post(ctx, sec.URLBase+"/settings", delta.Attrs, nil); err != nil {
		return nil, err
	}
	return delta.Changes, nil
}

// PostInitRender implements plugin.PostInitRenderer: an instance_name
// reference is resolved by reading the referenced instance's current
// value and adopting it as this instance's instance_value. An
// explicitly configured instance_value wins over the reference.
func (p *Plugin) PostInitRender(ctx context.Context, env plugin.Env, inst plugin.Instance, sec secrets.Secrets, run plugin.RunState) (plugin.Instance, error) {
	cfg := inst.(*Instance)
	if cfg.Settings.InstanceName == "" || cfg.Settings.IsSet("instance_value") {
		return inst, nil
	}

	ref := config.NewInstanceRef(p.name, cfg.Settings.InstanceName)
	targetSec, ok := run.InstanceSecrets(ref)
	if !ok {
		return nil, fmt.Errorf("referenced instance %s has not been reconciled in this run", ref)
	}

	client := p.client(env, targetSec.HostURL(), targetSec.APIKey)
	var attrs reconcile.Attrs
	if err := client.Get(ctx, targetSec.URLBase+"/settings", &attrs); err != nil {
		return nil, fmt.Errorf("reading value from referenced instance %s: %w", ref, err)
	}

	out := cfg.copy()
	if raw, ok := attrs["instanceValue"]; ok && raw != nil {
		value, err := reconcile.AsString(raw)
		if err != nil {
			return nil, fmt.Errorf("referenced instance %s: %w", ref, err)
		}
		out.Settings.InstanceValue = &value
	} else {
		out.Settings.InstanceValue = nil
	}
	out.Settings.markSet("instance_value")
	return out, nil
}
