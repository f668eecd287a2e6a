// Package engine drives reconciliation runs.
//
// The Sequencer takes a loaded configuration, decodes each plugin
// section, resolves cross-instance references into an execution order,
// and reconciles every instance strictly in that order: render,
// optional first-time initialization, secrets handshake, post-init
// rendering, remote fetch, diff and push. Instances fail in isolation;
// an instance depending on a failed one is failed with a distinct
// dependency reason rather than attempted.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trimtab-dev/trimtab/internal/config"
	"github.com/trimtab-dev/trimtab/internal/plugin"
	"github.com/trimtab-dev/trimtab/internal/resolver"
	"github.com/trimtab-dev/trimtab/internal/secrets"
)

// Sequencer reconciles every configured instance in dependency order.
type Sequencer struct {
	registry *plugin.Registry
	store    *secrets.Store
	log      *slog.Logger
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithStore persists secrets and run history to the given store.
// Without a store every run performs a fresh secrets handshake and
// records no history.
func WithStore(store *secrets.Store) Option {
	return func(s *Sequencer) { s.store = store }
}

// WithLogger sets the run logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sequencer) { s.log = log }
}

// New builds a Sequencer over the installed plugins.
func New(registry *plugin.Registry, opts ...Option) *Sequencer {
	s := &Sequencer{registry: registry, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// plan is the decoded, ordered view of one configuration document.
type plan struct {
	order     []config.InstanceRef
	deps      map[config.InstanceRef][]config.InstanceRef
	plugins   map[string]plugin.Plugin
	instances map[config.InstanceRef]plugin.Instance
}

// Plan decodes every plugin section and linearizes the instance
// dependency graph without touching the network. It surfaces every
// configuration error a run would hit: unknown sections, undecodable
// configuration, unresolved references and dependency cycles.
func (s *Sequencer) Plan(file *config.File) ([]config.InstanceRef, error) {
	p, err := s.plan(file)
	if err != nil {
		return nil, err
	}
	return p.order, nil
}

func (s *Sequencer) plan(file *config.File) (*plan, error) {
	p := &plan{
		deps:      make(map[config.InstanceRef][]config.InstanceRef),
		plugins:   make(map[string]plugin.Plugin),
		instances: make(map[config.InstanceRef]plugin.Instance),
	}

	var nodes []resolver.Node
	for _, name := range file.PluginOrder {
		pl, ok := s.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("configuration section %q does not match any installed plugin (installed: %v)", name, s.registry.Names())
		}
		cfg, err := pl.DecodeConfig(config.Sub(file.Tree, name), file.InstanceOrder[name])
		if err != nil {
			return nil, fmt.Errorf("decoding configuration section %q: %w", name, err)
		}
		p.plugins[name] = pl

		for _, instName := range cfg.InstanceNames() {
			inst, err := cfg.Instance(instName)
			if err != nil {
				return nil, fmt.Errorf("resolving configuration for %s: %w", config.NewInstanceRef(name, instName), err)
			}
			ref := config.NewInstanceRef(name, instName)
			p.instances[ref] = inst

			var deps []config.InstanceRef
			if referrer, ok := inst.(plugin.Referrer); ok {
				deps = referrer.InstanceRefs()
			}
			p.deps[ref] = deps
			nodes = append(nodes, resolver.Node{Ref: ref, Deps: deps})
		}
	}

	order, err := resolver.ExecutionOrder(resolver.Input{
		Instances: nodes,
		Installed: func(name string) bool {
			_, ok := s.registry.Get(name)
			return ok
		},
	})
	if err != nil {
		return nil, err
	}
	p.order = order
	return p, nil
}

// Run reconciles all configured instances. A non-nil error means the
// run could not start (configuration error, history store failure);
// per-instance failures are reported in the Report instead.
func (s *Sequencer) Run(ctx context.Context, file *config.File) (*Report, error) {
	p, err := s.plan(file)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:   uuid.Must(uuid.NewV7()).String(),
		Started: time.Now().UTC(),
	}
	if s.store != nil {
		if err := s.store.BeginRun(ctx, report.RunID, report.Started); err != nil {
			return nil, fmt.Errorf("recording run start: %w", err)
		}
	}

	run := newRunState()
	failed := make(map[config.InstanceRef]bool)

	for seq, ref := range p.order {
		env := plugin.Env{
			MetadataDir:    file.Settings.MetadataDir,
			RequestTimeout: file.Settings.RequestTimeout.Std(),
			Log:            s.log.With("plugin", ref.Plugin, "instance", ref.Instance),
		}

		var res Result
		if dep, ok := failedDependency(p.deps[ref], failed); ok {
			res = Result{
				Ref:    ref,
				State:  StateFailed,
				Reason: fmt.Sprintf("dependency %s failed", dep),
				Err:    errDependencyFailed,
			}
		} else {
			res = s.reconcileInstance(ctx, env, p.plugins[ref.Plugin], ref, p.instances[ref], run)
		}

		if res.State == StateFailed {
			failed[ref] = true
			env.Logger().Error("instance reconciliation failed", "reason", res.Reason)
		}
		report.Results = append(report.Results, res)
		s.record(ctx, report.RunID, seq, res)
	}

	report.Finished = time.Now().UTC()
	if s.store != nil {
		if err := s.store.FinishRun(ctx, report.RunID, report.Finished); err != nil {
			s.log.Warn("recording run finish", "error", err)
		}
	}
	return report, nil
}

var errDependencyFailed = errors.New("dependency failed")

func failedDependency(deps []config.InstanceRef, failed map[config.InstanceRef]bool) (config.InstanceRef, bool) {
	for _, dep := range deps {
		if failed[dep] {
			return dep, true
		}
	}
	return config.InstanceRef{}, false
}

func (s *Sequencer) reconcileInstance(
	ctx context.Context,
	env plugin.Env,
	pl plugin.Plugin,
	ref config.InstanceRef,
	inst plugin.Instance,
	run *runState,
) Result {
	res := Result{Ref: ref, State: StateUnresolved}
	log := env.Logger()

	if renderer, ok := pl.(plugin.Renderer); ok {
		rendered, err := renderer.Render(ctx, env, inst)
		if err != nil {
			return failResult(res, "rendering configuration", err)
		}
		inst = rendered
	}
	res.State = StateRendered

	if init, ok := pl.(plugin.Initializer); ok {
		initialized, err := init.IsInitialized(ctx, env, inst)
		if err != nil {
			return failResult(res, "checking instance initialization", err)
		}
		if !initialized {
			res.State = StateInitializing
			log.Info("instance has not been initialized, performing initialization")
			if err := init.Initialize(ctx, env, inst); err != nil {
				return failResult(res, "initializing instance", err)
			}
		}
	} else {
		log.Debug("plugin does not support initialization, skipping")
	}

	sec, err := s.instanceSecrets(ctx, env, pl, ref, inst)
	if err != nil {
		return failResult(res, "connecting to instance", err)
	}
	res.State = StateReady
	run.put(ref, sec)

	if renderer, ok := pl.(plugin.PostInitRenderer); ok {
		rendered, err := renderer.PostInitRender(ctx, env, inst, sec, run)
		if err != nil {
			return failResult(res, "resolving instance references", err)
		}
		inst = rendered
	}

	remote, err := pl.FromRemote(ctx, env, inst, sec)
	if err != nil {
		return failResult(res, "fetching remote configuration", err)
	}

	changes, err := pl.UpdateRemote(ctx, env, updateTree(ref), inst, sec, remote)
	if err != nil {
		return failResult(res, "updating remote configuration", err)
	}
	res.Changes = changes
	res.Changed = len(changes) > 0
	res.State = StateReconciled
	if res.Changed {
		log.Info("remote configuration successfully updated", "changes", len(changes))
	} else {
		log.Info("remote configuration is up to date")
	}
	return res
}

// instanceSecrets returns a working secrets bundle: a cached bundle
// that still passes the liveness test, or a fresh handshake.
func (s *Sequencer) instanceSecrets(
	ctx context.Context,
	env plugin.Env,
	pl plugin.Plugin,
	ref config.InstanceRef,
	inst plugin.Instance,
) (secrets.Secrets, error) {
	log := env.Logger()

	if s.store != nil {
		cached, ok, err := s.store.GetSecrets(ctx, ref.Plugin, ref.Instance)
		if err != nil {
			log.Warn("reading cached instance secrets", "error", err)
		} else if ok {
			alive, err := pl.TestSecrets(ctx, env, cached)
			if err == nil && alive {
				log.Debug("using cached instance secrets")
				return cached, nil
			}
			log.Debug("cached instance secrets no longer valid, performing handshake")
		}
	}

	sec, err := pl.GetSecrets(ctx, env, inst)
	if err != nil {
		return secrets.Secrets{}, err
	}
	alive, err := pl.TestSecrets(ctx, env, sec)
	if err != nil {
		return secrets.Secrets{}, err
	}
	if !alive {
		return secrets.Secrets{}, errors.New("connectivity test failed: check hostname, port, protocol and API key")
	}

	if s.store != nil {
		if err := s.store.PutSecrets(ctx, ref.Plugin, ref.Instance, sec); err != nil {
			log.Warn("caching instance secrets", "error", err)
		}
	}
	return sec, nil
}

func (s *Sequencer) record(ctx context.Context, runID string, seq int, res Result) {
	if s.store == nil {
		return
	}
	err := s.store.RecordResult(ctx, runID, seq, res.Ref.Plugin, res.Ref.Instance, res.State.String(), res.Reason, res.Changed)
	if err != nil {
		s.log.Warn("recording instance result", "instance", res.Ref.String(), "error", err)
		return
	}
	if len(res.Changes) > 0 {
		if err := s.store.RecordChanges(ctx, runID, res.Ref.Plugin, res.Ref.Instance, res.Changes); err != nil {
			s.log.Warn("recording instance changes", "instance", res.Ref.String(), "error", err)
		}
	}
}

func failResult(res Result, action string, err error) Result {
	res.State = StateFailed
	res.Reason = action + ": " + err.Error()
	res.Err = err
	return res
}

// updateTree is the dotted path prefix under which an instance's
// changes are reported. The implicit single instance reports under the
// bare plugin name.
func updateTree(ref config.InstanceRef) string {
	if ref.Instance == "default" {
		return ref.Plugin
	}
	return ref.String()
}

// runState accumulates per-instance secrets as the run progresses, so
// later instances can resolve references against earlier ones.
type runState struct {
	secrets map[config.InstanceRef]secrets.Secrets
}

func newRunState() *runState {
	return &runState{secrets: make(map[config.InstanceRef]secrets.Secrets)}
}

func (r *runState) put(ref config.InstanceRef, sec secrets.Secrets) {
	r.secrets[ref] = sec
}

// InstanceSecrets returns the secrets of an already-reconciled
// instance.
func (r *runState) InstanceSecrets(ref config.InstanceRef) (secrets.Secrets, bool) {
	sec, ok := r.secrets[ref]
	return sec, ok
}
