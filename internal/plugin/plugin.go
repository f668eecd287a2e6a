// Package plugin defines the capability surface the reconciliation
// sequencer consumes. A plugin knows how to decode its configuration
// section, obtain and test secrets for an instance, fetch the
// instance's remote state, and push updates back.
//
// Optional behaviors (rendering, first-time initialization, post-init
// rendering with access to other instances) are narrow interfaces
// checked with type assertions: a plugin that does not implement one
// is skipped at that step, never failed.
package plugin

import (
	"context"
	"log/slog"
	"time"

	"github.com/trimtab-dev/trimtab/internal/config"
	"github.com/trimtab-dev/trimtab/internal/reconcile"
	"github.com/trimtab-dev/trimtab/internal/secrets"
)

// Env carries run-wide parameters into plugin operations.
type Env struct {
	// MetadataDir is the local metadata directory, empty when
	// metadata rendering is disabled.
	MetadataDir string

	// RequestTimeout bounds each HTTP request a plugin makes.
	RequestTimeout time.Duration

	// Log is pre-scoped with the plugin and instance name.
	Log *slog.Logger
}

// Logger returns the env logger, falling back to slog.Default.
func (e Env) Logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// Instance is one instance's fully resolved configuration section.
type Instance interface {
	HostURL() string
}

// Config is a plugin's decoded top-level configuration section.
type Config interface {
	// InstanceNames lists declared instances in declaration order.
	// A configuration without an instances block declares the single
	// implicit instance "default".
	InstanceNames() []string

	// Instance resolves the named instance's configuration: global
	// fields deep-merged with instance-specific overrides.
	Instance(name string) (Instance, error)
}

// Plugin is the mandatory capability surface.
type Plugin interface {
	Name() string

	// DecodeConfig parses the plugin's raw configuration section.
	// instanceOrder preserves the document order of declared instance
	// names.
	DecodeConfig(tree config.Tree, instanceOrder []string) (Config, error)

	// GetSecrets performs the handshake to build a secrets bundle for
	// an instance (fetching the API key if not configured).
	GetSecrets(ctx context.Context, env Env, inst Instance) (secrets.Secrets, error)

	// TestSecrets checks liveness and authentication of a bundle.
	TestSecrets(ctx context.Context, env Env, sec secrets.Secrets) (bool, error)

	// FromRemote fetches the instance's current remote configuration
	// as a section snapshot comparable with the local one.
	FromRemote(ctx context.Context, env Env, inst Instance, sec secrets.Secrets) (Instance, error)

	// UpdateRemote diffs local against remote and pushes whatever
	// changed, returning the change records. An empty slice means the
	// remote was already up to date.
	UpdateRemote(ctx context.Context, env Env, tree string, local Instance, sec secrets.Secrets, remote Instance) ([]reconcile.Change, error)
}

// Renderer is the optional pre-secrets rendering capability: dynamic
// value population that must not require the remote API (metadata
// lookups, computed defaults).
type Renderer interface {
	Render(ctx context.Context, env Env, inst Instance) (Instance, error)
}

// Initializer is the optional first-time setup capability for remotes
// that need an initialization call before their API is usable.
type Initializer interface {
	IsInitialized(ctx context.Context, env Env, inst Instance) (bool, error)
	Initialize(ctx context.Context, env Env, inst Instance) error
}

// RunState exposes already-reconciled instances to PostInitRender, for
// resolving instance references. Only instances earlier in dependency
// order are visible.
type RunState interface {
	InstanceSecrets(ref config.InstanceRef) (secrets.Secrets, bool)
}

// PostInitRenderer is the optional post-secrets rendering capability:
// value population that needs the remote API of this or another
// instance, notably instance reference resolution.
type PostInitRenderer interface {
	PostInitRender(ctx context.Context, env Env, inst Instance, sec secrets.Secrets, run RunState) (Instance, error)
}

// Referrer is implemented by instance configurations that declare
// references to other instances. The resolver uses it to build the
// dependency graph before any network I/O.
type Referrer interface {
	InstanceRefs() []config.InstanceRef
}
