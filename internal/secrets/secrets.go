// Package secrets holds per-instance connection and credential bundles
// plus the SQLite-backed state store that caches them between runs and
// records run history.
package secrets

import (
	"fmt"
	"log/slog"
)

// Secrets is one instance's connection and credential bundle. Created
// once per instance per run, either read back from the state store or
// obtained through a live handshake against the instance.
type Secrets struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	URLBase  string `json:"url_base,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Version  string `json:"version,omitempty"`
}

// HostURL is the base URL of the instance, without URLBase: request
// paths are built as URLBase plus the resource path, so the bundle
// works unchanged whether or not the instance sits behind a
// path-routing reverse proxy.
func (s Secrets) HostURL() string {
	return fmt.Sprintf("%s://%s:%d", s.Protocol, s.Hostname, s.Port)
}

// LogValue renders the bundle with the API key redacted. Secrets are
// never logged in plaintext.
func (s Secrets) LogValue() slog.Value {
	apiKey := "(none)"
	if s.APIKey != "" {
		apiKey = "(redacted)"
	}
	return slog.GroupValue(
		slog.String("host_url", s.HostURL()),
		slog.String("api_key", apiKey),
		slog.String("version", s.Version),
	)
}
