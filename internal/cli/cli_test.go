package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trimtab-dev/trimtab/internal/config"
	"github.com/trimtab-dev/trimtab/internal/engine"
	"github.com/trimtab-dev/trimtab/internal/reconcile"
)

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRenderReportGolden(t *testing.T) {
	report := &engine.Report{
		RunID: "0192d0f0-0000-7000-8000-000000000001",
		Results: []engine.Result{
			{
				Ref:     config.NewInstanceRef("dummy", "default"),
				State:   engine.StateReconciled,
				Changed: true,
				Changes: []reconcile.Change{
					{Tree: "dummy.settings", Field: "instance_value", Old: "null", New: `"X"`},
					{Tree: "dummy.settings", Field: "trash_value", Old: "null", New: "5"},
				},
			},
			{
				Ref:   config.NewInstanceRef("dummy", "spare"),
				State: engine.StateReconciled,
			},
			{
				Ref:    config.NewInstanceRef("dummy2", "backing"),
				State:  engine.StateFailed,
				Reason: "connecting to instance: connection refused",
			},
		},
	}

	var buf bytes.Buffer
	renderReport(&buf, report)
	golden(t).Assert(t, "run_report", buf.Bytes())
}

func TestDumpConfigGolden(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "extra.yml", `
dummy:
  instances:
    b:
      port: 5001
      settings:
        instance_name: "a"
`)
	path := writeConfig(t, dir, "trimtab.yml", `
includes:
  - "extra.yml"
dummy:
  hostname: "localhost"
  instances:
    a:
      port: 5000
trimtab:
  log_level: "debug"
`)

	stdout, _, err := execute(t, "dump-config", "-c", path)
	require.NoError(t, err)
	golden(t).Assert(t, "dump_config", []byte(stdout))
}

func TestCheckSuccess(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "trimtab.yml", `
dummy:
  hostname: "localhost"
  instances:
    a:
      port: 5000
    b:
      port: 5001
      settings:
        instance_name: "a"
`)

	stdout, _, err := execute(t, "check", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Loading configuration: PASSED")
	assert.Contains(t, stdout, "Resolving instance dependencies: PASSED")
	assert.Contains(t, stdout, `  1. dummy.instances["a"]`)
	assert.Contains(t, stdout, `  2. dummy.instances["b"]`)
	assert.Contains(t, stdout, "Configuration check successful.")
}

func TestCheckDependencyCycle(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "trimtab.yml", `
dummy:
  instances:
    a:
      settings:
        instance_name: "b"
    b:
      settings:
        instance_name: "a"
`)

	_, stderr, err := execute(t, "check", "-c", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stderr, "Resolving instance dependencies: FAILED")
	assert.Contains(t, stderr, "dependency cycle")
}

func TestCheckMissingFile(t *testing.T) {
	_, _, err := execute(t, "check", "-c", filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestInvalidFormatRejected(t *testing.T) {
	_, _, err := execute(t, "version", "--format", "yamlish")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yamlish"`)
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "trimtab "+Version)

	stdout, _, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
}

// dummyServer is a minimal remote instance for end-to-end run tests.
func dummyServer(t *testing.T, apiKey string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	settings := map[string]any{"trashValue": nil, "trashValue2": nil, "instanceValue": nil}
	var posts []map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/initialize.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"apiRoot": "/api/v1", "apiKey": apiKey, "version": "1.0.0"})
	})
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"version": "1.0.0"})
	})
	mux.HandleFunc("/api/v1/settings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			posts = append(posts, body)
			for key, value := range body {
				settings[key] = value
			}
			w.WriteHeader(http.StatusCreated)
		}
		json.NewEncoder(w).Encode(settings)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &posts
}

func TestRunEndToEnd(t *testing.T) {
	srv, posts := dummyServer(t, "test-key")
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	dir := t.TempDir()
	path := writeConfig(t, dir, "trimtab.yml", fmt.Sprintf(`
trimtab:
  log_level: "error"
dummy:
  hostname: %q
  port: %s
  settings:
    instance_value: "X"
`, u.Hostname(), u.Port()))

	stdout, _, err := execute(t, "run", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "default: RECONCILED (updated)")
	assert.Contains(t, stdout, `dummy.settings.instance_value: null -> "X"`)
	assert.Contains(t, stdout, "1 reconciled (1 updated), 0 failed")
	require.Len(t, *posts, 1)

	// The state database lands next to the configuration file.
	_, err = os.Stat(filepath.Join(dir, "trimtab.db"))
	require.NoError(t, err)

	// A second run reports up to date and performs no further writes.
	stdout, _, err = execute(t, "run", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "default: RECONCILED (up to date)")
	assert.Len(t, *posts, 1)
}

func TestRunReportsFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "trimtab.yml", `
trimtab:
  log_level: "error"
dummy:
  hostname: "localhost"
  port: 1
`)

	stdout, _, err := execute(t, "run", "-c", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "default: FAILED")
}
