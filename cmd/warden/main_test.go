package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

const testRules = `version: r1
flow_control:
  - name: lookup-qps
    method: "inventory.Service#Lookup"
    qps: 0.001
    burst: 1
    behavior: skip
    fallback: -1
routes:
  - name: eu
    method: "inventory.*#*"
    match:
      zone: eu-west-1
    targets:
      zone: eu-west-1
tags:
  env: test
`

// testEnv writes a configuration using a rule file and a SQLite event
// store in a temporary directory, and points the --config flag at it.
type testEnv struct {
	dir       string
	rulesPath string
	dbPath    string
}

func newTestEnv(t *testing.T, rulesDoc string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:       dir,
		rulesPath: filepath.Join(dir, "rules.yaml"),
		dbPath:    filepath.Join(dir, "events.db"),
	}

	if err := os.WriteFile(env.rulesPath, []byte(rulesDoc), 0o600); err != nil {
		t.Fatalf("failed to write rules: %v", err)
	}

	cfg := fmt.Sprintf(`agent:
  service_name: warden-test
plugins:
  - name: tags
    type: tag
  - name: lanes
    type: router
  - name: limits
    type: flowcontrol
    pointcuts: ["inventory.*#*"]
rules:
  source: file
  file_path: %s
events:
  backend: sqlite
  sqlite:
    path: %s
telemetry:
  logging:
    level: error
  metrics:
    enabled: false
`, env.rulesPath, env.dbPath)

	cfgPath := filepath.Join(dir, "warden.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	orig := cfgFile
	cfgFile = cfgPath
	t.Cleanup(func() { cfgFile = orig })
	return env
}

// capture runs fn with cmd writing to a buffer.
func capture(t *testing.T, cmd *cobra.Command, fn func(*cobra.Command, []string) error) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := fn(cmd, nil)
	return buf.String(), err
}
