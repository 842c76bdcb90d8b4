package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
)

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"lamp"}, "lamp"},
		{"multiple words", []string{"brass", "desk", "lamp"}, "brass desk lamp"},
		{"single quoted phrase", []string{"brass desk lamp"}, "brass desk lamp"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildPrompt(tt.args); got != tt.expected {
				t.Errorf("buildPrompt(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  port: 9090
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, resolved, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug || cfg.Server.Port != 9090 {
		t.Errorf("unexpected config: debug=%v port=%d", cfg.Debug, cfg.Server.Port)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  data_dir: "index"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DataDir != filepath.Join(dir, "index") {
		t.Errorf("data_dir = %s, want it relative to the config file", cfg.Storage.DataDir)
	}
}

func TestLoadConfig_explicitMissingFails(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing explicit config")
	}
}

func TestLoadConfig_defaultsWithoutFile(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists at the default path")
	}
	t.Chdir(t.TempDir())
	cfg, resolved, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want empty for built-in defaults", resolved)
	}
	if cfg.Recommend.DefaultK != 6 || cfg.Index.Type != "flat" {
		t.Errorf("defaults not applied: %+v", cfg.Recommend)
	}
}

func TestRootCmd_subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"server", "recommend", "ingest", "status", "version"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing subcommand %q in %v", want, names)
		}
	}
	for _, flag := range []string{"config", "debug", "format", "server"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

// run executes the CLI with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "ruiji version "+version) {
		t.Errorf("version output = %q", out)
	}
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
storage:
  data_dir: "` + filepath.Join(dir, "index") + `"
  metadata_backend: file
index:
  type: flat
embedding:
  provider: hash
  dimensions: 64
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func TestIngestRecommendStatus_local(t *testing.T) {
	configPath := writeTestConfig(t)
	itemsPath := filepath.Join(t.TempDir(), "items.json")
	items := `[
  {"id": "lamp", "text": "brass desk lamp", "metadata": {"title": "Brass Desk Lamp", "price": "1,299"}},
  {"id": "rug", "text": "wool area rug", "metadata": {"title": "Wool Rug"}}
]`
	if err := os.WriteFile(itemsPath, []byte(items), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "--config", configPath, "ingest", itemsPath)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !strings.Contains(out, "Indexed 2 item(s), rejected 0") {
		t.Errorf("ingest output = %q", out)
	}

	out, err = run(t, `{"items":[{"id":"pot","text":"ceramic teapot"}]}`, "--config", configPath, "ingest", "-")
	if err != nil {
		t.Fatalf("ingest stdin: %v", err)
	}
	if !strings.Contains(out, "Indexed 1 item(s)") {
		t.Errorf("stdin ingest output = %q", out)
	}

	csvItems := "uniq_id,title,description,price\nkettle,Steel Kettle,stovetop kettle,35\n"
	out, err = run(t, csvItems, "--config", configPath, "ingest", "-", "--input-format", "csv")
	if err != nil {
		t.Fatalf("ingest csv stdin: %v", err)
	}
	if !strings.Contains(out, "Indexed 1 item(s)") {
		t.Errorf("csv ingest output = %q", out)
	}

	out, err = run(t, "", "--config", configPath, "--format", "json", "recommend", "-k", "1", "brass", "desk", "lamp")
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	var resp struct {
		Results []struct {
			ID           string  `json:"id"`
			Score        float64 `json:"score"`
			PriceDisplay string  `json:"price_display"`
		} `json:"results"`
	}
	if err := gojson.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("recommend output is not JSON: %v\n%s", err, out)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "lamp" {
		t.Fatalf("results = %+v, want only lamp", resp.Results)
	}
	if resp.Results[0].Score < 0.99 {
		t.Errorf("score = %f, want ~1 for identical text", resp.Results[0].Score)
	}
	if resp.Results[0].PriceDisplay != "₹1299" {
		t.Errorf("price_display = %q", resp.Results[0].PriceDisplay)
	}

	out, err = run(t, "", "--config", configPath, "--format", "json", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status struct {
		Index struct {
			Initialized bool `json:"initialized"`
			Dimension   int  `json:"dimension"`
			LiveItems   int  `json:"live_items"`
		} `json:"index"`
		DiskUsageBytes int64 `json:"disk_usage_bytes"`
	}
	if err := gojson.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("status output is not JSON: %v\n%s", err, out)
	}
	if !status.Index.Initialized || status.Index.Dimension != 64 || status.Index.LiveItems != 4 {
		t.Errorf("status = %+v", status.Index)
	}
	if status.DiskUsageBytes <= 0 {
		t.Error("disk usage should count the persisted index")
	}
}

func TestRecommend_emptyIndex(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := run(t, "", "--config", configPath, "recommend", "anything")
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if !strings.Contains(out, "No items indexed yet") {
		t.Errorf("output = %q", out)
	}
}

func TestRecommend_badFormat(t *testing.T) {
	configPath := writeTestConfig(t)
	if _, err := run(t, "", "--config", configPath, "--format", "xml", "recommend", "lamp"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestStatus_serverNotRunning(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	_, err = run(t, "", "--server", addr, "status")
	if err == nil || !strings.Contains(err.Error(), "no ruiji server") {
		t.Errorf("err = %v, want not-running error", err)
	}
}
