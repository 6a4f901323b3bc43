package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"council-ai/internal/domain"
	"council-ai/internal/infra/config"
)

// newTestConfig writes a config with one provider and an isolated data dir.
func newTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := config.Defaults()
	cfg.Providers = []config.ProviderConfig{{Name: "openai", Type: "openai"}}
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Tools.SandboxRoot = dir
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, cfgPath, args...)
	if err != nil {
		t.Fatalf("council %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestAgentsAndRolesCommands(t *testing.T) {
	path := newTestConfig(t)

	out := mustRun(t, path, "agents", "add", "gpt", "--provider", "openai", "--model", "gpt-4o", "--name", "GPT")
	if out != "Saved agent gpt (openai/gpt-4o)\n" {
		t.Errorf("add output = %q", out)
	}
	mustRun(t, path, "agents", "add", "mini", "--provider", "openai", "--model", "gpt-4o-mini", "--disabled")

	if out := mustRun(t, path, "roles", "set", "Chair", "gpt"); out != "gpt is now chair\n" {
		t.Errorf("roles set output = %q", out)
	}
	mustRun(t, path, "roles", "set", "secretary", "mini")

	out = mustRun(t, path, "agents", "list")
	for _, want := range []string{"GPT", "gpt-4o-mini", "chair", "secretary"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	if out := mustRun(t, path, "agents", "enable", "mini"); out != "Agent mini enabled\n" {
		t.Errorf("enable output = %q", out)
	}
	cfg, err := config.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if a, ok := cfg.Agent("mini"); !ok || !a.Enabled {
		t.Errorf("mini not enabled: %+v", a)
	}

	if out := mustRun(t, path, "roles", "clear", "secretary"); out != "Cleared secretary\n" {
		t.Errorf("clear output = %q", out)
	}
	mustRun(t, path, "agents", "remove", "gpt")

	cfg, err = config.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Agents) != 1 || cfg.Roles.Chair != "" || cfg.Roles.Secretary != "" {
		t.Errorf("after remove: agents=%d roles=%+v", len(cfg.Agents), cfg.Roles)
	}
}

func TestAgentsAdd_Errors(t *testing.T) {
	path := newTestConfig(t)

	_, err := runCLI(t, path, "agents", "add", "x", "--provider", "groq", "--model", "m")
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("unknown provider: err = %v", err)
	}
	if _, err := runCLI(t, path, "agents", "add", "x", "--provider", "openai"); err == nil {
		t.Error("expected missing --model to fail")
	}
	if _, err := runCLI(t, path, "agents", "remove", "ghost"); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("remove ghost: err = %v", err)
	}
	if _, err := runCLI(t, path, "roles", "set", "judge", "x"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("bad role: err = %v", err)
	}
}

func TestPermsCommands(t *testing.T) {
	path := newTestConfig(t)

	if out := mustRun(t, path, "perms", "set", "file-write", "on"); out != "file_write: on\n" {
		t.Errorf("set output = %q", out)
	}
	cfg, err := config.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Permissions.FileWrite {
		t.Error("file_write not persisted")
	}

	out := mustRun(t, path, "perms", "list")
	if !strings.Contains(out, "file_write") || !strings.Contains(out, "on") {
		t.Errorf("list output:\n%s", out)
	}

	if _, err := runCLI(t, path, "perms", "set", "teleport", "on"); err == nil {
		t.Error("expected unknown permission to fail")
	}
	if _, err := runCLI(t, path, "perms", "set", "command", "maybe"); err == nil {
		t.Error("expected bad on/off value to fail")
	}
}

func TestStatsAndHistoryCommands(t *testing.T) {
	path := newTestConfig(t)
	mustRun(t, path, "agents", "add", "gpt", "--provider", "openai", "--model", "gpt-4o")

	out := mustRun(t, path, "stats")
	if !strings.Contains(strings.ToUpper(out), "EFFICIENCY") {
		t.Errorf("stats output:\n%s", out)
	}
	if out := mustRun(t, path, "stats", "--reset"); out != "Statistics reset\n" {
		t.Errorf("reset output = %q", out)
	}
	if out := mustRun(t, path, "history", "clear"); out != "History cleared\n" {
		t.Errorf("history output = %q", out)
	}
}

func TestSetProviderKey_Plain(t *testing.T) {
	path := newTestConfig(t)

	encrypted, err := setProviderKey(path, "openai", "", "  sk-plain \n", "")
	if err != nil {
		t.Fatal(err)
	}
	if encrypted {
		t.Error("encrypted without a passphrase")
	}
	cfg, err := config.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := cfg.Provider("openai")
	if p.APIKey != "sk-plain" {
		t.Errorf("APIKey = %q", p.APIKey)
	}

	if _, err := setProviderKey(path, "openai", "", "   ", ""); err == nil {
		t.Error("expected empty key to fail")
	}
}

func TestSetProviderKey_EncryptedNewProvider(t *testing.T) {
	path := newTestConfig(t)

	encrypted, err := setProviderKey(path, "claude", "anthropic", "sk-ant", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if !encrypted {
		t.Error("expected encrypted key")
	}

	cfg, err := config.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := cfg.Provider("claude")
	if !ok {
		t.Fatal("provider not added")
	}
	if p.Type != "anthropic" {
		t.Errorf("Type = %q", p.Type)
	}
	if !strings.HasPrefix(p.APIKey, config.EncryptedPrefix) {
		t.Fatalf("APIKey = %q, want encrypted", p.APIKey)
	}
	plain, err := config.DecryptValue(strings.TrimPrefix(p.APIKey, config.EncryptedPrefix), "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if plain != "sk-ant" {
		t.Errorf("decrypted = %q", plain)
	}
}

func TestReadSecret_Piped(t *testing.T) {
	got, err := readSecret(strings.NewReader("sk-123\nignored\n"), false)
	if err != nil {
		t.Fatal(err)
	}
	if got != "sk-123" {
		t.Errorf("got %q", got)
	}

	got, err = readSecret(strings.NewReader("no-newline"), false)
	if err != nil || got != "no-newline" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestReadQuestion(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		stdin       string
		interactive bool
		want        string
		wantErr     bool
	}{
		{name: "args joined", args: []string{"why", "is", "the", "sky", "blue?"}, want: "why is the sky blue?"},
		{name: "args win over stdin", args: []string{"q"}, stdin: "ignored", want: "q"},
		{name: "piped stdin", stdin: "  from a pipe\n", want: "from a pipe"},
		{name: "empty pipe", stdin: "\n", wantErr: true},
		{name: "terminal without args", interactive: true, stdin: "never read", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readQuestion(tt.args, strings.NewReader(tt.stdin), tt.interactive)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadImages(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "pixel.png")
	writeTestFile(t, img, "\x89PNG fake")

	got, err := loadImages([]string{img})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != base64.StdEncoding.EncodeToString([]byte("\x89PNG fake")) {
		t.Errorf("got %v", got)
	}

	if _, err := loadImages([]string{filepath.Join(dir, "missing.png")}); err == nil {
		t.Error("expected missing file to fail")
	}
	if _, err := loadImages([]string{dir}); err == nil {
		t.Error("expected directory to fail")
	}

	big := filepath.Join(dir, "big.png")
	f, err := os.Create(big)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(maxImageBytes + 1); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if _, err := loadImages([]string{big}); err == nil {
		t.Error("expected oversized image to fail")
	}
}

func TestParseOnOff(t *testing.T) {
	for _, s := range []string{"on", "ON", "true", "yes", "1", " enabled "} {
		if v, err := parseOnOff(s); err != nil || !v {
			t.Errorf("parseOnOff(%q) = %v, %v", s, v, err)
		}
	}
	for _, s := range []string{"off", "False", "no", "0", "disable"} {
		if v, err := parseOnOff(s); err != nil || v {
			t.Errorf("parseOnOff(%q) = %v, %v", s, v, err)
		}
	}
	if _, err := parseOnOff("maybe"); err == nil {
		t.Error("expected error for maybe")
	}
}

func TestProjectPath(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "work", "repo")
	if got := projectPath(root, ""); got != filepath.Join(root, ".council", "project.yaml") {
		t.Errorf("default = %q", got)
	}
	if got := projectPath(root, "cfg/p.yaml"); got != filepath.Join(root, "cfg", "p.yaml") {
		t.Errorf("relative = %q", got)
	}
	abs := filepath.Join(string(filepath.Separator), "etc", "council.yaml")
	if got := projectPath(root, abs); got != abs {
		t.Errorf("absolute = %q", got)
	}
}

func TestDefaultConfigPath_Env(t *testing.T) {
	t.Setenv("COUNCIL_CONFIG", "/tmp/elsewhere.yaml")
	if got := defaultConfigPath(); got != "/tmp/elsewhere.yaml" {
		t.Errorf("got %q", got)
	}
}

func TestAwaitScoring(t *testing.T) {
	finished := make(chan struct{})
	close(finished)
	if !awaitScoring(context.Background(), finished, time.Millisecond) {
		t.Error("finished task reported as pending")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	late := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(late)
	}()
	if !awaitScoring(ctx, late, 5*time.Second) {
		t.Error("cancelled ask did not wait for in-flight scoring")
	}

	start := time.Now()
	if awaitScoring(ctx, make(chan struct{}), 30*time.Millisecond) {
		t.Error("stuck task reported as finished")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("grace not honoured: waited %v", elapsed)
	}
}
