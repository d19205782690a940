package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// writeTestConfig pins the config to a temp dir so the init graph never
// touches redis or the working directory.
func writeTestConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`log:
  log_level: DEBUG
  log_dir: %s
  log_file: test.log
cache:
  driver: memory
security:
  journal:
    enabled: true
    path: %s
`, filepath.Join(dir, "logs"), filepath.Join(dir, "journal.db"))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AUTHGUARD_CONFIG", path)
}

func TestSmokeLoadConfigAndLogger(t *testing.T) {
	writeTestConfig(t)

	config, logger, err := loadConfigAndLogger()
	if err != nil {
		t.Fatalf("loadConfigAndLogger failed: %v", err)
	}
	if config == nil {
		t.Fatal("config is nil")
	}
	if logger == nil {
		t.Fatal("logger is nil")
	}
	logger.Close()
}

func TestInitGraphOrder(t *testing.T) {
	steps := InitGraph()
	want := []string{
		"config:load",
		"logging:init-provider",
		"observability:setup-hooks",
		"cache:connect-store",
		"storage:open-journal",
		"security:init-monitor",
		"domain:init-services",
		"security:subscribe-alert-log",
	}
	if len(steps) != len(want) {
		t.Fatalf("unexpected step count: got %d want %d", len(steps), len(want))
	}
	seen := make(map[string]struct{}, len(steps))
	for i, step := range steps {
		if step.ID != want[i] {
			t.Fatalf("step %d mismatch: got %s want %s", i, step.ID, want[i])
		}
		for _, dep := range step.DependsOn {
			if _, ok := seen[dep]; !ok {
				t.Fatalf("step %s depends on %s before it is defined", step.ID, dep)
			}
		}
		seen[step.ID] = struct{}{}
	}
}

func TestExecuteInitGraph(t *testing.T) {
	writeTestConfig(t)

	state := &appState{}
	if err := executeInitSteps(context.Background(), InitGraph(), state); err != nil {
		t.Fatalf("executeInitSteps failed: %v", err)
	}
	defer func() {
		closeResources(state)
		state.logger.Close()
	}()

	if state.config == nil {
		t.Fatal("config is nil after init")
	}
	if state.logger == nil {
		t.Fatal("logger is nil after init")
	}
	if state.store == nil {
		t.Fatal("cache store is nil after init")
	}
	if !state.store.Connected() {
		t.Fatal("cache store not connected after init")
	}
	if state.journal == nil {
		t.Fatal("journal is nil after init")
	}
	if state.monitor == nil {
		t.Fatal("security monitor is nil after init")
	}
	if state.lockouts == nil || state.blacklists == nil || state.reputation == nil {
		t.Fatal("defense services not initialised")
	}
	if state.observabilityShutdown == nil {
		t.Fatal("observability shutdown is nil after init")
	}
}

func TestExecuteInitGraphRejectsUnsatisfiedDependency(t *testing.T) {
	steps := []initStep{
		{
			ID:        "b",
			DependsOn: []string{"a"},
			Execute:   func(context.Context, *appState) error { return nil },
		},
	}
	if err := executeInitSteps(context.Background(), steps, &appState{}); err == nil {
		t.Fatal("expected dependency error, got nil")
	}
}
