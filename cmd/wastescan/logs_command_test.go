package main

import (
	"path/filepath"
	"testing"

	"wastescan/internal/testsupport"
)

func TestCLILogsShowsRecentEntries(t *testing.T) {
	env := setupCLITestEnv(t)
	image := filepath.Join(env.baseDir, "can.png")
	testsupport.WriteImage(t, image)
	if _, _, err := runCLI(t, []string{"classify", image}, env.configPath); err != nil {
		t.Fatalf("classify: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--match", "classification complete"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "classification complete")
	requireNotContains(t, out, "classification requested")
}
