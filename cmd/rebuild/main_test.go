package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CCSDForge/episciences-front-next-sub002/internal/rebuild"
)

func TestRunEmitsEventsOnArgumentError(t *testing.T) {
	t.Setenv("TENANT_ENV_DIR", t.TempDir())

	var out, errOut bytes.Buffer
	code := run([]string{"--journal", "epijinfo", "--type", "article"}, &out, &errOut)

	if code != rebuild.ExitUsage {
		t.Fatalf("exit code = %d, want %d", code, rebuild.ExitUsage)
	}
	stdout := out.String()
	if !strings.Contains(stdout, `"type":"phase"`) {
		t.Fatalf("stdout must carry structured events, got %q", stdout)
	}
	if !strings.Contains(stdout, `"phase":"failed"`) {
		t.Fatalf("stdout must report the rejection, got %q", stdout)
	}
	if !strings.Contains(errOut.String(), "Usage: rebuild") {
		t.Fatalf("stderr must carry the usage text, got %q", errOut.String())
	}
}

func TestRunFullBuild(t *testing.T) {
	envDir := t.TempDir()
	envFile := filepath.Join(envDir, ".env.epijinfo")
	if err := os.WriteFile(envFile, []byte("NEXT_PUBLIC_JOURNAL_NAME=Epijinfo\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("TENANT_ENV_DIR", envDir)
	t.Setenv("SITE_DIR", t.TempDir())
	t.Setenv("BUILD_COMMAND", "true")

	var out, errOut bytes.Buffer
	code := run([]string{"--journal", "epijinfo", "--type", "full"}, &out, &errOut)

	if code != rebuild.ExitOK {
		t.Fatalf("exit code = %d, want 0 (stderr: %q)", code, errOut.String())
	}
	if !strings.Contains(out.String(), `"type":"build_success"`) {
		t.Fatalf("stdout must report build success, got %q", out.String())
	}
	if errOut.Len() != 0 {
		t.Fatalf("stderr should stay quiet on success, got %q", errOut.String())
	}
}
