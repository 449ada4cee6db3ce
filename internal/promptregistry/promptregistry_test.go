package promptregistry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nulpointcorp/agentreg/internal/promptregistry"
)

func writeDescriptor(t *testing.T, dir, filename, version string) {
	t.Helper()
	content := "version: \"" + version + "\"\n" +
		"system_prompt: \"You are a helpful assistant.\"\n" +
		"user_template: \"Instruction: {instruction}\"\n" +
		"description: \"test descriptor\"\n"
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
}

func TestLoadAndListVersionsDescending(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "v1.yaml", "1.0")
	writeDescriptor(t, dir, "v2.yaml", "2.5")
	writeDescriptor(t, dir, "v10.yaml", "10.0")

	reg, err := promptregistry.Load(dir, "2.5")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	versions := reg.ListVersions()
	want := []string{"10.0", "2.5", "1.0"}
	if len(versions) != len(want) {
		t.Fatalf("ListVersions() = %v, want %v", versions, want)
	}
	for i, v := range want {
		if versions[i] != v {
			t.Fatalf("ListVersions()[%d] = %q, want %q (full: %v)", i, versions[i], v, versions)
		}
	}
}

func TestResolveFallsBackOnMissingVersion(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "v1.yaml", "1.0")

	reg, err := promptregistry.Load(dir, "1.0")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	eff, fellBack := reg.Resolve("9.9")
	if !fellBack || eff != "1.0" {
		t.Fatalf("Resolve() = (%q, %v), want (1.0, true)", eff, fellBack)
	}

	eff, fellBack = reg.Resolve("1.0")
	if fellBack || eff != "1.0" {
		t.Fatalf("Resolve() = (%q, %v), want (1.0, false)", eff, fellBack)
	}
}

func TestRenderSubstitutesInstruction(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "v1.yaml", "1.0")
	reg, err := promptregistry.Load(dir, "1.0")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d, ok := reg.Lookup("1.0")
	if !ok {
		t.Fatal("expected version 1.0 to be present")
	}
	got := d.Render("summarize this")
	want := "Instruction: summarize this"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}
