package workspace

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestResolverPathIsDeterministic(t *testing.T) {
	r := NewResolver("/srv/sessions", nil)

	a := r.Path("cli_app", "oc_chat_123")
	b := r.Path("cli_app", "oc_chat_123")
	if a != b {
		t.Errorf("Path() not deterministic: %q vs %q", a, b)
	}

	sum := md5.Sum([]byte("oc_chat_123"))
	want := filepath.Join("/srv/sessions", "cli_app", hex.EncodeToString(sum[:]))
	if a != want {
		t.Errorf("Path() = %q, want %q", a, want)
	}
}

func TestResolverPathSeparatesConversations(t *testing.T) {
	r := NewResolver("/srv/sessions", nil)

	if r.Path("app_a", "chat_1") == r.Path("app_a", "chat_2") {
		t.Error("different chats mapped to the same workspace")
	}
	if r.Path("app_a", "chat_1") == r.Path("app_b", "chat_1") {
		t.Error("different apps mapped to the same workspace")
	}
}

func TestResolveCreatesDirectoryIdempotently(t *testing.T) {
	r := NewResolver(t.TempDir(), nil)

	dir, err := r.Resolve("cli_app", "oc_chat_123")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat workspace: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("%q is not a directory", dir)
	}

	// Drop a marker file and resolve again; contents must survive.
	marker := filepath.Join(dir, "session.log")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	again, err := r.Resolve("cli_app", "oc_chat_123")
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if again != dir {
		t.Errorf("second Resolve() = %q, want %q", again, dir)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("marker file lost after second Resolve(): %v", err)
	}
}

func TestProjectorCopiesArtifacts(t *testing.T) {
	source := t.TempDir()
	ws := t.TempDir()

	if err := os.WriteFile(filepath.Join(source, "oauth_creds.json"), []byte(`{"token":"x"}`), 0o600); err != nil {
		t.Fatalf("write source artifact: %v", err)
	}
	// settings.json is deliberately absent; projection must skip it.

	p := NewProjector(source, ".gemini", []string{"oauth_creds.json", "settings.json"}, nil)
	if err := p.Project(ws); err != nil {
		t.Fatalf("Project() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(ws, ".gemini", "oauth_creds.json"))
	if err != nil {
		t.Fatalf("projected artifact missing: %v", err)
	}
	if string(got) != `{"token":"x"}` {
		t.Errorf("projected artifact content = %q", got)
	}
	if _, err := os.Stat(filepath.Join(ws, ".gemini", "settings.json")); !os.IsNotExist(err) {
		t.Errorf("absent source artifact was projected anyway (err = %v)", err)
	}
}

func TestProjectorRunsOncePerWorkspace(t *testing.T) {
	source := t.TempDir()
	ws := t.TempDir()

	art := filepath.Join(source, "installation_id")
	if err := os.WriteFile(art, []byte("first"), 0o600); err != nil {
		t.Fatalf("write source artifact: %v", err)
	}

	p := NewProjector(source, ".gemini", []string{"installation_id"}, nil)
	if err := p.Project(ws); err != nil {
		t.Fatalf("first Project() error = %v", err)
	}

	// Replace the workspace copy; a second Project must not clobber it.
	dst := filepath.Join(ws, ".gemini", "installation_id")
	if err := os.Remove(dst); err != nil {
		t.Fatalf("remove projected artifact: %v", err)
	}
	if err := os.WriteFile(dst, []byte("edited"), 0o600); err != nil {
		t.Fatalf("rewrite projected artifact: %v", err)
	}
	if err := p.Project(ws); err != nil {
		t.Fatalf("second Project() error = %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read projected artifact: %v", err)
	}
	if string(got) != "edited" {
		t.Errorf("second Project() clobbered workspace artifact: %q", got)
	}
}
