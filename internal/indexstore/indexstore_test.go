package indexstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/postgres"
)

func TestWriteAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "index.json")
	index := Index{"jane doe": "jane-doe.txt", "zoe angstrom": "zoe-angstrom.txt"}
	if err := WriteFile(path, index); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"jane doe\": \"jane-doe.txt\",\n  \"zoe angstrom\": \"zoe-angstrom.txt\"\n}\n"
	if string(raw) != want {
		t.Errorf("file contents = %q, want %q", raw, want)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if !reflect.DeepEqual(got, index) {
		t.Errorf("LoadFile() = %v, want %v", got, index)
	}
}

func TestWriteFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	if err := WriteFile(path, nil); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("LoadFile() = %v, want empty index", got)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFile(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`["not", "an", "object"]`), 0o644)
	if _, err := LoadFile(bad); err == nil {
		t.Error("expected decode error for array")
	}
}

func TestStageTranscripts(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "transcripts")
	for name, body := range map[string]string{"a.txt": "new a", "b.txt": "new b"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	os.MkdirAll(dst, 0o755)
	os.WriteFile(filepath.Join(dst, "a.txt"), []byte("old a"), 0o644)

	stats, err := StageTranscripts(src, dst, []string{"a.txt", "b.txt"})
	if err != nil {
		t.Fatalf("StageTranscripts() error: %v", err)
	}
	if stats != (StageStats{Copied: 1, Skipped: 1}) {
		t.Errorf("stats = %+v", stats)
	}
	if b, _ := os.ReadFile(filepath.Join(dst, "a.txt")); string(b) != "old a" {
		t.Errorf("existing transcript overwritten: %q", b)
	}
	if b, _ := os.ReadFile(filepath.Join(dst, "b.txt")); string(b) != "new b" {
		t.Errorf("staged transcript = %q", b)
	}
}

func TestStageTranscriptsErrors(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	if _, err := StageTranscripts(src, dst, []string{"missing.txt"}); err == nil {
		t.Error("expected error for missing source")
	}
	if _, err := StageTranscripts(src, dst, []string{"../escape.txt"}); err == nil || !strings.Contains(err.Error(), "plain file name") {
		t.Errorf("error = %v, want plain file name rejection", err)
	}
}

func TestCheckSources(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "jane-doe.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(src, "dir.txt"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		files   []string
		wantErr string
	}{
		{"readable", []string{"jane-doe.txt"}, ""},
		{"none", nil, ""},
		{"missing", []string{"jane-doe.txt", "gone.txt"}, "gone.txt"},
		{"directory", []string{"dir.txt"}, "not a regular file"},
		{"escape", []string{"../x.txt"}, "plain file name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSources(src, tt.files)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("CheckSources() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"cancelled", context.Canceled, false},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"serialization", &pq.Error{Code: "40001"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"network", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestSQLStoreRoundTrip runs against a real database when
// ATLAS_TEST_POSTGRES=1; connection settings come from the ATLAS_POSTGRES_*
// variables.
func TestSQLStoreRoundTrip(t *testing.T) {
	if os.Getenv("ATLAS_TEST_POSTGRES") != "1" {
		t.Skip("set ATLAS_TEST_POSTGRES=1 to run against PostgreSQL")
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	client, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer client.Close()

	store := NewSQLStore(client)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	first := Index{"jane doe": "jane-doe.txt", "old guest": "old.txt"}
	second := Index{"jane doe": "jane-doe-2.txt"}
	for _, idx := range []Index{first, second} {
		if err := store.Replace(ctx, idx); err != nil {
			t.Fatalf("Replace() error: %v", err)
		}
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, second) {
		t.Errorf("Load() = %v, want %v", got, second)
	}
}
