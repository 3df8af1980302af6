package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/kafka"
)

const sourceCSV = "Sr No,Podcast Guest,Company Name,CEO Summary,Level 1 Tags,Level 2 Tags,Level 3 Tags,Level 4 Tags\n" +
	"1,Jane Doe,Acme,Growth,A,,,\n" +
	"2,Jane Doe (Acme Corp),Acme,Pricing,B,,,\n" +
	"3,John Smith,Globex,Hiring,A,,,\n"

type recordingMirror struct {
	index indexstore.Index
	err   error
}

func (m *recordingMirror) Replace(_ context.Context, index indexstore.Index) error {
	m.index = index
	return m.err
}

type recordingPublisher struct {
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event kafka.Event) error {
	p.events = append(p.events, event)
	return nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) (config.CatalogConfig, config.ResolverConfig) {
	t.Helper()
	root := t.TempDir()
	cat := config.CatalogConfig{
		SourceCSV:      filepath.Join(root, "episodes.csv"),
		TranscriptsDir: filepath.Join(root, "raw"),
		PublicDir:      filepath.Join(root, "public"),
		Parser:         "lenient",
	}
	writeFile(t, cat.SourceCSV, sourceCSV)
	writeFile(t, filepath.Join(cat.TranscriptsDir, "jane-doe.txt"), "jane")
	writeFile(t, filepath.Join(cat.TranscriptsDir, "doe-jane-acme-corp.txt"), "jane at acme")
	writeFile(t, filepath.Join(cat.TranscriptsDir, "unused.txt"), "nobody")
	return cat, config.ResolverConfig{Threshold: 0.8, TranscriptExt: ".txt", Workers: 2, FoldSeparators: true}
}

func TestRun(t *testing.T) {
	catCfg, resCfg := testConfig(t)
	mirror := &recordingMirror{err: errors.New("db down")}
	pub := &recordingPublisher{}

	out, err := New(catCfg, resCfg, mirror, pub).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := indexstore.Index{
		"jane doe":           "jane-doe.txt",
		"jane doe acme corp": "doe-jane-acme-corp.txt",
	}
	got, err := indexstore.LoadFile(catCfg.IndexPath())
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("index = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(out.Result.Unmatched, []string{"John Smith"}) {
		t.Errorf("unmatched = %q", out.Result.Unmatched)
	}
	if out.Staged.Copied != 2 || out.Entries != 3 {
		t.Errorf("staged = %+v entries = %d", out.Staged, out.Entries)
	}
	if _, err := os.Stat(filepath.Join(catCfg.PublishedTranscriptsDir(), "unused.txt")); !os.IsNotExist(err) {
		t.Error("unreferenced transcripts must not be staged")
	}
	published, err := os.ReadFile(catCfg.PublishedCSV())
	if err != nil || string(published) != sourceCSV {
		t.Errorf("published csv = %q, %v", published, err)
	}

	if !reflect.DeepEqual(map[string]string(mirror.index), map[string]string(want)) {
		t.Errorf("mirror got %v", mirror.index)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev, ok := pub.events[0].Value.(analytics.IndexBuiltEvent)
	if !ok || ev.BuildID != out.BuildID || ev.Unmatched != 1 || ev.Exact != 1 || ev.Fuzzy != 1 {
		t.Errorf("event = %+v", pub.events[0].Value)
	}

	again, err := New(catCfg, resCfg, nil, nil).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again.Staged.Copied != 0 || again.Staged.Skipped != 2 {
		t.Errorf("second run staged = %+v, want all skipped", again.Staged)
	}
}

func TestRunAbortsBeforeWriting(t *testing.T) {
	catCfg, resCfg := testConfig(t)
	catCfg.TranscriptsDir = filepath.Join(catCfg.TranscriptsDir, "missing")

	if _, err := New(catCfg, resCfg, nil, nil).Run(context.Background()); err == nil {
		t.Fatal("expected error for missing transcripts directory")
	}
	if _, err := os.Stat(catCfg.PublicDir); !os.IsNotExist(err) {
		t.Errorf("public dir should not exist after a failed read: %v", err)
	}
}

func TestRunUnreadableTranscript(t *testing.T) {
	catCfg, resCfg := testConfig(t)
	src := filepath.Join(catCfg.TranscriptsDir, "jane-doe.txt")
	if err := os.Remove(src); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(catCfg.TranscriptsDir, "gone.txt"), src); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := New(catCfg, resCfg, nil, nil).Run(context.Background()); err == nil {
		t.Fatal("expected error for a dangling transcript link")
	}
	if _, err := os.Stat(catCfg.IndexPath()); !os.IsNotExist(err) {
		t.Errorf("index must not be written when a transcript cannot be read: %v", err)
	}
	if _, err := os.Stat(catCfg.PublicDir); !os.IsNotExist(err) {
		t.Errorf("public dir should not exist after a failed read: %v", err)
	}
}

func TestRunKeepsPreviousIndexOnFailure(t *testing.T) {
	catCfg, resCfg := testConfig(t)
	if _, err := New(catCfg, resCfg, nil, nil).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(catCfg.IndexPath())
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, catCfg.SourceCSV, sourceCSV+"4,Zed Quinn,Initech,Ops,C,,,\n")
	writeFile(t, filepath.Join(catCfg.TranscriptsDir, "zed-quinn.txt"), "zed")
	if err := os.Chmod(filepath.Join(catCfg.TranscriptsDir, "zed-quinn.txt"), 0); err != nil {
		t.Fatal(err)
	}
	if f, err := os.Open(filepath.Join(catCfg.TranscriptsDir, "zed-quinn.txt")); err == nil {
		f.Close()
		t.Skip("running with permissions that ignore file modes")
	}

	if _, err := New(catCfg, resCfg, nil, nil).Run(context.Background()); err == nil {
		t.Fatal("expected error for an unreadable transcript")
	}
	after, err := os.ReadFile(catCfg.IndexPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Errorf("index changed after a failed run:\n%s", after)
	}
	published, err := os.ReadFile(catCfg.PublishedCSV())
	if err != nil || string(published) != sourceCSV {
		t.Errorf("published csv replaced after a failed run: %q, %v", published, err)
	}
}

func TestRunMissingColumn(t *testing.T) {
	catCfg, resCfg := testConfig(t)
	writeFile(t, catCfg.SourceCSV, "Podcast Guest,Company Name\nJane Doe,Acme\n")
	if _, err := New(catCfg, resCfg, nil, nil).Run(context.Background()); err == nil {
		t.Fatal("expected missing column error")
	}
}
