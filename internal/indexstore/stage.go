package indexstore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// StageStats counts what StageTranscripts did.
type StageStats struct {
	Copied  int `json:"copied"`
	Skipped int `json:"skipped"`
}

// StageTranscripts copies each named file from srcDir into dstDir. Files
// already present in dstDir are left untouched, so a rerun only adds new
// transcripts. The first failure stops the run.
func StageTranscripts(srcDir, dstDir string, files []string) (StageStats, error) {
	var stats StageStats
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return stats, fmt.Errorf("creating %s: %w", dstDir, err)
	}
	logger := slog.Default().With("component", "stager")
	for _, name := range files {
		if name != filepath.Base(name) {
			return stats, fmt.Errorf("transcript name %q is not a plain file name", name)
		}
		dst := filepath.Join(dstDir, name)
		if _, err := os.Stat(dst); err == nil {
			stats.Skipped++
			continue
		} else if !os.IsNotExist(err) {
			return stats, fmt.Errorf("checking %s: %w", dst, err)
		}
		if err := CopyFile(filepath.Join(srcDir, name), dst); err != nil {
			return stats, err
		}
		stats.Copied++
		logger.Debug("transcript staged", "file", name)
	}
	logger.Info("transcripts staged", "copied", stats.Copied, "skipped", stats.Skipped, "dst", dstDir)
	return stats, nil
}

// CheckSources opens every named file in srcDir and fails on the first one
// that cannot be read. Nothing is written.
func CheckSources(srcDir string, files []string) error {
	for _, name := range files {
		if name != filepath.Base(name) {
			return fmt.Errorf("transcript name %q is not a plain file name", name)
		}
		path := filepath.Join(srcDir, name)
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		info, err := f.Stat()
		f.Close()
		if err != nil {
			return fmt.Errorf("checking %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("transcript %s is not a regular file", path)
		}
	}
	return nil
}

// CopyFile copies src to dst, replacing dst atomically.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", dst, err)
	}
	tmpPath := dst + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmpPath, err)
	}
	defer os.Remove(tmpPath)
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("renaming %s: %w", tmpPath, err)
	}
	return nil
}
