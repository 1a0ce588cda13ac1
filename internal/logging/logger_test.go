package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesPerLevelFiles(t *testing.T) {
	dir := t.TempDir()
	log, _, err := New(Options{Directory: dir, Level: "debug", MaxSize: 1, MaxBackups: 1, MaxAge: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Warn("disk almost full", zap.String("path", "/data"))
	_ = log.Sync()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var warnFile string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "-warn.log") {
			warnFile = filepath.Join(dir, e.Name())
		}
	}
	if warnFile == "" {
		t.Fatalf("no warn log among %v", entries)
	}
	b, err := os.ReadFile(warnFile)
	if err != nil {
		t.Fatalf("read warn log: %v", err)
	}
	if !strings.Contains(string(b), "disk almost full") {
		t.Fatalf("warn log = %q, want the message", b)
	}
}

func TestSetLevel(t *testing.T) {
	level := zap.NewAtomicLevel()
	if err := SetLevel(level, "error"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if level.Level() != zapcore.ErrorLevel {
		t.Fatalf("level = %v, want error", level.Level())
	}
	if err := SetLevel(level, "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if err := SetLevel(level, ""); err != nil || level.Level() != zapcore.InfoLevel {
		t.Fatalf("empty level = %v (%v), want info", level.Level(), err)
	}
}
