package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// setupTestDir points the package at a temporary log directory and resets global state
func setupTestDir(t *testing.T) {
	t.Helper()

	origLogDir := logDir
	origInitErr := initErr
	origSessionID := sessionID

	logDir = t.TempDir()
	initErr = nil
	initOnce = sync.Once{}
	sessionID = ""
	sessionIDOnce = sync.Once{}

	t.Cleanup(func() {
		logDir = origLogDir
		initErr = origInitErr
		initOnce = sync.Once{}
		sessionID = origSessionID
		sessionIDOnce = sync.Once{}
	})
}

func TestNewLogger(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("pool")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.SessionID() == "" {
		t.Error("Expected non-empty session ID")
	}
	if !strings.HasSuffix(logger.LogPath(), logger.SessionID()+"-siphon.log") {
		t.Errorf("Unexpected log path %s", logger.LogPath())
	}
	if _, err := os.Stat(logger.LogPath()); os.IsNotExist(err) {
		t.Errorf("Log file does not exist at %s", logger.LogPath())
	}
}

func TestLoggersShareSessionFile(t *testing.T) {
	setupTestDir(t)

	a, err := NewLogger("a")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewLogger("b")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	a.Infof("from a")
	b.Warnf("from b")

	if a.LogPath() != b.LogPath() {
		t.Fatalf("paths differ: %s vs %s", a.LogPath(), b.LogPath())
	}
	data, err := os.ReadFile(filepath.Clean(a.LogPath()))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{"[a] [INFO] from a", "[b] [WARN] from b"} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q:\n%s", want, content)
		}
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("test", &buf, LevelWarn)

	logger.Debugf("debug %d", 1)
	logger.Infof("info %d", 2)
	logger.Warnf("warn %d", 3)
	logger.Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below threshold were written:\n%s", out)
	}
	if !strings.Contains(out, "[test] [WARN] warn 3") || !strings.Contains(out, "[test] [ERROR] error 4") {
		t.Errorf("expected warn and error lines:\n%s", out)
	}

	buf.Reset()
	logger.SetLevel(LevelDebug)
	logger.Debugf("now visible")
	if !strings.Contains(buf.String(), "[DEBUG] now visible") {
		t.Errorf("debug line missing after SetLevel: %q", buf.String())
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("app", &buf, LevelInfo).With("browser")
	logger.Infof("ready")

	if !strings.Contains(buf.String(), "[app.browser] [INFO] ready") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"", LevelInfo, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDiscardAndClose(t *testing.T) {
	logger := Discard()
	logger.Errorf("dropped")

	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
