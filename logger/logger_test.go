package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"", INFO, false},
		{" Info ", INFO, false},
		{"warning", WARN, false},
		{"ERROR", ERROR, false},
		{"verbose", INFO, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(WARN)
	defer SetLevel(DEBUG)

	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	Errorf("also shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at WARN level: %q", out)
	}
	if !strings.Contains(out, "[WARN]  ") || !strings.Contains(out, "shown 2") {
		t.Errorf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Errorf("caller file not reported: %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("captured output carries color codes: %q", out)
	}
}

func TestInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	if err := Init(path, false, INFO); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Debug("not written")
	Info("written to file")
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "written to file") || strings.Contains(string(data), "not written") {
		t.Errorf("log file = %q", data)
	}

	if err := Init("", false, INFO); err == nil {
		t.Error("Init with no outputs should fail")
	}
	SetOutput(&bytes.Buffer{})
}
