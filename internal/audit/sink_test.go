package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAppendsNDJSONLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	s, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Write(Entry{Route: "/mcp/connect", Method: "POST", Status: 200, Tenant: "t1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(Entry{Route: "/mcp/execute", Method: "POST", Status: 500, Tenant: "t1", Kind: "transport"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open for read: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var e Entry
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal line 0: %v", err)
	}
	if e.Route != "/mcp/connect" || e.Status != 200 {
		t.Fatalf("line 0 decoded = %+v", e)
	}
}

func TestWriteRotatesPastMaxBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	s, err := Open(path, 1) // rotate essentially immediately
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for i := 0; i < 3; i++ {
		if err := s.Write(Entry{Route: "/mcp/execute", Method: "POST", Status: 200}); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	if _, err := os.Stat(path + "-1"); err != nil {
		t.Fatalf("expected rotated sibling %s-1 to exist: %v", path, err)
	}
	if _, err := os.Stat(path + "-2"); err != nil {
		t.Fatalf("expected rotated sibling %s-2 to exist: %v", path, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected current file to still exist: %v", err)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "audit.log")

	s, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}
