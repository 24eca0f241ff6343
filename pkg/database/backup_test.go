package database

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		user    string
		pass    string
		host    string
		port    string
		name    string
		wantErr bool
	}{
		{"root:secret@tcp(db.internal:3307)/spots?parseTime=true", "root", "secret", "db.internal", "3307", "spots", false},
		{"root@tcp(127.0.0.1:3306)/spots", "root", "", "127.0.0.1", "3306", "spots", false},
		{"root:secret@/spots", "root", "secret", "127.0.0.1", "3306", "spots", false},
		{"no-at-sign", "", "", "", "", "", true},
		{"root:x@tcp(h:1)/", "", "", "", "", "", true},
	}
	for _, tt := range tests {
		user, pass, host, port, name, err := parseDSN(tt.dsn)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDSN(%q): expected error", tt.dsn)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDSN(%q): %v", tt.dsn, err)
			continue
		}
		if user != tt.user || pass != tt.pass || host != tt.host || port != tt.port || name != tt.name {
			t.Errorf("parseDSN(%q) = %q %q %q %q %q", tt.dsn, user, pass, host, port, name)
		}
	}
}

func TestPruneBackups(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"spots-20260115-010000.sql",
		"spots-20260116-010000.sql",
		"spots-20260117-010000.sql",
		"spots-20260118-010000.sql",
		"unrelated.txt",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("dump"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	pruneBackups(dir, 2)

	entries, _ := os.ReadDir(dir)
	var sqls []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".sql" {
			sqls = append(sqls, e.Name())
		}
	}
	if len(sqls) != 2 {
		t.Fatalf("kept %d snapshots, want 2: %v", len(sqls), sqls)
	}
	if sqls[0] != "spots-20260117-010000.sql" || sqls[1] != "spots-20260118-010000.sql" {
		t.Errorf("wrong snapshots kept: %v", sqls)
	}
	if _, err := os.Stat(filepath.Join(dir, "unrelated.txt")); err != nil {
		t.Error("unrelated file removed")
	}
}

func TestAuditDiffShape(t *testing.T) {
	diff := AuditDiff(map[string]string{"status": "pending"}, map[string]string{"status": "approved"})
	var parsed map[string]map[string]string
	if err := json.Unmarshal([]byte(diff), &parsed); err != nil {
		t.Fatalf("diff not JSON: %v", err)
	}
	if parsed["before"]["status"] != "pending" || parsed["after"]["status"] != "approved" {
		t.Errorf("diff = %s", diff)
	}
}
