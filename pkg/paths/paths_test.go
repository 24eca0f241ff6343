package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLayoutContract(t *testing.T) {
	r := New("/data")
	tests := []struct {
		got  string
		want string
	}{
		{r.RawTodayDir("v1"), "/data/raw/today/v1"},
		{r.RawPagePath("v1", "abc123"), "/data/raw/today/v1/abc123.html"},
		{r.RawMetadataPath("v1"), "/data/raw/today/v1/metadata.json"},
		{r.RawPreviousDir("v1"), "/data/raw/previous/v1"},
		{r.MergedPath("v1"), "/data/silver_merged/all/v1.json"},
		{r.TrimmedPath("v1"), "/data/silver_trimmed/all/v1.json"},
		{r.TrimmedPreviousPath("v1"), "/data/silver_trimmed/previous/v1.json"},
		{r.IncrementalPath("v1"), "/data/silver_trimmed/incremental/v1.json"},
		{r.GoldPath("v1"), "/data/gold/v1.json"},
		{r.BulkSentinelPath(), "/data/gold/.bulk-complete"},
		{r.ConfigPath(), "/data/config/config.json"},
		{r.AreasPath(), "/data/config/areas.json"},
		{r.SpotsSnapshotPath(), "/data/reporting/spots.json"},
	}
	for _, tt := range tests {
		if filepath.ToSlash(tt.got) != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestDataDirOverride(t *testing.T) {
	t.Setenv("DATA_DIR", "/elsewhere")
	r := New("")
	if !strings.HasPrefix(r.GoldPath("v"), "/elsewhere") {
		t.Errorf("DATA_DIR override ignored: %q", r.GoldPath("v"))
	}
}

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)
	path := filepath.Join(dir, "sub", "doc.json")

	in := map[string]any{"a": "b", "n": float64(3)}
	if err := r.WriteJSONAtomic(path, in); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}

	out := map[string]any{}
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if out["a"] != "b" || out["n"] != float64(3) {
		t.Errorf("round trip mismatch: %v", out)
	}

	// No tmp files left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestWriteFileAtomicOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := WriteFileAtomic(path, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("two")); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("content = %q", data)
	}
}
