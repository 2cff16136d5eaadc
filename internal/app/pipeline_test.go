package app

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func writeRecordFile(t *testing.T, dir, name string, docs int) string {
	t.Helper()

	var buf bytes.Buffer
	for i := 0; i < docs; i++ {
		raw, err := bson.Marshal(bson.D{
			{Key: "seq", Value: int32(i)},
			{Key: "name", Value: fmt.Sprintf("doc-%d", i)},
		})
		if err != nil {
			t.Fatalf("marshal doc %d: %v", i, err)
		}
		buf.Write(raw)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write record file: %v", err)
	}
	return path
}

func TestTranscodeFileProducesChunks(t *testing.T) {
	dir := t.TempDir()
	chunkDir := filepath.Join(dir, "chunks")
	src := writeRecordFile(t, dir, "users.bson", 10)

	paths, records, err := transcodeFile(src, chunkDir, 0)
	if err != nil {
		t.Fatalf("transcodeFile: %v", err)
	}
	if records != 10 {
		t.Fatalf("expected 10 records, got %d", records)
	}
	if len(paths) != 1 {
		t.Fatalf("expected a single chunk under the default size, got %d", len(paths))
	}
	if got := filepath.Base(paths[0]); got != "users.jsonl.part1" {
		t.Fatalf("unexpected chunk name: %s", got)
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read chunk: %v", err)
	}
	lines := bytes.Count(data, []byte("\n"))
	if lines != 10 {
		t.Fatalf("expected 10 JSON lines, got %d", lines)
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		t.Fatalf("chunk must end with a newline")
	}
}

func TestTranscodeFileRollsChunksAtSizeCap(t *testing.T) {
	dir := t.TempDir()
	chunkDir := filepath.Join(dir, "chunks")
	src := writeRecordFile(t, dir, "orders.bson", 20)

	// A tiny cap forces one record per chunk.
	paths, records, err := transcodeFile(src, chunkDir, 1)
	if err != nil {
		t.Fatalf("transcodeFile: %v", err)
	}
	if records != 20 {
		t.Fatalf("expected 20 records, got %d", records)
	}
	if len(paths) != 20 {
		t.Fatalf("expected 20 chunks with a 1-byte cap, got %d", len(paths))
	}
	for i, p := range paths {
		want := fmt.Sprintf("orders.jsonl.part%d", i+1)
		if got := filepath.Base(p); got != want {
			t.Fatalf("chunk %d: got %s want %s", i, got, want)
		}
	}
}

func TestTranscodeFileRejectsCorruptStream(t *testing.T) {
	dir := t.TempDir()
	chunkDir := filepath.Join(dir, "chunks")

	src := filepath.Join(dir, "bad.bson")
	// Length prefix of 2 is below the minimum record size.
	if err := os.WriteFile(src, []byte{2, 0, 0, 0, 0}, 0o644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}

	if _, _, err := transcodeFile(src, chunkDir, 0); err == nil {
		t.Fatalf("expected corrupt stream error")
	}
}

func TestBuildSourcesGroupsByBaseName(t *testing.T) {
	dir := t.TempDir()
	chunkDir := filepath.Join(dir, "chunks")

	users := writeRecordFile(t, dir, "users.bson", 3)
	orders := writeRecordFile(t, dir, "orders.bson", 2)

	sources, records, err := buildSources([]string{users, orders}, chunkDir, 0)
	if err != nil {
		t.Fatalf("buildSources: %v", err)
	}
	if records != 5 {
		t.Fatalf("expected 5 records total, got %d", records)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].BaseName != "users" || sources[1].BaseName != "orders" {
		t.Fatalf("sources out of dump order: %s, %s", sources[0].BaseName, sources[1].BaseName)
	}
}

func TestBuildSourcesSkipsEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	chunkDir := filepath.Join(dir, "chunks")

	empty := filepath.Join(dir, "empty.bson")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty file: %v", err)
	}
	users := writeRecordFile(t, dir, "users.bson", 1)

	sources, records, err := buildSources([]string{empty, users}, chunkDir, 0)
	if err != nil {
		t.Fatalf("buildSources: %v", err)
	}
	if records != 1 {
		t.Fatalf("expected 1 record, got %d", records)
	}
	if len(sources) != 1 || sources[0].BaseName != "users" {
		t.Fatalf("expected only the users source, got %+v", sources)
	}
}

func TestBaseNameStripsExtension(t *testing.T) {
	cases := map[string]string{
		"/tmp/dump/users.bson":   "users",
		"orders.bson":            "orders",
		"plain":                  "plain",
		"/a/b/metrics.2026.bson": "metrics.2026",
	}
	for in, want := range cases {
		if got := baseName(in); got != want {
			t.Fatalf("baseName(%q) = %q, want %q", in, got, want)
		}
	}
}
