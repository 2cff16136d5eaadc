package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dev-tams/dumpvault/internal/chunk"
	"github.com/dev-tams/dumpvault/internal/diff"
	"github.com/dev-tams/dumpvault/internal/transcode"
)

// transcodeFile converts one binary record file into JSON-lines chunk files
// under chunkDir and returns the ordered chunk paths plus the record count.
// On a transcode or write failure the chunks produced so far stay on disk
// for inspection.
func transcodeFile(path, chunkDir string, maxChunkSize int64) ([]string, int64, error) {
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return nil, 0, fmt.Errorf("create chunk dir: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open dump file: %w", err)
	}
	defer f.Close()

	w := chunk.NewWriter(chunkDir, baseName(path), maxChunkSize)
	records, err := transcode.Transcode(f, w.Write)
	if err != nil {
		_, _ = w.Close()
		return nil, records, fmt.Errorf("transcode %s: %w", path, err)
	}

	paths, err := w.Close()
	if err != nil {
		return paths, records, fmt.Errorf("transcode %s: %w", path, err)
	}
	return paths, records, nil
}

// buildSources transcodes every dump file and groups the resulting chunks
// by base name, preserving dump order for a deterministic upload worklist.
func buildSources(dumpFiles []string, chunkDir string, maxChunkSize int64) ([]diff.Source, int64, error) {
	var (
		sources []diff.Source
		records int64
	)
	for _, df := range dumpFiles {
		paths, n, err := transcodeFile(df, chunkDir, maxChunkSize)
		records += n
		if err != nil {
			return nil, records, err
		}
		if len(paths) == 0 {
			// Empty collection: nothing to upload for this file.
			continue
		}
		sources = append(sources, diff.Source{BaseName: baseName(df), Chunks: paths})
	}
	return sources, records, nil
}

// baseName strips the extension from a dump file name; it is the grouping
// key for chunks and the remote folder prefix.
func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
