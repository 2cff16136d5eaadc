package diff

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/dev-tams/dumpvault/internal/remote"
)

// Source is one dump file's chunk set, in local production order.
type Source struct {
	BaseName string
	Chunks   []string
}

// Pending maps a local chunk file to the remote object name it should be
// uploaded as.
type Pending struct {
	LocalPath  string
	RemoteName string
}

// RemoteName returns the object name for a chunk of the given base name:
// the base name acts as a folder prefix.
func RemoteName(baseName, chunkFile string) string {
	return path.Join(baseName, chunkFile)
}

// Compute returns the chunks that still need uploading, preserving local
// order.
//
// A base name is treated as fully uploaded when any remote object lives
// under its {baseName}/ folder. Chunk counts are deterministic for a given
// chunk size, so any trace of a prior upload for that base name means the
// whole set was produced and uploaded before; uploads are idempotent at the
// source-file granularity, never re-diffed chunk by chunk. Every remote
// name a chunk could take carries the folder prefix, so folder presence
// subsumes any per-name check.
func Compute(sources []Source, remoteObjects []remote.Object) []Pending {
	var out []Pending
	for _, src := range sources {
		if folderPresent(src.BaseName, remoteObjects) {
			continue
		}
		for _, local := range src.Chunks {
			out = append(out, Pending{
				LocalPath:  local,
				RemoteName: RemoteName(src.BaseName, filepath.Base(local)),
			})
		}
	}
	return out
}

func folderPresent(baseName string, objects []remote.Object) bool {
	folder := baseName + "/"
	for _, o := range objects {
		if strings.HasPrefix(o.Name, folder) {
			return true
		}
	}
	return false
}
