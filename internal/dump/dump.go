package dump

import (
	"context"

	"github.com/dev-tams/dumpvault/internal/config"
)

// Dumper produces a directory of length-prefixed binary record files for one
// configured database and returns the record file paths in a stable order.
// The rest of the pipeline treats each file purely as a record stream.
type Dumper interface {
	Dump(ctx context.Context, cfg config.DatabaseConfig, destDir string) ([]string, error)
}
