package dump

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dev-tams/dumpvault/internal/config"
)

// MongoDumper invokes mongodump and collects the BSON collection files it
// writes.
type MongoDumper struct{}

func (MongoDumper) Dump(ctx context.Context, cfg config.DatabaseConfig, destDir string) ([]string, error) {
	if _, err := exec.LookPath("mongodump"); err != nil {
		return nil, fmt.Errorf("mongodump not found in PATH: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, "mongodump",
		"--uri", connectionURI(cfg.Connection),
		"--db", cfg.Connection.Database,
		"--out", destDir,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("mongodump failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("mongodump failed: %w", err)
	}

	files, err := collectRecordFiles(destDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("mongodump produced no .bson files under %s", destDir)
	}
	return files, nil
}

func connectionURI(conn config.ConnectionConfig) string {
	if conn.URI != "" {
		return conn.URI
	}
	u := url.URL{
		Scheme: "mongodb",
		Host:   conn.Host + ":" + strconv.Itoa(conn.Port),
	}
	if conn.User != "" {
		u.User = url.UserPassword(conn.User, conn.Password)
	}
	return u.String()
}

// collectRecordFiles walks the dump output for collection .bson files,
// skipping the tool's metadata sidecars. Paths come back sorted so runs are
// deterministic.
func collectRecordFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".bson" {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan dump dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
