package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dev-tams/dumpvault/internal/config"
	"github.com/dev-tams/dumpvault/internal/remote"
)

// RunRestore downloads every chunk of one remote base name, in part order,
// and streams the concatenated JSON lines into mongoimport.
func RunRestore(ctx context.Context, cfg *config.Config, dbName, baseName string, drop bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if baseName == "" {
		return fmt.Errorf("restore requires a base name (remote folder) to restore from")
	}

	// pick db
	var db *config.DatabaseConfig
	if dbName == "" {
		if len(cfg.Databases) == 0 {
			return fmt.Errorf("no databases configured")
		}
		db = &cfg.Databases[0]
	} else {
		for i := range cfg.Databases {
			if cfg.Databases[i].Name == dbName {
				db = &cfg.Databases[i]
				break
			}
		}
		if db == nil {
			return fmt.Errorf("db %q not found in config", dbName)
		}
	}

	if db.Type != "mongodb" {
		return fmt.Errorf("unsupported database type: %s {db: %s}", db.Type, db.Name)
	}
	if _, err := exec.LookPath("mongoimport"); err != nil {
		return fmt.Errorf("mongoimport not found in PATH: %w", err)
	}

	stores, err := storesFromConfig(ctx, cfg, map[string]struct{}{db.Backup.Storage: {}})
	if err != nil {
		return err
	}
	store, ok := stores[db.Backup.Storage]
	if !ok {
		return fmt.Errorf("db %s: storage %q not found", db.Name, db.Backup.Storage)
	}

	if err := store.Authenticate(ctx); err != nil {
		return err
	}

	objects, err := store.ListObjects(ctx, baseName+"/")
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return fmt.Errorf("no remote objects under %s/", baseName)
	}
	sortByPartNumber(objects)

	log := logrus.WithFields(logrus.Fields{"db": db.Name, "base": baseName})
	log.WithField("chunks", len(objects)).Info("restoring from remote chunks")

	args := []string{
		"--uri", restoreURI(db.Connection),
		"--db", db.Connection.Database,
		"--collection", baseName,
		"--type", "json",
	}
	if drop {
		args = append(args, "--drop")
	}

	cmd := exec.CommandContext(ctx, "mongoimport", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("mongoimport stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start mongoimport: %w", err)
	}

	downloadErr := streamChunks(ctx, store, objects, stdin)
	closeErr := stdin.Close()
	waitErr := cmd.Wait()

	if downloadErr != nil {
		return fmt.Errorf("download chunks: %w", downloadErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close mongoimport stdin: %w", closeErr)
	}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("mongoimport failed: %w: %s", waitErr, msg)
		}
		return fmt.Errorf("mongoimport failed: %w", waitErr)
	}

	log.Info("restore OK")
	return nil
}

func streamChunks(ctx context.Context, store remote.ObjectStore, objects []remote.Object, w io.Writer) error {
	for _, o := range objects {
		if err := store.DownloadObject(ctx, o.Name, w); err != nil {
			return err
		}
	}
	return nil
}

// sortByPartNumber orders chunk objects by their trailing part index so the
// restore stream matches the original transcode order.
func sortByPartNumber(objects []remote.Object) {
	sort.SliceStable(objects, func(i, j int) bool {
		return partNumber(objects[i].Name) < partNumber(objects[j].Name)
	})
}

func partNumber(name string) int {
	base := path.Base(name)
	i := strings.LastIndex(base, ".part")
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[i+len(".part"):])
	if err != nil {
		return 0
	}
	return n
}

func restoreURI(conn config.ConnectionConfig) string {
	if conn.URI != "" {
		return conn.URI
	}
	host := conn.Host + ":" + strconv.Itoa(conn.Port)
	if conn.User != "" {
		return "mongodb://" + conn.User + ":" + conn.Password + "@" + host
	}
	return "mongodb://" + host
}
