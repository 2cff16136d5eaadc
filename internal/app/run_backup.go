package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dev-tams/dumpvault/internal/config"
	"github.com/dev-tams/dumpvault/internal/diff"
	"github.com/dev-tams/dumpvault/internal/dump"
	"github.com/dev-tams/dumpvault/internal/logging"
	"github.com/dev-tams/dumpvault/internal/notify"
	"github.com/dev-tams/dumpvault/internal/remote"
)

const (
	notificationTimeout = 5 * time.Second
	defaultWorkDir      = "./work"
)

type BackupResult struct {
	DB       string
	Storage  string
	Status   string
	Uploaded int
	Skipped  int
	Bytes    int64
	Records  int64
	Duration time.Duration
	Err      error
}

func RunBackup(ctx context.Context, cfg *config.Config, verbose bool) error {
	_, err := RunBackupWithResults(ctx, cfg, verbose)
	return err
}

// RunBackupWithResults runs the full pipeline for every configured database:
// dump, transcode into chunks, diff against the remote listing, upload what
// is missing, then clean local artifacts. The first failing database halts
// the run; a systemic problem should not be buried under per-file noise.
func RunBackupWithResults(ctx context.Context, cfg *config.Config, verbose bool) ([]BackupResult, error) {
	logging.Init(cfg.LogLevel, verbose)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	usedStorage := make(map[string]struct{}, len(cfg.Databases))
	for _, db := range cfg.Databases {
		usedStorage[db.Backup.Storage] = struct{}{}
	}

	stores, err := storesFromConfig(ctx, cfg, usedStorage)
	if err != nil {
		return nil, err
	}

	dispatcher, err := notify.NewDispatcher(cfg.Notifications)
	if err != nil {
		return nil, err
	}

	results := make([]BackupResult, 0, len(cfg.Databases))
	for _, db := range cfg.Databases {
		started := time.Now().UTC()

		if db.Type != "mongodb" {
			res := BackupResult{
				DB:       db.Name,
				Status:   notify.StatusFailure,
				Duration: time.Since(started),
				Err:      fmt.Errorf("unsupported database type: %s {db: %s}", db.Type, db.Name),
			}
			results = append(results, res)
			notifyResult(ctx, dispatcher, res)
			return results, res.Err
		}

		st, ok := stores[db.Backup.Storage]
		if !ok {
			res := BackupResult{
				DB:       db.Name,
				Status:   notify.StatusFailure,
				Duration: time.Since(started),
				Err:      fmt.Errorf("db %s: storage %q not found", db.Name, db.Backup.Storage),
			}
			results = append(results, res)
			notifyResult(ctx, dispatcher, res)
			return results, res.Err
		}

		res := runOne(ctx, db, st, workDir(cfg), dump.MongoDumper{})
		results = append(results, res)
		notifyResult(ctx, dispatcher, res)
		if res.Err != nil {
			return results, res.Err
		}
	}

	return results, nil
}

// runOne executes the pipeline for a single database against its store.
func runOne(ctx context.Context, db config.DatabaseConfig, store remote.ObjectStore, workDir string, dumper dump.Dumper) BackupResult {
	started := time.Now().UTC()
	log := logrus.WithFields(logrus.Fields{"db": db.Name, "storage": store.Name()})

	res := BackupResult{DB: db.Name, Storage: store.Name(), Status: notify.StatusFailure}
	fail := func(err error) BackupResult {
		res.Duration = time.Since(started)
		res.Err = err
		return res
	}

	runDir := filepath.Join(workDir, db.Name, started.Format("20060102_150405"))
	dumpDir := filepath.Join(runDir, "dump")
	chunkDir := filepath.Join(runDir, "chunks")

	dumpFiles, err := dumper.Dump(ctx, db, dumpDir)
	if err != nil {
		return fail(fmt.Errorf("dump failed for %s: %w", db.Name, err))
	}
	log.WithField("files", len(dumpFiles)).Info("dump complete")

	sources, records, err := buildSources(dumpFiles, chunkDir, db.Backup.ChunkSize)
	res.Records = records
	if err != nil {
		return fail(err)
	}

	if err := store.Authenticate(ctx); err != nil {
		return fail(fmt.Errorf("db %s: %w", db.Name, err))
	}

	remoteObjects, err := store.ListObjects(ctx, "")
	if err != nil {
		return fail(fmt.Errorf("db %s: %w", db.Name, err))
	}

	pending := diff.Compute(sources, remoteObjects)
	totalChunks := 0
	for _, src := range sources {
		totalChunks += len(src.Chunks)
	}
	res.Skipped = totalChunks - len(pending)
	log.WithFields(logrus.Fields{
		"chunks":  totalChunks,
		"pending": len(pending),
		"records": records,
	}).Info("diff complete")

	for _, p := range pending {
		// Cancellation is honored between chunks; a part in flight
		// either completes or the run fails.
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("backup canceled for %s: %w", db.Name, err))
		}
		obj, err := store.UploadObject(ctx, p.LocalPath, p.RemoteName)
		if err != nil {
			return fail(fmt.Errorf("db %s: %w", db.Name, err))
		}
		res.Uploaded++
		res.Bytes += obj.Size
	}

	if err := ApplyRetention(ctx, db, store, log); err != nil {
		return fail(fmt.Errorf("retention failed for %s: %w", db.Name, err))
	}

	// Best effort: a failed cleanup must not fail a successful backup.
	cleanupRunDir(runDir, log)

	res.Status = notify.StatusSuccess
	res.Duration = time.Since(started)
	log.WithFields(logrus.Fields{
		"uploaded": res.Uploaded,
		"skipped":  res.Skipped,
		"bytes":    res.Bytes,
		"duration": res.Duration.Round(time.Millisecond).String(),
	}).Info("backup OK")
	return res
}

func workDir(cfg *config.Config) string {
	if cfg.WorkDir != "" {
		return cfg.WorkDir
	}
	return defaultWorkDir
}

func notifyResult(ctx context.Context, dispatcher *notify.Dispatcher, res BackupResult) {
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}

	event := notify.Event{
		DB:       res.DB,
		Storage:  res.Storage,
		Status:   res.Status,
		Uploaded: res.Uploaded,
		Skipped:  res.Skipped,
		Bytes:    res.Bytes,
		Duration: res.Duration.Round(time.Millisecond).String(),
		Error:    errMsg,
	}

	notifyCtx, cancel := notificationContext(ctx)
	defer cancel()

	if err := dispatcher.Notify(notifyCtx, event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"db":     res.DB,
			"status": res.Status,
		}).Warn("notification failed")
	}
}

func notificationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), notificationTimeout)
	}
	return context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
}
