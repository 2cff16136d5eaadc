package app

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dev-tams/dumpvault/internal/config"
)

// RunCheck verifies the configuration end to end: every referenced storage
// backend must authenticate and answer a listing. It uploads nothing.
func RunCheck(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	usedStorage := make(map[string]struct{}, len(cfg.Databases))
	for _, db := range cfg.Databases {
		usedStorage[db.Backup.Storage] = struct{}{}
	}

	stores, err := storesFromConfig(ctx, cfg, usedStorage)
	if err != nil {
		return err
	}

	for name, st := range stores {
		if err := st.Authenticate(ctx); err != nil {
			return err
		}
		objects, err := st.ListObjects(ctx, "")
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"storage": name,
			"objects": len(objects),
		}).Info("storage check OK")
	}
	return nil
}
