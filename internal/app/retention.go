package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dev-tams/dumpvault/internal/config"
	"github.com/dev-tams/dumpvault/internal/remote"
)

// folderEntry is one remote base-name folder with the timestamp of its most
// recent object.
type folderEntry struct {
	name    string
	t       time.Time
	objects []remote.Object
}

// ApplyRetention prunes remote folders beyond the configured daily, weekly,
// and monthly keep counts. Folders are aged by their newest object's upload
// timestamp. Deleting only whole folders keeps the diff's folder-presence
// check honest: a folder either fully exists or is fully gone.
func ApplyRetention(ctx context.Context, db config.DatabaseConfig, store remote.ObjectStore, log *logrus.Entry) error {
	r := db.Retention
	if r.KeepDaily <= 0 && r.KeepWeekly <= 0 && r.KeepMonthly <= 0 {
		return nil
	}

	objects, err := store.ListObjects(ctx, "")
	if err != nil {
		return fmt.Errorf("retention list: %w", err)
	}
	if len(objects) == 0 {
		return nil
	}

	byFolder := map[string]*folderEntry{}
	for _, o := range objects {
		i := strings.IndexByte(o.Name, '/')
		if i <= 0 {
			continue
		}
		folder := o.Name[:i]
		e, ok := byFolder[folder]
		if !ok {
			e = &folderEntry{name: folder}
			byFolder[folder] = e
		}
		e.objects = append(e.objects, o)
		if o.UploadedAt.After(e.t) {
			e.t = o.UploadedAt
		}
	}

	entries := make([]folderEntry, 0, len(byFolder))
	for _, e := range byFolder {
		entries = append(entries, *e)
	}
	// newest first
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].t.After(entries[j].t)
	})

	keep := selectKeep(entries, r.KeepDaily, r.KeepWeekly, r.KeepMonthly)

	deleted := 0
	for _, e := range entries {
		if keep[e.name] {
			continue
		}
		for _, o := range e.objects {
			if err := store.DeleteObject(ctx, o.Name, o.ID); err != nil {
				return fmt.Errorf("retention delete %s: %w", o.Name, err)
			}
			deleted++
		}
	}

	log.WithFields(logrus.Fields{
		"folders": len(entries),
		"kept":    len(keep),
		"deleted": deleted,
	}).Info("retention applied")
	return nil
}

// selectKeep picks the folders to retain: at most one per day, per ISO
// week, and per month, newest first, up to each keep count.
func selectKeep(entries []folderEntry, keepDaily, keepWeekly, keepMonthly int) map[string]bool {
	keep := make(map[string]bool, len(entries))

	daily := make(map[string]bool)
	weekly := make(map[string]bool)
	monthly := make(map[string]bool)

	dCount, wCount, mCount := 0, 0, 0

	for _, e := range entries {
		t := e.t.UTC()

		if keepDaily > 0 && dCount < keepDaily {
			b := t.Format("2006-01-02")
			if !daily[b] {
				daily[b] = true
				keep[e.name] = true
				dCount++
			}
		}

		if keepWeekly > 0 && wCount < keepWeekly {
			y, w := t.ISOWeek()
			b := fmt.Sprintf("%04d-W%02d", y, w)
			if !weekly[b] {
				weekly[b] = true
				keep[e.name] = true
				wCount++
			}
		}

		if keepMonthly > 0 && mCount < keepMonthly {
			b := t.Format("2006-01")
			if !monthly[b] {
				monthly[b] = true
				keep[e.name] = true
				mCount++
			}
		}

		if (keepDaily <= 0 || dCount >= keepDaily) &&
			(keepWeekly <= 0 || wCount >= keepWeekly) &&
			(keepMonthly <= 0 || mCount >= keepMonthly) {
			break
		}
	}

	return keep
}
