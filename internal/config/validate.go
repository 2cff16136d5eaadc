package config

import (
	"fmt"
	"strings"

	"github.com/dev-tams/dumpvault/internal/schedule"
)

func (c *Config) Validate() error {
	if c.Version == 0 {
		return fmt.Errorf("config.version must be > 0")
	}

	storageNames := map[string]struct{}{}
	for i, st := range c.Storage {
		if st.Name == "" {
			return fmt.Errorf("storage[%d].name is required", i)
		}
		if _, ok := storageNames[st.Name]; ok {
			return fmt.Errorf("duplicate storage name %q", st.Name)
		}
		storageNames[st.Name] = struct{}{}

		switch st.Type {
		case "b2":
			if st.B2 == nil {
				return fmt.Errorf("storage %s: b2 config missing", st.Name)
			}
			if st.B2.KeyID == "" || st.B2.AppKey == "" {
				return fmt.Errorf("storage %s: b2.key_id and b2.app_key are required (or env expansion failed)", st.Name)
			}
			if st.B2.BucketID == "" || st.B2.BucketName == "" {
				return fmt.Errorf("storage %s: b2.bucket_id and b2.bucket_name are required", st.Name)
			}
		case "s3":
			if st.S3 == nil {
				return fmt.Errorf("storage %s: s3 config missing", st.Name)
			}
			if st.S3.AccessKey == "" || st.S3.SecretKey == "" {
				return fmt.Errorf("storage %s: s3.access_key and s3.secret_key are required (or env expansion failed)", st.Name)
			}
			if st.S3.Bucket == "" || st.S3.Region == "" {
				return fmt.Errorf("storage %s: s3.bucket and s3.region are required", st.Name)
			}
		case "":
			return fmt.Errorf("storage %s: type is required", st.Name)
		default:
			return fmt.Errorf("storage %s: unknown type %q", st.Name, st.Type)
		}
	}

	for i, db := range c.Databases {
		if db.Name == "" {
			return fmt.Errorf("databases[%d].name is required", i)
		}
		if db.Type == "" {
			return fmt.Errorf("databases[%d].type is required (e.g. mongodb)", i)
		}
		if db.Connection.URI == "" {
			if db.Connection.Host == "" || db.Connection.Port == 0 || db.Connection.Database == "" {
				return fmt.Errorf("databases[%d] connection is incomplete (uri, or host/port/database, required)", i)
			}
		}
		if db.Backup.Storage == "" {
			return fmt.Errorf("databases[%d] backup.storage is required (must match a storage.name)", i)
		}
		if _, ok := storageNames[db.Backup.Storage]; !ok {
			return fmt.Errorf("databases[%d] backup.storage=%q not found in storage list", i, db.Backup.Storage)
		}
		if db.Backup.ChunkSize < 0 {
			return fmt.Errorf("databases[%d] backup.chunk_size must be >= 0", i)
		}
		if s := strings.TrimSpace(db.Backup.Schedule); s != "" {
			if _, err := schedule.ParseCronSpec(s); err != nil {
				return fmt.Errorf("databases[%d] backup.schedule %q: %w", i, s, err)
			}
		}
	}
	return nil
}
