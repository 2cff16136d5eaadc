package app

import (
	"context"
	"fmt"

	"github.com/dev-tams/dumpvault/internal/config"
	"github.com/dev-tams/dumpvault/internal/remote"
	"github.com/dev-tams/dumpvault/internal/remote/b2"
	s3store "github.com/dev-tams/dumpvault/internal/remote/s3"
)

// storesFromConfig builds only storage backends whose names are present in
// include. If include is nil, all configured backends are built.
func storesFromConfig(ctx context.Context, cfg *config.Config, include map[string]struct{}) (map[string]remote.ObjectStore, error) {
	out := make(map[string]remote.ObjectStore, len(cfg.Storage))

	for _, st := range cfg.Storage {
		if include != nil {
			if _, ok := include[st.Name]; !ok {
				continue
			}
		}

		switch st.Type {
		case "b2":
			if st.B2 == nil {
				return nil, fmt.Errorf("storage %s: b2 config missing", st.Name)
			}
			c, err := b2.New(b2.Options{
				Name:       st.Name,
				KeyID:      st.B2.KeyID,
				AppKey:     st.B2.AppKey,
				BucketID:   st.B2.BucketID,
				BucketName: st.B2.BucketName,
				AuthURL:    st.B2.AuthURL,
			})
			if err != nil {
				return nil, fmt.Errorf("storage %s: %w", st.Name, err)
			}
			out[st.Name] = c

		case "s3":
			if st.S3 == nil {
				return nil, fmt.Errorf("storage %s: s3 config missing", st.Name)
			}
			s, err := s3store.New(ctx, s3store.Options{
				Name:      st.Name,
				Bucket:    st.S3.Bucket,
				Region:    st.S3.Region,
				Prefix:    st.S3.Prefix,
				AccessKey: st.S3.AccessKey,
				SecretKey: st.S3.SecretKey,
			})
			if err != nil {
				return nil, fmt.Errorf("storage %s: %w", st.Name, err)
			}
			out[st.Name] = s

		default:
			return nil, fmt.Errorf("storage %s: unknown type %q", st.Name, st.Type)
		}
	}

	return out, nil
}
