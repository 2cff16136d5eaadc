package config

import (
	"strings"
	"testing"
)

func baseValidConfig() *Config {
	return &Config{
		Version: 1,
		Storage: []StorageConfig{
			{
				Name: "cloud-main",
				Type: "b2",
				B2: &B2Config{
					KeyID:      "key",
					AppKey:     "secret",
					BucketID:   "bkt-id",
					BucketName: "bkt",
				},
			},
		},
		Databases: []DatabaseConfig{
			{
				Name: "db1",
				Type: "mongodb",
				Connection: ConnectionConfig{
					Host:     "127.0.0.1",
					Port:     27017,
					Database: "app",
				},
				Backup: BackupConfig{
					Storage:  "cloud-main",
					Schedule: "*/5 * * * *",
				},
			},
		},
	}
}

func TestValidateAcceptsBaseConfig(t *testing.T) {
	cfg := baseValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidateRejectsInvalidSchedule(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Databases[0].Backup.Schedule = "61 * * * *"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "backup.schedule") {
		t.Fatalf("expected backup.schedule error, got: %v", err)
	}
}

func TestValidateAllowsEmptySchedule(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Databases[0].Backup.Schedule = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error for empty schedule: %v", err)
	}
}

func TestValidateRejectsMissingB2Credentials(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Storage[0].B2.AppKey = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing b2.app_key")
	}
}

func TestValidateRejectsUnknownStorageReference(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Databases[0].Backup.Storage = "nope"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "backup.storage") {
		t.Fatalf("expected backup.storage error, got: %v", err)
	}
}

func TestValidateRejectsDuplicateStorageNames(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Storage = append(cfg.Storage, cfg.Storage[0])

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for duplicate storage names")
	}
}

func TestValidateAcceptsURIOnlyConnection(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Databases[0].Connection = ConnectionConfig{URI: "mongodb://127.0.0.1:27017", Database: "app"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error for uri connection: %v", err)
	}
}

func TestValidateRejectsS3WithoutKeys(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Storage[0] = StorageConfig{
		Name: "cloud-main",
		Type: "s3",
		S3:   &S3Config{Bucket: "b", Region: "us-east-1"},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing s3 keys")
	}
}
