package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Version   int              `mapstructure:"version"`
	WorkDir   string           `mapstructure:"work_dir"`
	LogLevel  string           `mapstructure:"log_level"`
	Databases []DatabaseConfig `mapstructure:"databases"`
	Storage   []StorageConfig  `mapstructure:"storage"`

	Notifications []NotificationConfig `mapstructure:"notifications"`
}

type DatabaseConfig struct {
	Name       string           `mapstructure:"name"`
	Type       string           `mapstructure:"type"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Backup     BackupConfig     `mapstructure:"backup"`
	Retention  RetentionConfig  `mapstructure:"retention"`
}

type ConnectionConfig struct {
	URI      string `mapstructure:"uri"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type BackupConfig struct {
	Schedule string `mapstructure:"schedule"`
	Storage  string `mapstructure:"storage"`

	// ChunkSize caps transcoded chunk files in bytes; zero means the
	// built-in default.
	ChunkSize int64 `mapstructure:"chunk_size"`
}

type RetentionConfig struct {
	KeepDaily   int `mapstructure:"keep_daily"`
	KeepWeekly  int `mapstructure:"keep_weekly"`
	KeepMonthly int `mapstructure:"keep_monthly"`
}

type StorageConfig struct {
	Name string    `mapstructure:"name"`
	Type string    `mapstructure:"type"`
	B2   *B2Config `mapstructure:"b2"`
	S3   *S3Config `mapstructure:"s3"`
}

type B2Config struct {
	KeyID      string `mapstructure:"key_id"`
	AppKey     string `mapstructure:"app_key"`
	BucketID   string `mapstructure:"bucket_id"`
	BucketName string `mapstructure:"bucket_name"`
	AuthURL    string `mapstructure:"auth_url"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type NotificationConfig struct {
	Type   string              `mapstructure:"type"`
	On     []string            `mapstructure:"on"`
	Config NotificationDetails `mapstructure:"config"`
}

type NotificationDetails struct {
	SMTPHost string            `mapstructure:"smtp_host"`
	SMTPPort int               `mapstructure:"smtp_port"`
	From     string            `mapstructure:"from"`
	To       string            `mapstructure:"to"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ExpandEnv(&cfg)

	return &cfg, nil
}

// ExpandEnv substitutes ${VAR} references in credential and identifier
// fields, so secrets live in the environment rather than the config file.
func ExpandEnv(cfg *Config) {
	cfg.WorkDir = os.ExpandEnv(cfg.WorkDir)

	for i := range cfg.Databases {
		db := &cfg.Databases[i]
		db.Name = os.ExpandEnv(db.Name)
		db.Connection.URI = os.ExpandEnv(db.Connection.URI)
		db.Connection.Host = os.ExpandEnv(db.Connection.Host)
		db.Connection.Database = os.ExpandEnv(db.Connection.Database)
		db.Connection.User = os.ExpandEnv(db.Connection.User)
		db.Connection.Password = os.ExpandEnv(db.Connection.Password)
		db.Backup.Schedule = os.ExpandEnv(db.Backup.Schedule)
		db.Backup.Storage = os.ExpandEnv(db.Backup.Storage)
	}

	for i := range cfg.Storage {
		st := &cfg.Storage[i]
		st.Name = os.ExpandEnv(st.Name)
		if st.B2 != nil {
			st.B2.KeyID = os.ExpandEnv(st.B2.KeyID)
			st.B2.AppKey = os.ExpandEnv(st.B2.AppKey)
			st.B2.BucketID = os.ExpandEnv(st.B2.BucketID)
			st.B2.BucketName = os.ExpandEnv(st.B2.BucketName)
		}
		if st.S3 != nil {
			st.S3.Bucket = os.ExpandEnv(st.S3.Bucket)
			st.S3.Region = os.ExpandEnv(st.S3.Region)
			st.S3.Prefix = os.ExpandEnv(st.S3.Prefix)
			st.S3.AccessKey = os.ExpandEnv(st.S3.AccessKey)
			st.S3.SecretKey = os.ExpandEnv(st.S3.SecretKey)
		}
	}

	for i := range cfg.Notifications {
		nt := &cfg.Notifications[i]
		nt.Config.SMTPHost = os.ExpandEnv(nt.Config.SMTPHost)
		nt.Config.From = os.ExpandEnv(nt.Config.From)
		nt.Config.To = os.ExpandEnv(nt.Config.To)
		nt.Config.Username = os.ExpandEnv(nt.Config.Username)
		nt.Config.Password = os.ExpandEnv(nt.Config.Password)
		nt.Config.URL = os.ExpandEnv(nt.Config.URL)
		for k, v := range nt.Config.Headers {
			nt.Config.Headers[k] = os.ExpandEnv(v)
		}
	}
}
