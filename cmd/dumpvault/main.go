package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dev-tams/dumpvault/internal/app"
	"github.com/dev-tams/dumpvault/internal/config"
	"github.com/dev-tams/dumpvault/internal/logging"
)

func main() {
	root := &cli.App{
		Name:  "dumpvault",
		Usage: "incremental MongoDB backups to remote object storage",
		Commands: []*cli.Command{
			{
				Name:  "backup",
				Usage: "dump, chunk and upload every configured database",
				Flags: commonFlags(),
				Action: func(c *cli.Context) error {
					cfg, err := loadValidatedConfig(c.String("config"))
					if err != nil {
						return err
					}

					return app.RunBackup(c.Context, cfg, c.Bool("verbose"))
				},
			},
			{
				Name:  "restore",
				Usage: "download a backup's chunks and import them into a configured database",
				Flags: append(
					commonFlags(),
					&cli.StringFlag{
						Name:  "db",
						Usage: "database name from config (optional; defaults to first database)",
					},
					&cli.StringFlag{
						Name:     "from",
						Required: true,
						Usage:    "base name of the remote backup to restore (the folder prefix)",
					},
					&cli.BoolFlag{
						Name:  "drop",
						Usage: "drop the target collection before importing",
					},
				),
				Action: func(c *cli.Context) error {
					cfg, err := loadValidatedConfig(c.String("config"))
					if err != nil {
						return err
					}
					logging.Init(cfg.LogLevel, c.Bool("verbose"))

					return app.RunRestore(
						c.Context,
						cfg,
						c.String("db"),
						c.String("from"),
						c.Bool("drop"),
					)
				},
			},
			{
				Name:  "test",
				Usage: "verify backup configuration and storage targets",
				Flags: commonFlags(),
				Action: func(c *cli.Context) error {
					cfg, err := loadValidatedConfig(c.String("config"))
					if err != nil {
						return err
					}
					logging.Init(cfg.LogLevel, c.Bool("verbose"))

					return app.RunCheck(c.Context, cfg)
				},
			},
			{
				Name:  "daemon",
				Usage: "run backups on each database's schedule",
				Flags: append(
					commonFlags(),
					&cli.DurationFlag{
						Name:  "run-timeout",
						Usage: "abort a scheduled run that takes longer than this (0 disables)",
						Value: 2 * time.Hour,
					},
				),
				Action: func(c *cli.Context) error {
					cfg, err := loadValidatedConfig(c.String("config"))
					if err != nil {
						return err
					}

					return app.RunDaemon(c.Context, cfg, c.Bool("verbose"), c.Duration("run-timeout"))
				},
			},
		},
	}

	if err := root.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Required: true,
			Usage:    "path to config yaml",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
	}
}

func loadValidatedConfig(cfgPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
