package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tuannm99/novaproto/internal"
	"github.com/tuannm99/novaproto/internal/catalog"
	"github.com/tuannm99/novaproto/internal/engine"
	"github.com/tuannm99/novaproto/server/novasqlwire"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := internal.NewViper()
	var cfgPath string

	cmd := &cobra.Command{
		Use:          "novasqld",
		Short:        "Serve typed query results over the novasql wire protocol.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, cfgPath)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "config file (yaml)")
	f.String("addr", v.GetString("server.addr"), "listen address")
	f.String("codec", v.GetString("server.frame_codec"), "control frame codec: json or cbor")
	f.String("schema", "", "schema file (yaml) loaded at startup")
	f.String("log-level", v.GetString("log.level"), "debug, info, warn or error")
	for key, flag := range map[string]string{
		"server.addr":        "addr",
		"server.frame_codec": "codec",
		"schema.file":        "schema",
		"log.level":          "log-level",
	} {
		cobra.CheckErr(v.BindPFlag(key, f.Lookup(flag)))
	}
	return cmd
}

func run(ctx context.Context, v *viper.Viper, cfgPath string) error {
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	cfg, err := internal.Unmarshal(v)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cat := catalog.New()
	if cfg.Schema.File != "" {
		cat, err = catalog.LoadFile(cfg.Schema.File)
		if err != nil {
			return err
		}
		logger.Info("schema loaded", "file", cfg.Schema.File, "tables", len(cat.Tables()), "generation", cat.Generation())
	}

	db := engine.NewDatabase(cat, logger)
	defer func() { _ = db.Close() }()

	srv, err := novasqlwire.NewServer(novasqlwire.ServerConfig{
		Addr:         cfg.Server.Addr,
		Codec:        cfg.Server.FrameCodec,
		MaxFrameSize: cfg.Server.MaxFrameSize,
	}, db, logger)
	if err != nil {
		return err
	}
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}
