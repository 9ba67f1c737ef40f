package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"standlog/internal/infrastructure/config"
	"standlog/internal/infrastructure/logger"
	"standlog/internal/infrastructure/svc"
	"standlog/internal/interfaces/cli"
)

func main() {
	logger.Setup()
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Error().Err(err).Msg("standlog exited")
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("standlog", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "configs/config.toml", "path to config.toml")
	portFlag := flags.StringP("port", "p", "", "serial port to connect on startup (overrides config)")
	dirFlag := flags.StringP("dir", "d", "", "directory for capture files (overrides config)")
	levelFlag := flags.String("log-level", "", "log level: debug, info, warn, error")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, flags.Changed("config"))
	if err != nil {
		return fmt.Errorf("load config %s: %w", *configPath, err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *dirFlag != "" {
		cfg.Capture.Dir = *dirFlag
	}
	if *levelFlag != "" {
		cfg.App.LogLevel = *levelFlag
	}
	if err := config.Finalize(cfg); err != nil {
		return err
	}
	logger.SetLevel(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer sc.Close()

	log.Info().
		Str("config", *configPath).
		Str("dir", cfg.Capture.Dir).
		Str("encoding", cfg.Serial.Encoding).
		Msg("standlog started")

	if cfg.Serial.Port != "" {
		_ = sc.Controller.Connect(ctx, cfg.Serial.Port)
	}

	shell := cli.NewShell(sc.Controller, sc.Recent, os.Stdin, os.Stdout)
	if err := shell.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadConfig 默认路径的配置文件不存在时使用内置默认值
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("config", path).Msg("config file not found, using defaults")
		return config.Default(), nil
	}
	return nil, err
}
