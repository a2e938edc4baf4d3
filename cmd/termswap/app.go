package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/raaihank/termswap/internal/config"
	"github.com/raaihank/termswap/internal/engine"
	"github.com/raaihank/termswap/internal/logger"
	"github.com/raaihank/termswap/internal/obfuscation"
	"github.com/raaihank/termswap/internal/rules"
	"github.com/raaihank/termswap/internal/version"
	"github.com/raaihank/termswap/internal/workspace"
)

// app holds the services built from the configuration
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	fs      afero.Fs
	holder  *rules.Holder
	engine  *engine.Engine
	closers []func() error
}

// newApp loads the configuration and wires the engine with the configured
// storage backends.
func newApp(cfg *config.Config) (*app, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, log: log, fs: afero.NewOsFs()}
	if err := a.init(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init() error {
	ws := a.cfg.Workspace

	source := rules.NewSource(a.fs, ws.Resolve(ws.RulesFile), ws.MetadataPrefix, a.log.Logger)
	holder, err := rules.NewHolder(source, a.log.Logger)
	if err != nil {
		return err
	}
	a.holder = holder

	var history version.HistoryLog
	switch a.cfg.Storage.History {
	case "postgres":
		pg, err := version.NewPostgresHistory(&a.cfg.Storage.Postgres, a.log.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)
		history = pg
	default:
		history = version.NewFileHistory(a.fs, ws.Resolve(ws.HistoryFile))
	}

	var store obfuscation.MapStore
	switch a.cfg.Storage.ObfuscationMap {
	case "redis":
		rs, err := obfuscation.NewRedisStore(&a.cfg.Storage.Redis, a.log.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rs.Close)
		store = rs
	default:
		store = obfuscation.NewFileStore(a.fs, ws.Resolve(ws.MapFile))
	}

	mapper, err := obfuscation.NewMapper(a.cfg.Obfuscation, store, a.log.Logger)
	if err != nil {
		return err
	}

	versions := version.NewStore(a.fs, version.Config{
		BackupDir:       ws.Resolve(ws.BackupDir),
		BackupRetention: ws.BackupRetention,
		HistoryCapacity: ws.HistoryCapacity,
	}, history, a.log.Logger)

	baseDir, err := filepath.Abs(ws.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base dir %s: %w", ws.BaseDir, err)
	}

	a.engine = engine.New(engine.Deps{
		Fs:       a.fs,
		BaseDir:  baseDir,
		Rules:    holder,
		Work:     workspace.NewFile(a.fs, ws.Resolve(ws.WorkFile)),
		Versions: versions,
		Mapper:   mapper,
	}, a.log.Logger)

	opLog := a.log.WithComponent("engine")
	a.engine.OnResult(func(r engine.Result) {
		opLog.LogOperation(string(r.Mode), r.TotalReplacements, r.OriginalHash, r.NewHash, len(r.Warnings))
	})

	a.log.Debug("Engine ready",
		zap.String("base_dir", baseDir),
		zap.Int("rules", holder.Table().Len()),
		zap.String("history", a.cfg.Storage.History),
		zap.String("obfuscation_map", a.cfg.Storage.ObfuscationMap))
	return nil
}

func (a *app) close() error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c())
	}
	a.log.Sync()
	return err
}

// withApp loads the configuration, runs fn and releases the app
func withApp(fn func(a *app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	return multierr.Append(fn(a), a.close())
}
