// Package logs builds the server's zap logger the way the rest of the
// ecosystem does: console core for interactive use, optional rotated
// file core for long-running deployments.
package logs

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level names accepted on the CLI and in config.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config controls logger construction.
type Config struct {
	Level         string
	JSONFormat    bool
	EnableConsole bool
	EnableFile    bool
	Filename      string
	MaxSizeMB     int
	MaxBackups    int
	MaxAgeDays    int
	Compress      bool

	// Stdio is true when the server runs in stdio transport mode, in
	// which case stdout is reserved for JSON-RPC frames and all logs
	// must go to stderr regardless of EnableConsole's destination.
	Stdio bool
}

// Default returns the server's default logging configuration: console
// only, human-readable encoding, info level.
func Default() *Config {
	return &Config{
		Level:         LevelInfo,
		EnableConsole: true,
		Filename:      "limbodancer-mcp.log",
		MaxSizeMB:     10,
		MaxBackups:    5,
		MaxAgeDays:    30,
		Compress:      true,
	}
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case LevelDebug:
		return zap.DebugLevel
	case LevelWarn:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// New builds a *zap.Logger from cfg. The returned logger must be flushed
// with Sync before process exit.
func New(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		cfg = Default()
	}
	level := parseLevel(cfg.Level)

	var cores []zapcore.Core
	if cfg.EnableConsole || cfg.Stdio {
		cores = append(cores, zapcore.NewCore(consoleEncoder(cfg), zapcore.AddSync(os.Stderr), level))
	}
	if cfg.EnableFile {
		core, err := fileCore(cfg, level)
		if err != nil {
			return nil, fmt.Errorf("build file log core: %w", err)
		}
		cores = append(cores, core)
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("no log outputs configured")
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func consoleEncoder(cfg *Config) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.JSONFormat {
		return zapcore.NewJSONEncoder(encCfg)
	}
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encCfg)
}

func fileCore(cfg *Config, level zapcore.Level) (zapcore.Core, error) {
	writer := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(writer), level), nil
}
