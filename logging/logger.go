package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/rex/config"
	"github.com/grovetools/rex/util/pathutil"
)

type componentLogger struct {
	entry   *logrus.Entry
	writers []io.Writer
	stderr  bool
}

var (
	loggers   = make(map[string]*componentLogger)
	loggersMu sync.Mutex
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if cl, exists := loggers[component]; exists {
		return cl.entry
	}

	logger := logrus.New()

	var logCfg Config
	if cfg, err := config.LoadDefault(); err == nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			logrus.Warnf("Failed to parse 'logging' config: %v", err)
		}
	}

	levelStr := "info"
	if os.Getenv("REX_LOG_LEVEL") != "" {
		levelStr = os.Getenv("REX_LOG_LEVEL")
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("REX_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}})
	default:
		logger.SetFormatter(&TextFormatter{Config: logCfg.Format})
	}

	cl := &componentLogger{}
	if path := logFilePath(component, logCfg); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			if logCfg.File.Enabled {
				logger.Warnf("Failed to create log directory %s: %v", filepath.Dir(path), err)
			}
		} else if file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			cl.writers = append(cl.writers, file)
		} else if logCfg.File.Enabled {
			logger.Warnf("Failed to open log file %s: %v", path, err)
		}
	}

	stderrMode := "auto"
	if logCfg.Format.StructuredToStderr != "" {
		stderrMode = logCfg.Format.StructuredToStderr
	}
	switch stderrMode {
	case "always":
		cl.stderr = true
	case "auto":
		// Structured logs go to stderr when debugging or when not interactive.
		isDebug := os.Getenv("REX_DEBUG") == "1" || logger.GetLevel() >= logrus.DebugLevel
		isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		cl.stderr = isDebug || !isInteractive
	}

	cl.entry = logger.WithField("component", component)
	cl.apply()
	loggers[component] = cl
	return cl.entry
}

func (cl *componentLogger) apply() {
	writers := cl.writers
	if cl.stderr {
		writers = append(append([]io.Writer{}, writers...), os.Stderr)
	}
	switch len(writers) {
	case 0:
		cl.entry.Logger.SetOutput(io.Discard)
	case 1:
		cl.entry.Logger.SetOutput(writers[0])
	default:
		cl.entry.Logger.SetOutput(io.MultiWriter(writers...))
	}
}

// SetVerbose switches every component logger created so far to debug level
// with output on stderr. Loggers created later pick it up from REX_LOG_LEVEL.
func SetVerbose() {
	os.Setenv("REX_LOG_LEVEL", "debug")

	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, cl := range loggers {
		cl.entry.Logger.SetLevel(logrus.DebugLevel)
		cl.stderr = true
		cl.apply()
	}
}

// logFilePath returns the configured file sink, or the project-local default
// .rex/logs/<component>-<date>.log when the working directory is a rex project.
func logFilePath(component string, cfg Config) string {
	if cfg.File.Enabled && cfg.File.Path != "" {
		return pathutil.Expand(cfg.File.Path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	rexDir := filepath.Join(cwd, ".rex")
	if info, err := os.Stat(rexDir); err != nil || !info.IsDir() {
		return ""
	}
	return filepath.Join(rexDir, "logs", fmt.Sprintf("%s-%s.log", component, time.Now().Format("2006-01-02")))
}
