package utils

import (
	"strings"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
)

var Log = logrus.New()

func SetLogLevel(level string) {
	// We are not using logrus' trace and panic levels
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(log.DebugLevel)
	case "info":
		Log.SetLevel(log.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(log.WarnLevel)
	case "error":
		Log.SetLevel(log.ErrorLevel)
	case "fatal":
		Log.SetLevel(log.FatalLevel)
	default:
		log.Fatal("Bad error level string")
	}
}

// LeveledLogger adapts Log to the retryablehttp.LeveledLogger interface so retry
// attempts show up at debug level instead of going to stderr.
type LeveledLogger struct{}

func (LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	Log.WithFields(fields(keysAndValues)).Error(msg)
}

func (LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	Log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	Log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	Log.WithFields(fields(keysAndValues)).Warn(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}
