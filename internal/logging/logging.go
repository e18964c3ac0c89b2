package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Cfg struct {
	Level string
	// JSON switches stderr to the JSON encoder. The file is always JSON.
	JSON bool
	// File receives every entry as a JSON line. Empty disables it.
	File string
}

func New(c Cfg) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var console zapcore.Encoder
	if c.JSON {
		console = zapcore.NewJSONEncoder(encCfg)
	} else {
		console = zapcore.NewConsoleEncoder(encCfg)
	}
	// the report goes to stdout, logs stay on stderr
	cores := []zapcore.Core{zapcore.NewCore(console, zapcore.Lock(os.Stderr), level)}

	if c.File != "" {
		f, _, err := zap.Open(c.File)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), f, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
