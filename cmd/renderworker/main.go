// Command renderworker renders a single page in an isolated browser process.
// It reads a base64-encoded JSON request as its only argument, writes exactly
// one JSON result line to stdout, and logs diagnostics to stderr. It exits
// non-zero only when it cannot even produce a structured error result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/signalharvest/harvester/internal/render"
)

func main() {
	logger := stderrLogger()
	defer func() { _ = logger.Sync() }()

	if len(os.Args) != 2 {
		fatal(logger, "usage: renderworker <base64-payload>")
	}

	result := run(logger, os.Args[1])
	line, err := json.Marshal(result)
	if err != nil {
		fatal(logger, fmt.Sprintf("marshal result: %v", err))
	}
	if _, err := fmt.Fprintln(os.Stdout, string(line)); err != nil {
		fatal(logger, fmt.Sprintf("write result: %v", err))
	}
}

// run catches every failure, including panics from the rendering engine, and
// folds it into a structured error result so the caller never has to parse a
// stack trace off stdout.
func run(logger *zap.Logger, payload string) (result render.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("render panic", zap.Any("panic", rec))
			result = render.ErrorResult("panic", fmt.Errorf("%v", rec))
		}
	}()

	req, err := render.DecodeRequest(payload)
	if err != nil {
		logger.Error("bad request payload", zap.Error(err))
		return render.ErrorResult("decode", err)
	}

	logger.Info("rendering",
		zap.String("url", req.URL),
		zap.Bool("article", req.IsArticlePage),
		zap.Int("stealth", req.Stealth),
	)

	engine := render.NewEngine(render.DefaultEngineConfig(), logger)
	result = engine.Run(context.Background(), req)
	if result.Failed() {
		logger.Error("render failed",
			zap.String("stage", result.Error),
			zap.String("message", result.Message),
		)
	} else {
		logger.Info("render complete",
			zap.Int("html_bytes", len(result.HTML)),
			zap.Int64("peak_rss_bytes", result.PeakRSSBytes),
		)
	}
	return result
}

// stderrLogger builds a zap logger pinned to stderr; stdout belongs to the
// result line.
func stderrLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func fatal(logger *zap.Logger, msg string) {
	logger.Error(msg)
	_ = logger.Sync()
	os.Exit(1)
}
