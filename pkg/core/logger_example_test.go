package core_test

import (
	"context"
	"os"

	"github.com/fluxorio/fluxpool/pkg/core"
	"github.com/sirupsen/logrus"
)

func exampleLogger() core.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{DisableTimestamp: true})
	return core.NewLogrusLogger(l)
}

func ExampleLogger_WithFields() {
	logger := exampleLogger()

	logger.WithFields(map[string]interface{}{
		"asset": "level1/terrain.pak",
		"bytes": 4096,
	}).Info("asset loaded")
	// Output: {"asset":"level1/terrain.pak","bytes":4096,"level":"info","msg":"asset loaded"}
}

func ExampleLogger_WithContext() {
	logger := exampleLogger()

	ctx := core.WithRequestID(context.Background(), "req-42")
	logger.WithContext(ctx).Warn("slow asset")
	// Output: {"level":"warning","msg":"slow asset","request_id":"req-42"}
}

func ExampleNewJSONLogger() {
	logger := core.NewJSONLogger(os.Stderr)
	if err := core.SetLevel(logger, "debug"); err != nil {
		panic(err)
	}
	logger.Debugf("pool %s started with %d workers", "assets", 4)
}
