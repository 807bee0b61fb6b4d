package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"bedwatch-backend/internal/components/telemetry"
	"bedwatch-backend/lib/configutil"
	"bedwatch-backend/lib/serviceutil"
)

func InitTelemetry(ctx context.Context, verbose bool) telemetry.API {
	telemetry.InitSlog(verbose)

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	cfg, err := configutil.ReadConfig[telemetry.Config]("telemetry.json5")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		serviceutil.Fatal("read telemetry config", err)
	}

	t, err := telemetry.Setup(ctx, "bedwatch-server", cfg)
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	go func() {
		<-ctx.Done()
		err := t.Shutdown(context.Background())
		if err != nil {
			slog.Warn("shutdown telemetry", "err", err)
		}
	}()

	tel := telemetry.SlogAPI{}
	telemetry.InstrumentPerfStats(ctx, tel)
	return tel
}
