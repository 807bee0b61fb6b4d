package main

import (
	"context"
	"errors"
	"flag"

	"bedwatch-backend/internal/components/chrono"
	"bedwatch-backend/internal/refresh"
	"bedwatch-backend/internal/service"
	"bedwatch-backend/internal/snapshot"
	"bedwatch-backend/lib/configutil"
	"bedwatch-backend/lib/restyutil"
	"bedwatch-backend/lib/serviceutil"
)

const report_initial_refresh = "server.initial-refresh"

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "Path to the configuration file.")
	initialScrape := flag.Bool("scrape", false, "Trigger a refresh immediately on run.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	tel := InitTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	cfg = cfg.withDefaults()
	if cfg.TriggerSecret == "" {
		tel.ReportWarning("server.config", errors.New("trigger_secret is empty, every trigger will be rejected"))
	}

	store := snapshot.NewStore()
	sinks, closeSinks := InitSinks(ctx, cfg, store, tel)
	defer closeSinks()

	var dump restyutil.Output
	if *verbose {
		out, err := restyutil.NewDirOutput(".dev/resty/upstream")
		if err != nil {
			serviceutil.Fatal("create upstream dump directory", err)
		}
		dump = out
	}

	refresher := InitRefresher(cfg, store, sinks, dump, tel)

	cron := chrono.NewStandardCron(tel)
	defer cron.Stop()
	if cfg.Schedule != "" {
		err = refresher.Schedule(cron, cfg.Schedule)
		if err != nil {
			serviceutil.Fatal("schedule refresh", err)
		}
	}

	if *initialScrape {
		go func() {
			_, err := refresher.Refresh(context.WithoutCancel(ctx))
			if err != nil && !errors.Is(err, refresh.ErrBusy) {
				tel.ReportBroken(report_initial_refresh, err)
			}
		}()
	}

	svc := service.NewService(refresher, store, cfg.TriggerSecret, tel)
	serviceutil.StartHttpServer(ctx, cfg.Port, svc.Handler())
}
