package main

// ---------------------------------------------------------------------------
// cmd_up.go — start the fuseid engine
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"

	"github.com/fuseid-project/fuseid/internal/api"
	"github.com/fuseid-project/fuseid/internal/collect"
	"github.com/fuseid-project/fuseid/internal/core"
	"github.com/fuseid-project/fuseid/internal/ingest"
	"github.com/fuseid-project/fuseid/internal/sink"
)

func cmdUp(args []string) {
	fs := flag.NewFlagSet("up", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Config file path")
	workers := fs.Int("workers", 0, "Worker pool size override")
	dedupWindow := fs.Int("dedup-window", 0, "Dedup window override (seconds)")
	corrWindow := fs.Int("correlation-window", 0, "Correlation window override (seconds)")
	noConsole := fs.Bool("no-console", false, "Disable the console sink")
	fs.Parse(args)

	cfg, err := core.LoadConfig(envConfig(*configPath))
	if err != nil {
		errorf("loading config: %v", err)
	}

	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *dedupWindow > 0 {
		cfg.Dedup.WindowSeconds = *dedupWindow
	}
	if *corrWindow > 0 {
		cfg.Correlation.WindowSeconds = *corrWindow
	}
	if *noConsole {
		cfg.Outputs.Console.Enabled = false
	}

	engine, err := core.NewEngine(cfg)
	if err != nil {
		errorf("initializing engine: %v", err)
	}
	engine.ConfigPath = envConfig(*configPath)

	sinks := sink.NewManager(cfg.Outputs, engine.Logger)
	defer sinks.Close()
	engine.Dispatcher.AddHandler(sinks.Handler())

	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(engine)
		if err := server.Start(); err != nil {
			errorf("starting status API: %v", err)
		}
		defer func() { _ = server.Stop() }()
	}

	fmt.Printf("%s fuseid %s\n", cyan("▶"), version)
	if err := engine.Start(); err != nil {
		errorf("%v", err)
	}

	// Gateways publish raw records onto the bus, so they start after it.
	if cfg.Collectors.Enabled {
		collectors := collect.NewManager(engine.Logger)
		collectors.StartAll(engine.Context(), cfg.Collectors, engine.Bus)
		defer collectors.StopAll()
	}
	if cfg.Syslog.Enabled {
		syslogSrv := ingest.NewSyslogServer(&cfg.Syslog, engine.Bus, engine.Logger)
		if err := syslogSrv.Start(engine.Context()); err != nil {
			errorf("starting syslog gateway: %v", err)
		}
		defer func() { _ = syslogSrv.Stop() }()
	}

	if err := engine.Wait(); err != nil {
		errorf("%v", err)
	}
}
