package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/n5hz/wavetuner/internal/ampfleet"
	"github.com/n5hz/wavetuner/internal/config"
	"github.com/n5hz/wavetuner/internal/controller"
	"github.com/n5hz/wavetuner/internal/driver"
	"github.com/n5hz/wavetuner/internal/gainfile"
	"github.com/n5hz/wavetuner/internal/generator"
	"github.com/n5hz/wavetuner/internal/logging"
	"github.com/n5hz/wavetuner/internal/telemetry"
	"github.com/n5hz/wavetuner/internal/wavelog"
)

func main() {
	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}

	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		log.Fatalf("log level: %v", err)
	}
	format, err := logging.ParseFormat(cfg.logFormat)
	if err != nil {
		log.Fatalf("log format: %v", err)
	}
	diag := logging.New(level, format, os.Stderr)
	logging.SetDefault(diag)

	tuneCfg, err := config.Load(cfg.configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	var reporters []telemetry.Reporter
	if cfg.webAddr != "" {
		hub := telemetry.NewHub(cfg.historyLimit)
		reporters = append(reporters, hub)
		go telemetry.NewWebServer(cfg.webAddr, hub).Start(ctx)
		log.Printf("web interface: http://localhost%s", cfg.webAddr)
	} else {
		reporters = append(reporters, telemetry.NewLogReporter(diag))
	}
	if cfg.metricsAddr != "" {
		metrics, reg := telemetry.NewMetrics()
		reporters = append(reporters, metrics)
		go telemetry.ServeMetrics(ctx, cfg.metricsAddr, reg)
		log.Printf("metrics: http://localhost%s/metrics", cfg.metricsAddr)
	}
	reporter := telemetry.MultiReporter(reporters)

	wlog, err := wavelog.Open(cfg.logDir, diag)
	if err != nil {
		log.Fatalf("open wave log: %v", err)
	}
	defer wlog.Close()

	editor := gainfile.New(tuneCfg)

	newRunner := func(scriptPath string) driver.Runner {
		fleet := ampfleet.New(diag)
		c := controller.New(fleet, func(scriptPath string) controller.Process {
			return generator.New(scriptPath)
		}, editor, wlog, reporter, diag, tuneCfg)
		c.WithDiscoverOptions(ampfleet.DiscoverOptions{NetworkTimeout: cfg.mdnsTimeout})
		return c
	}

	opts := driver.Options{
		Dir:       cfg.dir,
		Category:  driver.Category(cfg.category),
		AmpModel:  controller.AmpModel(cfg.ampModel),
		TargetMin: cfg.targetMin,
		TargetMax: cfg.targetMax,
		Critical:  controller.Critical(cfg.critical),
		Watch:     cfg.watch,
	}

	if !cfg.batch {
		formOpts, err := driver.PromptForm()
		if err != nil {
			log.Fatalf("prompt: %v", err)
		}
		formOpts.Watch = cfg.watch
		opts = formOpts
	} else if err := opts.Validate(); err != nil {
		log.Fatalf("invalid batch options: %v", err)
	}

	if opts.Watch {
		stop := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(stop)
		}()
		if err := driver.Watch(opts, tuneCfg, newRunner, diag, stop); err != nil {
			log.Fatalf("watch: %v", err)
		}
		return
	}

	if err := driver.RunBatch(opts, tuneCfg, newRunner, diag); err != nil {
		log.Fatalf("batch: %v", err)
	}
}

type cliConfig struct {
	dir         string
	category    int
	ampModel    string
	targetMin   float64
	targetMax   float64
	critical    string
	batch       bool
	watch       bool
	configPath  string
	logDir      string
	logLevel    string
	logFormat   string
	webAddr      string
	metricsAddr  string
	historyLimit int
	mdnsTimeout  time.Duration
}

func parseConfig(args []string, lookup func(string) (string, bool)) (cliConfig, error) {
	cfg := cliConfig{}
	fs := flag.NewFlagSet("wavetuner", flag.ContinueOnError)

	fs.StringVar(&cfg.dir, "dir", envString(lookup, "WAVETUNER_DIR", ""), "Directory of waveform scripts")
	fs.IntVar(&cfg.category, "category", envInt(lookup, "WAVETUNER_CATEGORY", 4), "File category: 1=L1 only, 2=L2 only, 3=dual, 4=all")
	fs.StringVar(&cfg.ampModel, "amp-model", envString(lookup, "WAVETUNER_AMP_MODEL", "x300"), "Amplifier model (x300|N321)")
	fs.Float64Var(&cfg.targetMin, "target-min", envFloat(lookup, "WAVETUNER_TARGET_MIN", 20), "Target minimum power (dBm)")
	fs.Float64Var(&cfg.targetMax, "target-max", envFloat(lookup, "WAVETUNER_TARGET_MAX", 30), "Target maximum power (dBm)")
	fs.StringVar(&cfg.critical, "critical", envString(lookup, "WAVETUNER_CRITICAL", "HIGH"), "Critical bound (HIGH|LOW)")
	fs.BoolVar(&cfg.batch, "batch", envBool(lookup, "WAVETUNER_BATCH", false), "Skip the interactive form, use flags/env directly")
	fs.BoolVar(&cfg.watch, "watch", envBool(lookup, "WAVETUNER_WATCH", false), "Keep running and tune new matching files as they appear")
	fs.StringVar(&cfg.configPath, "config", envString(lookup, "WAVETUNER_CONFIG", "wavetuner.yaml"), "Path to the tuning config YAML")
	fs.StringVar(&cfg.logDir, "log-dir", envString(lookup, "WAVETUNER_LOG_DIR", "."), "Directory for the per-run result log")
	fs.StringVar(&cfg.logLevel, "log-level", envString(lookup, "WAVETUNER_LOG_LEVEL", "info"), "Diagnostic log level")
	fs.StringVar(&cfg.logFormat, "log-format", envString(lookup, "WAVETUNER_LOG_FORMAT", "text"), "Diagnostic log format (text|json)")
	fs.StringVar(&cfg.webAddr, "web-addr", envString(lookup, "WAVETUNER_WEB_ADDR", ""), "Optional web telemetry listen address (e.g. :8080)")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", envString(lookup, "WAVETUNER_METRICS_ADDR", ""), "Optional Prometheus metrics listen address (e.g. :9090)")
	fs.IntVar(&cfg.historyLimit, "history-limit", envInt(lookup, "WAVETUNER_HISTORY_LIMIT", 500), "Maximum samples retained for the web telemetry history")
	mdnsSeconds := fs.Int("mdns-timeout-seconds", envInt(lookup, "WAVETUNER_MDNS_TIMEOUT_SECONDS", 0), "mDNS browse timeout in seconds; 0 disables network amp discovery")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	cfg.mdnsTimeout = time.Duration(*mdnsSeconds) * time.Second
	return cfg, nil
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(lookup func(string) (string, bool), key string, def float64) float64 {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}
