// Command udpserver runs the UDP engine (spec component C4).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calcmesh/pkg/config"
	"calcmesh/pkg/observability"
	"calcmesh/pkg/udpserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath     = flag.String("config", "", "path to a calcserver.yaml config file")
		text           = flag.Bool("text", false, "enable the UDP text dialect in addition to binary")
		quiet          = flag.Bool("quiet", false, "suppress periodic diagnostic counter output")
		exitOnComplete = flag.Bool("exit-on-complete", false, "terminate after the configured number of finalized sessions")
		debug          = flag.Bool("debug", false, "enable debug-level diagnostics")
		trace          = flag.Bool("trace", false, "enable trace-level (per-datagram) diagnostics")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <host>:<port>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return 1
	}
	addr := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "udpserver: config: %v\n", err)
		return 1
	}
	// CLI flags take precedence over the file/env layer for operator toggles.
	if *text {
		cfg.Server.Text = true
	}
	if *quiet {
		cfg.Server.Quiet = true
	}
	if *exitOnComplete {
		cfg.Server.ExitOnComplete = true
		if cfg.Server.TargetComplete == 0 {
			cfg.Server.TargetComplete = 100
		}
	}
	if *debug {
		cfg.Server.Debug = true
		cfg.Log.Level = "debug"
	}
	if *trace {
		cfg.Server.Trace = true
		cfg.Log.Level = "debug"
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "udpserver: logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	engCfg := engineConfigFrom(cfg)
	eng, err := udpserver.NewEngine(addr, engCfg, logger)
	if err != nil {
		logger.Sugar().Errorf("bind failed: %v", err)
		return 1
	}
	defer eng.Close()

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- eng.Run(stop) }()

	if cfg.Server.ExitOnComplete {
		go watchCompletion(eng, cfg.Server.TargetComplete, stop)
	}

	select {
	case <-sig:
		close(stop)
		<-done
		return 0
	case err := <-done:
		if err != nil {
			logger.Sugar().Errorf("engine stopped: %v", err)
			return 1
		}
		return 0
	}
}

func watchCompletion(eng *udpserver.Engine, target int, stop chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		c := eng.Counters()
		if int(c.AnswersOK+c.AnswersNotOK) >= target {
			select {
			case <-stop:
			default:
				close(stop)
			}
			return
		}
		select {
		case <-stop:
			return
		default:
		}
	}
}

func engineConfigFrom(cfg *config.Config) udpserver.Config {
	sched := make([]time.Duration, len(cfg.Server.RetransmitScheduleMS))
	for i, ms := range cfg.Server.RetransmitScheduleMS {
		sched[i] = time.Duration(ms) * time.Millisecond
	}
	return udpserver.Config{
		TaskLifetime:         time.Duration(cfg.Server.TaskLifetimeMS) * time.Millisecond,
		FinalizeGrace:        time.Duration(cfg.Server.FinalizeGraceMS) * time.Millisecond,
		SelectTick:           time.Duration(cfg.Server.SelectTickMS) * time.Millisecond,
		RetransmitSchedule:   sched,
		MaxSessions:          cfg.Server.MaxSessions,
		RetransmitRatePerSec: cfg.Server.RetransmitRatePerSec,
		TextEnabled:          cfg.Server.Text,
		Quiet:                cfg.Server.Quiet,
	}
}
