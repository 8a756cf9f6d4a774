// Command tcpserver runs the TCP engine (spec component C5).
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
	"calcmesh/pkg/task"
	"calcmesh/pkg/tcpserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a calcserver.yaml config file")
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
		fmt.Fprintf(os.Stderr, "tcpserver: config: %v\n", err)
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcpserver: logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	engCfg := tcpserver.Config{
		OpTimeout:      time.Duration(cfg.Server.OpTimeoutMS) * time.Millisecond,
		SupportsText:   cfg.Server.Text,
		SupportsBinary: true,
	}
	gen := task.NewDefaultGenerator()
	eng, err := tcpserver.NewEngine(addr, engCfg, gen, logger)
	if err != nil {
		logger.Sugar().Errorf("bind failed: %v", err)
		return 1
	}
	defer eng.Close()

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- eng.Serve(stop) }()

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
