// meshcore-simulator runs the bundled provisioning/configuration/vendor
// command demonstration against an in-memory scripted Sidus light.
//
// It exercises the whole engine (pkg/meshproto, pkg/provisioning,
// pkg/configclient, pkg/sidus) without any real BLE hardware.
//
// Usage:
//
//	meshcore-simulator [-timeout 10s] [-verbose]
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/sidusmesh/meshcore/examples/simulator"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "overall deadline for the simulated run")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	factory := logging.NewDefaultLoggerFactory()
	if *verbose {
		factory.DefaultLogLevel = logging.LogLevelDebug
	} else {
		factory.DefaultLogLevel = logging.LogLevelInfo
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := simulator.Run(ctx, factory); err != nil {
		log.Fatalf("simulator run failed: %v", err)
	}
	log.Println("simulator run completed")
}
