// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/net/netutil"

	"github.com/meshwire/meshd/addrbook"
	"github.com/meshwire/meshd/hub"
	"github.com/meshwire/meshd/query"
	"github.com/meshwire/meshd/sched"
	"github.com/meshwire/meshd/staging"
)

// cfg is the loaded configuration.  It is set once in meshdMain and treated
// as immutable afterwards.
var cfg *config

// meshdMain is the real main function for meshd.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is
// called.
func meshdMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	tcfg, _, err := loadConfig(appName)
	if err != nil {
		usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
		fmt.Fprintln(os.Stderr, err)
		var e errSuppressUsage
		if !errors.As(err, &e) {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem such as the RPC server.
	ctx := shutdownListener()
	defer meshLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	meshLog.Infof("Version %s (Go version %s %s/%s)", version(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	meshLog.Infof("Home dir: %s", cfg.HomeDir)
	if cfg.NoFileLogging {
		meshLog.Info("File logging disabled")
	}

	// Load the address book.
	book, err := addrbook.Open(filepath.Join(cfg.DataDir, "addrbook"))
	if err != nil {
		meshLog.Errorf("Unable to load address book: %v", err)
		return err
	}
	defer func() {
		meshLog.Infof("Gracefully shutting down the address book...")
		book.Close()
	}()

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Build the connection pools.
	dialer := newMultiserverDialer(cfg)
	connHub, err := hub.New(&hub.Config{
		Dialer:  dialer,
		Timeout: cfg.DialTimeout,
	})
	if err != nil {
		meshLog.Errorf("Unable to create hub: %v", err)
		return err
	}
	defer connHub.Close()

	stagingPool := staging.New(&staging.Config{
		IsLive: func(addr string) bool {
			_, live := connHub.GetState(addr)
			return live
		},
	})
	defer stagingPool.Close()

	peerQuery := query.New(book, connHub, stagingPool)

	// Build the scheduler.  Optional collaborators (social graph, message
	// log, LAN discovery, Bluetooth, network and wakeup detection) are
	// provided by the embedding application; running standalone, the
	// scheduler falls back to null implementations of each.
	scheduler, err := sched.New(&sched.Config{
		Book:           book,
		Hub:            connHub,
		Staging:        stagingPool,
		Query:          peerQuery,
		Seeds:          cfg.Seeds,
		NoSeedClass:    cfg.NoSeedClass,
		NoPubDiscovery: cfg.NoPubDiscovery,
		NoAutoPopulate: cfg.NoAutoPopulate,
	})
	if err != nil {
		meshLog.Errorf("Unable to create scheduler: %v", err)
		return err
	}
	defer scheduler.Stop()

	if !cfg.NoAutostart {
		if err := scheduler.Start(); err != nil {
			meshLog.Errorf("Unable to start scheduler: %v", err)
			return err
		}
	}

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Start the RPC server.
	if !cfg.NoRPC {
		listener, err := net.Listen("tcp", cfg.RPCListen)
		if err != nil {
			meshLog.Errorf("Unable to listen on %s: %v", cfg.RPCListen, err)
			return err
		}
		listener = netutil.LimitListener(listener, cfg.RPCMaxClients)

		rpcServer := newRPCServer(&rpcserverConfig{
			Listeners:   []net.Listener{listener},
			RPCUser:     cfg.RPCUser,
			RPCPass:     cfg.RPCPass,
			PingTimeout: cfg.PingTimeout,
			Book:        book,
			Hub:         connHub,
			Staging:     stagingPool,
			Query:       peerQuery,
			Scheduler:   scheduler,
		})
		go rpcServer.Run(ctx)
	}

	// Block until the context is cancelled, which happens when the
	// interrupt signal is received from an OS signal or shutdown is
	// requested through one of the subsystems.
	<-ctx.Done()
	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := meshdMain(); err != nil {
		os.Exit(1)
	}
}
