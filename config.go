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
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/meshwire/meshd/msaddr"
)

const (
	defaultConfigFilename = "meshd.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "meshd.log"
	defaultLogLevel       = "info"
	defaultRPCListen      = "127.0.0.1:8422"
	defaultRPCMaxClients  = 10
	defaultDialTimeout    = 30 * time.Second
	defaultPingTimeout    = 5 * time.Minute

	// minPingTimeout and maxPingTimeout clamp the configurable heartbeat
	// timeout.
	minPingTimeout = 10 * time.Second
	maxPingTimeout = 30 * time.Minute
)

// defaultHomeDir returns the default application home directory.
func defaultHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".meshd")
}

// config defines the configuration options for meshd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	HomeDir        string        `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile     string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir        string        `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir         string        `long:"logdir" description:"Directory to log output"`
	NoFileLogging  bool          `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel     string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`
	ShowVersion    bool          `short:"V" long:"version" description:"Display version information and exit"`
	RPCUser        string        `short:"u" long:"rpcuser" description:"Username for RPC connections"`
	RPCPass        string        `short:"P" long:"rpcpass" default-mask:"-" description:"Password for RPC connections"`
	RPCListen      string        `long:"rpclisten" description:"Interface/port to listen for RPC connections"`
	RPCMaxClients  int           `long:"rpcmaxclients" description:"Max number of RPC clients"`
	NoRPC          bool          `long:"norpc" description:"Disable the RPC server"`
	Proxy          string        `long:"proxy" description:"Connect through SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser      string        `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass      string        `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	Onion          string        `long:"onion" description:"Connect to onion addresses through SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	NoAutostart    bool          `long:"noautostart" description:"Do not start the connection scheduler automatically"`
	NoSeedClass    bool          `long:"noseedclass" description:"Disable the dedicated dial class for seed peers"`
	NoPubDiscovery bool          `long:"nopubdiscovery" description:"Disable staging of pub announcements from the message log"`
	NoAutoPopulate bool          `long:"noautopopulate" description:"Do not remember the configured seeds at startup"`
	Seeds          []string      `long:"seed" description:"Seed multiserver address to remember at startup -- May be repeated"`
	DialTimeout    time.Duration `long:"dialtimeout" description:"How long a single dial may take before it is abandoned"`
	PingTimeout    time.Duration `long:"pingtimeout" description:"Heartbeat timeout for RPC clients -- Clamped to [10s, 30m]"`
}

// errSuppressUsage signals that the usage message should not be printed when
// returning the error.
type errSuppressUsage string

func (e errSuppressUsage) Error() string {
	return string(e)
}

// normalizeAddress returns addr with the passed default port appended when
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// This func also initializes the logging infrastructure.
func loadConfig(appName string) (*config, []string, error) {
	// Default config.
	home := defaultHomeDir()
	cfg := config{
		HomeDir:       home,
		ConfigFile:    filepath.Join(home, defaultConfigFilename),
		DataDir:       filepath.Join(home, defaultDataDirname),
		LogDir:        filepath.Join(home, defaultLogDirname),
		DebugLevel:    defaultLogLevel,
		RPCListen:     defaultRPCListen,
		RPCMaxClients: defaultRPCMaxClients,
		DialTimeout:   defaultDialTimeout,
		PingTimeout:   defaultPingTimeout,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or home dir was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, version())
		os.Exit(0)
	}

	// Update the home directory if specified.  Since the home directory is
	// updated, other variables need to be updated to reflect the new
	// location.
	if preCfg.HomeDir != home {
		cfg.HomeDir, _ = filepath.Abs(preCfg.HomeDir)
		if preCfg.ConfigFile == filepath.Join(home, defaultConfigFilename) {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir,
				defaultConfigFilename)
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.DataDir == filepath.Join(home, defaultDataDirname) {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		} else {
			cfg.DataDir = preCfg.DataDir
		}
		if preCfg.LogDir == filepath.Join(home, defaultLogDirname) {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
	} else {
		cfg.ConfigFile = preCfg.ConfigFile
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		return nil, nil, err
	}

	// Create the home directory if it doesn't already exist.
	err = os.MkdirAll(cfg.HomeDir, 0700)
	if err != nil {
		str := "failed to create home directory: %v"
		return nil, nil, errSuppressUsage(fmt.Sprintf(str, err))
	}

	// Drop the sample config into a fresh home directory so there is a
	// commented starting point to edit.
	if _, err := os.Stat(cfg.ConfigFile); os.IsNotExist(err) {
		err := os.WriteFile(cfg.ConfigFile, []byte(sampleConfig), 0600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create sample config: %v\n",
				err)
		}
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	if !cfg.NoFileLogging {
		initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, errSuppressUsage(fmt.Sprintf("%v", err))
	}

	// Validate the configured seeds early so a typo does not surface as a
	// mysteriously never-dialed peer.
	for _, seed := range cfg.Seeds {
		if _, err := msaddr.Parse(seed); err != nil {
			str := "invalid seed address %q: %v"
			return nil, nil, errSuppressUsage(fmt.Sprintf(str, seed, err))
		}
	}

	// The RPC server requires credentials when enabled.
	if !cfg.NoRPC && (cfg.RPCUser == "" || cfg.RPCPass == "") {
		str := "the RPC server requires --rpcuser and --rpcpass " +
			"(or --norpc to disable it)"
		return nil, nil, errSuppressUsage(str)
	}
	cfg.RPCListen = normalizeAddress(cfg.RPCListen, "8422")

	// Onion dialing falls back to the general proxy when no dedicated one
	// is given.
	if cfg.Onion == "" {
		cfg.Onion = cfg.Proxy
	}

	// Clamp the heartbeat timeout.
	if cfg.PingTimeout < minPingTimeout {
		cfg.PingTimeout = minPingTimeout
	}
	if cfg.PingTimeout > maxPingTimeout {
		cfg.PingTimeout = maxPingTimeout
	}

	return &cfg, remainingArgs, nil
}
