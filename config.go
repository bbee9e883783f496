// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/mvs-org/mvsd/network"
	"github.com/mvs-org/mvsd/node"
	"github.com/mvs-org/mvsd/wire"
)

const (
	defaultConfigFilename = "mvsd.conf"
	defaultLogFilename    = "mvsd.log"
	defaultHostsFilename  = "hosts.json"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
)

// config defines the configuration options for mvsd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion      bool          `short:"V" long:"version" description:"Display version information and exit"`
	DataDir          string        `short:"b" long:"datadir" description:"Directory to store data"`
	LogLevel         string        `short:"d" long:"loglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	TestNet          bool          `long:"testnet" description:"Use the test network"`
	Listen           string        `long:"listen" description:"Authority to advertise and accept connections on (port 0 disables advertising)"`
	Proxy            string        `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	AddPeers         []string      `short:"a" long:"addpeer" description:"Add a peer to connect with at startup"`
	Seeds            []string      `long:"seed" description:"Override the built-in seed list (host:port)"`
	MaxOutbound      uint32        `long:"maxoutbound" description:"Max outbound connections" default:"8"`
	MaxInbound       uint32        `long:"maxinbound" description:"Max inbound connections" default:"128"`
	ManualAttempts   uint32        `long:"manualattempts" description:"Connection attempts per manually added peer, 0 retries forever" default:"0"`
	HostPoolCapacity uint32        `long:"hostpoolcapacity" description:"Max known peer addresses retained, 0 disables seeding" default:"1000"`
	Blacklist        []string      `long:"blacklist" description:"Never contact these CIDR ranges"`
	NoRelayTx        bool          `long:"norelaytx" description:"Do not request transaction announcements"`
	Handshake        time.Duration `long:"handshaketimeout" description:"Version negotiation bound" default:"30s"`
	Germination      time.Duration `long:"germinationtimeout" description:"Seed harvest bound" default:"30s"`
	Heartbeat        time.Duration `long:"heartbeat" description:"Ping cadence" default:"5m"`
	BlockTimeout     time.Duration `long:"blocktimeout" description:"Per-block wait during sync" default:"5s"`
	SyncSlots        uint32        `long:"syncslots" description:"Parallel block download slots" default:"8"`
	CoinbaseMaturity uint32        `long:"coinbasematurity" description:"Blocks before mined coins spend" default:"100"`
}

// loadConfig initializes and parses the config using command line options.
// It returns the application configuration along with the network and node
// settings derived from it.
func loadConfig() (*config, *network.Settings, *node.Settings, error) {
	cfg := config{
		DataDir:  defaultDataDir(),
		LogLevel: defaultLogLevel,
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, nil, nil, err
	}

	if !validLogLevel(cfg.LogLevel) {
		return nil, nil, nil, fmt.Errorf("invalid log level %q",
			cfg.LogLevel)
	}

	chain := mainNetParams
	if cfg.TestNet {
		chain = testNetParams
	}

	netSettings := network.DefaultSettings()
	netSettings.Net = chain.net
	netSettings.Seeds = chain.seeds
	netSettings.HostPoolCapacity = cfg.HostPoolCapacity
	netSettings.OutboundConnections = cfg.MaxOutbound
	netSettings.InboundConnections = cfg.MaxInbound
	netSettings.ManualAttemptLimit = cfg.ManualAttempts
	netSettings.Blacklist = cfg.Blacklist
	netSettings.Proxy = cfg.Proxy
	netSettings.RelayTransactions = !cfg.NoRelayTx
	netSettings.ChannelHandshake = cfg.Handshake
	netSettings.ChannelGermination = cfg.Germination
	netSettings.ChannelHeartbeat = cfg.Heartbeat
	netSettings.UserAgent = wire.DefaultUserAgent
	netSettings.HostsFile = filepath.Join(cfg.DataDir,
		defaultHostsFilename)

	if cfg.Listen != "" {
		self, err := network.ParseAuthority(cfg.Listen)
		if err != nil {
			return nil, nil, nil, err
		}
		netSettings.Self = self
	} else {
		netSettings.Self = network.Authority{Port: chain.defaultPort}
	}

	if len(cfg.Seeds) != 0 {
		seeds := make([]network.Authority, 0, len(cfg.Seeds))
		for _, s := range cfg.Seeds {
			seed, err := network.ParseAuthority(s)
			if err != nil {
				return nil, nil, nil, err
			}
			seeds = append(seeds, seed)
		}
		netSettings.Seeds = seeds
	}

	for _, p := range cfg.AddPeers {
		peer, err := network.ParseAuthority(p)
		if err != nil {
			return nil, nil, nil, err
		}
		netSettings.Peers = append(netSettings.Peers, peer)
	}

	nodeSettings := node.DefaultSettings()
	nodeSettings.DownloadConnections = cfg.SyncSlots
	nodeSettings.ChannelBlock = cfg.BlockTimeout

	coinbaseMaturity = cfg.CoinbaseMaturity

	return &cfg, netSettings, nodeSettings, nil
}

// defaultDataDir returns the default data directory under the user home.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDataDirname
	}
	return filepath.Join(home, ".mvsd", defaultDataDirname)
}
