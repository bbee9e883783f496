// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mvs-org/mvsd/network"
	"github.com/mvs-org/mvsd/node"
)

// version is the semantic version of the daemon.
const version = "0.9.0"

// mvsdMain is the real main function for mvsd.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit is called.
func mvsdMain() error {
	cfg, netSettings, nodeSettings, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("mvsd version %s\n", version)
		return nil
	}

	initLogRotator(filepath.Join(cfg.DataDir, defaultLogFilename))
	defer logRotator.Close()
	setLogLevels(cfg.LogLevel)

	mvsdLog.Infof("Version %s", version)

	store, err := node.NewBlockStore(filepath.Join(cfg.DataDir, "blocks"))
	if err != nil {
		mvsdLog.Errorf("Failed to open block store: %v", err)
		return err
	}
	defer store.Close()

	p2p := network.NewP2P(netSettings)
	p2p.Height = func() uint64 {
		height, err := store.Height()
		if err != nil {
			return 0
		}
		return height
	}

	started := make(chan error, 1)
	p2p.Start(func(err error) {
		started <- err
	})
	if err := <-started; err != nil {
		mvsdLog.Errorf("Failed to start networking: %v", err)
		p2p.Stop()
		return err
	}

	mvsdLog.Info("Networking started.")

	// Block sync drains whatever header range a header-sync collaborator
	// has queued.  An empty queue completes immediately.
	queue := node.NewHeaderQueue()
	sync := node.NewSessionBlockSync(p2p, queue, store, nodeSettings)
	sync.Start(func(err error) {
		if err != nil {
			mvsdLog.Errorf("Block sync failed: %v", err)
			return
		}
		mvsdLog.Info("Block sync complete.")
	})
	defer sync.Stop()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	mvsdLog.Info("Shutting down...")
	p2p.Stop()
	mvsdLog.Info("Shutdown complete.")
	return nil
}

func main() {
	if err := mvsdMain(); err != nil {
		os.Exit(1)
	}
}
