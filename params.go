// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/mvs-org/mvsd/network"
	"github.com/mvs-org/mvsd/wire"
)

// coinbaseMaturity is the number of blocks required before newly mined coins
// can be spent.  It is process-wide configuration read at startup and never
// mutated afterwards.
var coinbaseMaturity uint32 = 100

// params groups the per-network constants.
type params struct {
	net         wire.MetaverseNet
	defaultPort uint16
	seeds       []network.Authority
}

// mainNetParams holds the main network parameters.
var mainNetParams = params{
	net:         wire.MainNet,
	defaultPort: 5251,
	seeds: []network.Authority{
		{Host: "main-asia.metaverse.live", Port: 5251},
		{Host: "main-americas.metaverse.live", Port: 5251},
		{Host: "main-europe.metaverse.live", Port: 5251},
		{Host: "seed.getmvs.org", Port: 5251},
	},
}

// testNetParams holds the test network parameters.
var testNetParams = params{
	net:         wire.TestNet,
	defaultPort: 15251,
	seeds: []network.Authority{
		{Host: "test-asia.metaverse.live", Port: 15251},
		{Host: "test-europe.metaverse.live", Port: 15251},
	},
}
