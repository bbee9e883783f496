// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import "time"

// Settings is the configuration surface the sync core consumes.
type Settings struct {
	// DownloadConnections is the target number of parallel block-sync
	// slots.
	DownloadConnections uint32

	// ChannelBlock bounds the wait for each expected block on a sync
	// channel.
	ChannelBlock time.Duration

	// RegulatorInterval is the cadence of the table-wide performance
	// check which prunes lagging slots.
	RegulatorInterval time.Duration

	// PruneFactor retires a slot whose rate lags the table median by more
	// than this multiple.  Values at or below 1 disable pruning.
	PruneFactor float64
}

// DefaultSettings returns the settings used when the application does not
// override them.
func DefaultSettings() *Settings {
	return &Settings{
		DownloadConnections: 8,
		ChannelBlock:        5 * time.Second,
		RegulatorInterval:   5 * time.Second,
		PruneFactor:         1.5,
	}
}
