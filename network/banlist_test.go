// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"testing"
)

// TestBanList exercises dynamic bans and the configured blacklist.
func TestBanList(t *testing.T) {
	banlist := NewBanList([]string{"10.0.0.0/8", "192.168.1.7"})

	tests := []struct {
		authority Authority
		blocked   bool
	}{
		{Authority{Host: "10.1.2.3", Port: 5251}, true},
		{Authority{Host: "192.168.1.7", Port: 5251}, true},
		{Authority{Host: "192.168.1.8", Port: 5251}, false},
		{Authority{Host: "8.8.8.8", Port: 5251}, false},
	}
	for i, test := range tests {
		if got := banlist.Blocked(test.authority); got != test.blocked {
			t.Errorf("Blocked #%d (%v) got %v, want %v", i,
				test.authority, got, test.blocked)
		}
	}

	target := Authority{Host: "8.8.8.8", Port: 5251}
	banlist.Ban(target)
	if !banlist.Blocked(target) {
		t.Errorf("Banned authority not blocked")
	}
	banlist.Unban(target)
	if banlist.Blocked(target) {
		t.Errorf("Unbanned authority still blocked")
	}
}
