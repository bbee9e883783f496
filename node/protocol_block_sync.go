// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"sync"

	"github.com/mvs-org/mvsd/network"
	"github.com/mvs-org/mvsd/wire"
)

// requestBatchDivisor sizes getdata batches relative to the remaining slot
// depth: deep slots request in chunks so stolen work is not left stranded in
// a dead peer's request pipeline.
const requestBatchDivisor = 2

// minRequestBatch is the smallest getdata batch.
const minRequestBatch = 8

// ProtocolBlockSync downloads the blocks of one reservation slot from the
// attached channel.  Expected blocks are imported through the slot; anything
// unexpected counts as misbehavior.  The protocol completes when the slot
// drains, fails not-satisfied when its work was stolen, and fails with a
// timeout when the peer stalls past the per-block bound.
type ProtocolBlockSync struct {
	*network.Protocol
	settings *Settings
	slot     *Reservation

	mtx         sync.Mutex
	outstanding int
}

// NewProtocolBlockSync returns a block-sync protocol for the channel bound
// to the slot.
func NewProtocolBlockSync(channel *network.Channel, settings *Settings,
	slot *Reservation) *ProtocolBlockSync {

	return &ProtocolBlockSync{
		Protocol: network.NewProtocolBase(channel, "block_sync"),
		settings: settings,
		slot:     slot,
	}
}

// Start begins the download.  The handler fires exactly once: nil when the
// slot drained, not-satisfied when the slot's work was stolen, or the first
// error (including the per-block timeout).
func (p *ProtocolBlockSync) Start(handler network.EventHandler) {
	if p.slot.Empty() {
		handler(nil)
		return
	}

	// The completion is single-shot; the synchronizer is used purely for
	// its idempotence against racing timer, stop and import paths.
	complete := func(err error) {
		p.CancelTimer()
		handler(err)
	}
	event := network.Synchronize(complete, 1, p.Name(), false)
	p.StartTimed(p.settings.ChannelBlock, event)

	p.Subscribe(wire.CmdBlock, p.handleReceiveBlock)
	p.requestMore()
}

// requestMore issues a getdata for the next batch of the slot's pending
// hashes, sized by the remaining depth.
func (p *ProtocolBlockSync) requestMore() {
	pending := p.slot.Pending()
	if len(pending) == 0 {
		return
	}

	batch := len(pending) / requestBatchDivisor
	if batch < minRequestBatch {
		batch = minRequestBatch
	}
	if batch > len(pending) {
		batch = len(pending)
	}

	request := wire.NewMsgGetDataSizeHint(uint(batch))
	for i := 0; i < batch; i++ {
		hash := pending[i]
		request.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, &hash))
	}

	p.mtx.Lock()
	p.outstanding = batch
	p.mtx.Unlock()

	log.Debugf("Slot (%d) requesting %d blocks from [%v]", p.slot.Slot(),
		batch, p.Authority())

	p.Send(request, p.handleRequestSent)
}

func (p *ProtocolBlockSync) handleRequestSent(err error) {
	if p.Stopped() {
		return
	}

	if err != nil {
		log.Debugf("Failure requesting blocks on slot (%d) [%v] %v",
			p.slot.Slot(), p.Authority(), err)
		p.SetEvent(err)
	}
}

func (p *ProtocolBlockSync) handleReceiveBlock(msg wire.Message) bool {
	if p.Stopped() {
		return false
	}

	block, ok := msg.(*wire.MsgBlock)
	if !ok {
		return false
	}

	hash := block.BlockHash()
	if _, expected := p.slot.Expect(&hash); !expected {
		// Work stolen from this slot makes its in-flight blocks
		// unexpected here; that is the donor's retirement signal, not
		// peer misbehavior.
		if p.slot.TogglePartitioned() {
			p.SetEvent(network.CodeError(network.ErrNotSatisfied))
			return false
		}
		p.Misbehaving(20, "unrequested block "+hash.String())
		return true
	}

	if !p.slot.Import(block) {
		return true
	}

	// The peer is alive; re-arm the per-block bound.
	p.ResetTimer(p.settings.ChannelBlock)

	if p.slot.Empty() {
		if p.slot.TogglePartitioned() {
			p.SetEvent(network.CodeError(network.ErrNotSatisfied))
			return false
		}
		log.Debugf("Slot (%d) drained on [%v]", p.slot.Slot(),
			p.Authority())
		p.SetEvent(nil)
		return false
	}

	p.mtx.Lock()
	p.outstanding--
	done := p.outstanding <= 0
	p.mtx.Unlock()

	if done {
		p.requestMore()
	}
	return true
}
