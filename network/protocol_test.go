// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSynchronizeCount verifies the happy path: the final handler fires
// exactly once after count events.
func TestSynchronizeCount(t *testing.T) {
	fired := 0
	var result error
	event := Synchronize(func(err error) {
		fired++
		result = err
	}, 3, "test", false)

	event(nil)
	event(nil)
	require.Equal(t, 0, fired)

	event(nil)
	require.Equal(t, 1, fired)
	require.NoError(t, result)

	// Past the threshold the handler is idempotent.
	event(nil)
	event(errors.New("late"))
	require.Equal(t, 1, fired)
}

// TestSynchronizeFirstError verifies an early error fires the final handler
// immediately when errors are not cleared.
func TestSynchronizeFirstError(t *testing.T) {
	fired := 0
	var result error
	event := Synchronize(func(err error) {
		fired++
		result = err
	}, 3, "test", false)

	event(nil)
	event(codeError(ErrChannelTimeout))
	require.Equal(t, 1, fired)
	require.True(t, IsCode(result, ErrChannelTimeout))

	event(nil)
	require.Equal(t, 1, fired)
}

// TestSynchronizeClearErrors verifies errors count as ordinary events when
// cleared, as the seed session requires.
func TestSynchronizeClearErrors(t *testing.T) {
	fired := 0
	var result error
	event := Synchronize(func(err error) {
		fired++
		result = err
	}, 3, "test", true)

	event(codeError(ErrChannelTimeout))
	event(errors.New("seed down"))
	require.Equal(t, 0, fired)

	event(nil)
	require.Equal(t, 1, fired)
	require.NoError(t, result)
}

// TestSynchronizeConcurrent hammers a synchronizer from many goroutines and
// verifies single firing.
func TestSynchronizeConcurrent(t *testing.T) {
	const events = 64

	var mtx sync.Mutex
	fired := 0
	event := Synchronize(func(error) {
		mtx.Lock()
		fired++
		mtx.Unlock()
	}, events, "test", false)

	var wg sync.WaitGroup
	for i := 0; i < events*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event(nil)
		}()
	}
	wg.Wait()

	mtx.Lock()
	defer mtx.Unlock()
	require.Equal(t, 1, fired)
}
