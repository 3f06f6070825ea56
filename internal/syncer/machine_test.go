package syncer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassMachineHappyPath(t *testing.T) {
	machine := newPassMachine("test")

	for _, trigger := range []passTrigger{
		triggerStart, triggerResolved, triggerFetched, triggerGenerated, triggerFinish,
	} {
		require.NoError(t, machine.Fire(trigger), "trigger %v", trigger)
	}
	assert.Equal(t, stateIdle, passState(machine.MustState()))
}

func TestPassMachineAbortFromAnyWorkingState(t *testing.T) {
	advance := map[string][]passTrigger{
		"resolving":  {triggerStart},
		"fetching":   {triggerStart, triggerResolved},
		"generating": {triggerStart, triggerResolved, triggerFetched},
		"delivering": {triggerStart, triggerResolved, triggerFetched, triggerGenerated},
	}

	for name, triggers := range advance {
		t.Run(name, func(t *testing.T) {
			machine := newPassMachine("test")
			for _, trigger := range triggers {
				require.NoError(t, machine.Fire(trigger))
			}
			require.NoError(t, machine.Fire(triggerAbort))
			assert.Equal(t, stateIdle, passState(machine.MustState()))
		})
	}
}

func TestPassMachineRefusesSkippingStates(t *testing.T) {
	machine := newPassMachine("test")
	assert.Error(t, machine.Fire(triggerFetched), "cannot fetch before start")

	require.NoError(t, machine.Fire(triggerStart))
	assert.Error(t, machine.Fire(triggerFinish), "cannot finish while resolving")
}

func TestInFlightGuard(t *testing.T) {
	o := &Orchestrator{inFlight: make(map[int64]bool)}

	require.True(t, o.acquire(1))
	assert.False(t, o.acquire(1), "second pass for the same host must be refused")
	assert.True(t, o.acquire(2), "other hosts are unaffected")

	o.release(1)
	assert.True(t, o.acquire(1))
}

func TestInFlightGuardConcurrent(t *testing.T) {
	o := &Orchestrator{inFlight: make(map[int64]bool)}

	var wg sync.WaitGroup
	winners := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if o.acquire(7) {
				winners <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(winners)

	count := 0
	for range winners {
		count++
	}
	assert.Equal(t, 1, count, "exactly one goroutine may hold the guard")
}
