package syncer

import (
	"github.com/qmuntal/stateless"
	"github.com/rs/zerolog/log"
)

// Pass states. A pass is strictly linear: Idle -> Resolving -> Fetching ->
// Generating -> Delivering -> Idle, with per-listing and per-conversation
// sub-loops inside the middle states.
type passState stateless.State

var (
	stateIdle       passState = "Idle"
	stateResolving  passState = "Resolving"
	stateFetching   passState = "Fetching"
	stateGenerating passState = "Generating"
	stateDelivering passState = "Delivering"
)

type passTrigger stateless.Trigger

var (
	triggerStart     passTrigger = "Start"
	triggerResolved  passTrigger = "Resolved"
	triggerFetched   passTrigger = "Fetched"
	triggerGenerated passTrigger = "Generated"
	triggerFinish    passTrigger = "Finish"
	triggerAbort     passTrigger = "Abort"
)

// newPassMachine builds the state machine for one sync pass. Abort is legal
// from any working state; session expiry uses it to short-circuit.
func newPassMachine(passID string) *stateless.StateMachine {
	machine := stateless.NewStateMachine(stateIdle)

	machine.Configure(stateIdle).
		Permit(triggerStart, stateResolving)

	machine.Configure(stateResolving).
		Permit(triggerResolved, stateFetching).
		Permit(triggerAbort, stateIdle)

	machine.Configure(stateFetching).
		Permit(triggerFetched, stateGenerating).
		Permit(triggerAbort, stateIdle)

	machine.Configure(stateGenerating).
		Permit(triggerGenerated, stateDelivering).
		Permit(triggerAbort, stateIdle)

	machine.Configure(stateDelivering).
		Permit(triggerFinish, stateIdle).
		Permit(triggerAbort, stateIdle)

	log.Debug().Str("pass_id", passID).Msg("pass state machine initialized")
	return machine
}
