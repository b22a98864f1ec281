package sim

import (
	"context"

	"github.com/looplab/fsm"
)

// Call states of the simulated modem
const (
	StateIdle         = "idle"
	StateDialing      = "dialing"
	StateConnected    = "connected"
	StateTransmitting = "transmitting"
)

// Events of the call state machine
const (
	EventDial        = "dial"
	EventAnswer      = "answer"
	EventTransmit    = "transmit"
	EventTransmitted = "transmitted"
	EventRelease     = "release"
)

// callStateMachine is the voice call of the simulated modem. It must only be used while holding the
// modem's lock.
type callStateMachine struct {
	fsm *fsm.FSM
}

func newCallStateMachine(callbacks fsm.Callbacks) *callStateMachine {
	return &callStateMachine{
		fsm: fsm.NewFSM(
			StateIdle,
			fsm.Events{
				{Name: EventDial, Src: []string{StateIdle}, Dst: StateDialing},
				{Name: EventAnswer, Src: []string{StateDialing}, Dst: StateConnected},
				{Name: EventTransmit, Src: []string{StateConnected}, Dst: StateTransmitting},
				{Name: EventTransmitted, Src: []string{StateTransmitting}, Dst: StateConnected},
				{Name: EventRelease, Src: []string{StateDialing, StateConnected, StateTransmitting}, Dst: StateIdle},
			},
			callbacks,
		),
	}
}

func (m *callStateMachine) Current() string {
	return m.fsm.Current()
}

func (m *callStateMachine) Dial(ctx context.Context, callID int) error {
	return m.fsm.Event(ctx, EventDial, callID)
}

func (m *callStateMachine) Answer(ctx context.Context) error {
	return m.fsm.Event(ctx, EventAnswer)
}

func (m *callStateMachine) Transmit(ctx context.Context) error {
	return m.fsm.Event(ctx, EventTransmit)
}

func (m *callStateMachine) Transmitted(ctx context.Context) error {
	return m.fsm.Event(ctx, EventTransmitted)
}

func (m *callStateMachine) Release(ctx context.Context, cause int) error {
	return m.fsm.Event(ctx, EventRelease, cause)
}
