// Package sim simulates an eCall modem, for development and demonstrations without hardware.
// It plays a scenario for each started eCall and reports the eCall states and call events like a
// real modem does, asynchronously and in order.
package sim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/ftl/ecall/at"
	"github.com/ftl/ecall/dispatch"
	"github.com/ftl/ecall/ecall"
)

// Scenario of a simulated eCall
type Scenario int

// All scenarios
const (
	// ScenarioSuccess: the PSAP answers, receives the MSD, and the call stays up until it is ended.
	ScenarioSuccess Scenario = iota
	// ScenarioNoAnswer: the PSAP does not answer.
	ScenarioNoAnswer
	// ScenarioDrop: the PSAP answers and receives the MSD, then the network drops the call.
	ScenarioDrop
)

// ScenariosByName maps all scenarios by their configuration name
var ScenariosByName = map[string]Scenario{
	"success":   ScenarioSuccess,
	"no-answer": ScenarioNoAnswer,
	"drop":      ScenarioDrop,
}

// ScenarioByName returns the scenario with the given name
func ScenarioByName(name string) (Scenario, error) {
	result, ok := ScenariosByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("invalid scenario %s", name)
	}
	return result, nil
}

func (s Scenario) String() string {
	for k, v := range ScenariosByName {
		if v == s {
			return k
		}
	}
	return "unknown"
}

// DefaultStepDelay between two simulated modem events
const DefaultStepDelay = 500 * time.Millisecond

// release causes used by the simulation
const (
	causeNoAnswer = 19
)

var (
	// ErrNoMsd is returned if an eCall is started before an MSD was loaded.
	ErrNoMsd = errors.New("no MSD loaded")
	// ErrNotConnected is returned if the MSD is sent while no call is connected.
	ErrNotConnected = errors.New("no call connected")
)

// Option configures a Modem.
type Option func(*Modem)

// WithLogger sets the logger of the simulated modem.
func WithLogger(log *logrus.Entry) Option {
	return func(m *Modem) {
		m.log = log
	}
}

// WithScenario selects the scenario that is played for every started eCall.
func WithScenario(scenario Scenario) Option {
	return func(m *Modem) {
		m.scenario = scenario
	}
}

// WithStepDelay sets the delay between two simulated modem events.
func WithStepDelay(delay time.Duration) Option {
	return func(m *Modem) {
		m.stepDelay = delay
	}
}

// Modem is a simulated eCall modem. It implements ecall.Platform and ecall.CallControl.
type Modem struct {
	log        *logrus.Entry
	stepDelay  time.Duration
	dispatcher *dispatch.Dispatcher

	lock          sync.Mutex
	scenario      Scenario
	call          *callStateMachine
	generation    uint64
	callID        int
	lastCause     int
	hungUpLocally bool
	stateHandlers []func(ecall.State)
	callHandlers  []func(ecall.CallEvent)

	standard    ecall.SystemStandard
	msd         []byte
	transmitted [][]byte
	psapNumber  string
	mode        ecall.OperationMode
	txMode      ecall.MsdTxMode
	nadMinutes  uint16
	timers      map[ecall.EraGlonassTimer]time.Duration
}

var (
	_ ecall.Platform    = (*Modem)(nil)
	_ ecall.CallControl = (*Modem)(nil)
)

// New returns a new simulated modem with an idle call.
func New(options ...Option) *Modem {
	result := &Modem{
		log:        logrus.WithField("component", "sim"),
		stepDelay:  DefaultStepDelay,
		dispatcher: dispatch.New(),
		txMode:     ecall.TxModePush,
		nadMinutes: 720,
		timers:     make(map[ecall.EraGlonassTimer]time.Duration),
	}
	for _, option := range options {
		option(result)
	}
	result.call = newCallStateMachine(fsm.Callbacks{
		"enter_state":               result.onEnterState,
		"after_" + EventDial:        result.onDial,
		"after_" + EventAnswer:      result.onAnswer,
		"after_" + EventTransmit:    result.onTransmit,
		"after_" + EventTransmitted: result.onTransmitted,
		"after_" + EventRelease:     result.onRelease,
	})
	return result
}

// Close stops the delivery of states and call events.
func (m *Modem) Close() {
	m.lock.Lock()
	m.generation++
	m.lock.Unlock()
	m.dispatcher.Close()
}

// SetScenario selects the scenario of the next eCall.
func (m *Modem) SetScenario(scenario Scenario) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.scenario = scenario
}

// CallState returns the current state of the simulated voice call.
func (m *Modem) CallState() string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.call.Current()
}

// Transmitted returns all MSDs that were transmitted to the simulated PSAP.
func (m *Modem) Transmitted() [][]byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([][]byte{}, m.transmitted...)
}

func (m *Modem) onEnterState(_ context.Context, e *fsm.Event) {
	m.log.WithFields(logrus.Fields{
		"event": e.Event,
		"from":  e.Src,
		"to":    e.Dst,
	}).Debug("simulated call state")
}

func (m *Modem) onDial(_ context.Context, _ *fsm.Event) {
	m.postState(ecall.StateStarted)
}

func (m *Modem) onAnswer(_ context.Context, _ *fsm.Event) {
	m.postCallEvent(ecall.CallEvent{CallID: m.callID, Type: ecall.CallConnected})
	m.postState(ecall.StateConnected)
}

func (m *Modem) onTransmit(_ context.Context, _ *fsm.Event) {
	m.postState(ecall.StateMsdTxStarted)
}

func (m *Modem) onTransmitted(_ context.Context, _ *fsm.Event) {
	m.transmitted = append(m.transmitted, append([]byte{}, m.msd...))
	m.postState(ecall.StateLLACKReceived)
	m.postState(ecall.StateALACKReceivedPositive)
	m.postState(ecall.StateMsdTxCompleted)
}

func (m *Modem) onRelease(_ context.Context, e *fsm.Event) {
	if len(e.Args) > 0 {
		if cause, ok := e.Args[0].(int); ok {
			m.lastCause = cause
		}
	}
	m.postCallEvent(ecall.CallEvent{CallID: m.callID, Type: ecall.CallTerminated})
	m.postState(ecall.StateDisconnected)
}

func (m *Modem) postState(state ecall.State) {
	handlers := append([]func(ecall.State){}, m.stateHandlers...)
	m.dispatcher.Post(func() {
		for _, handler := range handlers {
			handler(state)
		}
	})
}

func (m *Modem) postCallEvent(event ecall.CallEvent) {
	handlers := append([]func(ecall.CallEvent){}, m.callHandlers...)
	m.dispatcher.Post(func() {
		for _, handler := range handlers {
			handler(event)
		}
	})
}

// schedule runs the given step after the step delay, unless the call was released or restarted in
// the meantime. It must be called while holding the lock.
func (m *Modem) schedule(step func(context.Context) error) {
	generation := m.generation
	time.AfterFunc(m.stepDelay, func() {
		m.lock.Lock()
		defer m.lock.Unlock()
		if generation != m.generation {
			return
		}
		if err := step(context.Background()); err != nil {
			m.log.WithError(err).Warn("simulation step failed")
		}
	})
}

func (m *Modem) answer(ctx context.Context) error {
	if err := m.call.Answer(ctx); err != nil {
		return err
	}
	m.schedule(m.transmit)
	return nil
}

func (m *Modem) transmit(ctx context.Context) error {
	if err := m.call.Transmit(ctx); err != nil {
		return err
	}
	m.schedule(m.completeTransmission)
	return nil
}

func (m *Modem) completeTransmission(ctx context.Context) error {
	if err := m.call.Transmitted(ctx); err != nil {
		return err
	}
	if m.scenario == ScenarioDrop {
		m.schedule(func(ctx context.Context) error {
			return m.call.Release(ctx, at.CauseNetworkOutOfOrder)
		})
	}
	return nil
}

// releaseLocally hangs up the call, if there is one. It must be called while holding the lock.
func (m *Modem) releaseLocally(ctx context.Context) error {
	m.generation++
	m.hungUpLocally = true
	if m.call.Current() == StateIdle {
		return nil
	}
	return m.call.Release(ctx, at.CauseNormalCallClearing)
}

// AddStateHandler implements ecall.Platform.
func (m *Modem) AddStateHandler(handler func(ecall.State)) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.stateHandlers = append(m.stateHandlers, handler)
}

// AddCallEventHandler implements ecall.CallControl.
func (m *Modem) AddCallEventHandler(handler func(ecall.CallEvent)) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.callHandlers = append(m.callHandlers, handler)
}

// Init implements ecall.Platform.
func (m *Modem) Init(_ context.Context, standard ecall.SystemStandard) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.standard = standard
	m.log.WithField("standard", standard).Info("simulated modem initialized")
	return nil
}

// Start dials the PSAP and plays the selected scenario.
func (m *Modem) Start(ctx context.Context, startType ecall.StartType) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if len(m.msd) == 0 {
		return 0, ErrNoMsd
	}
	m.generation++
	m.callID++
	m.hungUpLocally = false
	if err := m.call.Dial(ctx, m.callID); err != nil {
		return 0, err
	}
	m.log.WithFields(logrus.Fields{
		"call":     m.callID,
		"type":     startType,
		"standard": m.standard,
		"scenario": m.scenario,
	}).Info("simulated eCall started")

	if m.scenario == ScenarioNoAnswer {
		m.schedule(func(ctx context.Context) error {
			return m.call.Release(ctx, causeNoAnswer)
		})
	} else {
		m.schedule(m.answer)
	}
	return m.callID, nil
}

// Stop releases the call and reports that the eCall procedure was stopped.
func (m *Modem) Stop(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if err := m.releaseLocally(ctx); err != nil {
		return err
	}
	m.postState(ecall.StateStopped)
	return nil
}

// End releases the call and reports the completion of the eCall.
func (m *Modem) End(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if err := m.releaseLocally(ctx); err != nil {
		return err
	}
	m.postState(ecall.StateCompleted)
	return nil
}

// HangUpAll implements ecall.CallControl.
func (m *Modem) HangUpAll(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.releaseLocally(ctx)
}

// LoadMsd implements ecall.Platform.
func (m *Modem) LoadMsd(_ context.Context, msd []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.msd = append([]byte{}, msd...)
	return nil
}

// SendMsd transmits the given MSD on the connected call.
func (m *Modem) SendMsd(ctx context.Context, msd []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.call.Current() != StateConnected {
		return ErrNotConnected
	}
	m.msd = append([]byte{}, msd...)
	return m.transmit(ctx)
}

// TerminationReason implements ecall.CallControl.
func (m *Modem) TerminationReason(_ context.Context, _ int) (ecall.TerminationReason, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return at.TerminationReason(m.lastCause, m.hungUpLocally), nil
}

// PlatformTerminationCode implements ecall.CallControl.
func (m *Modem) PlatformTerminationCode(_ context.Context, _ int) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.lastCause, nil
}

// SetPsapNumber implements ecall.Platform.
func (m *Modem) SetPsapNumber(_ context.Context, number string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.psapNumber = number
	return nil
}

// PsapNumber implements ecall.Platform.
func (m *Modem) PsapNumber(context.Context) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.psapNumber, nil
}

// UseUSimNumbers implements ecall.Platform.
func (m *Modem) UseUSimNumbers(context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.psapNumber = ""
	return nil
}

// SetOperationMode implements ecall.Platform.
func (m *Modem) SetOperationMode(_ context.Context, mode ecall.OperationMode) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.mode = mode
	return nil
}

// OperationMode implements ecall.Platform.
func (m *Modem) OperationMode(context.Context) (ecall.OperationMode, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.mode, nil
}

// SetMsdTxMode implements ecall.Platform.
func (m *Modem) SetMsdTxMode(_ context.Context, mode ecall.MsdTxMode) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.txMode = mode
	return nil
}

// MsdTxMode implements ecall.Platform.
func (m *Modem) MsdTxMode(context.Context) (ecall.MsdTxMode, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.txMode, nil
}

// SetNadDeregistrationTime implements ecall.Platform.
func (m *Modem) SetNadDeregistrationTime(_ context.Context, minutes uint16) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.nadMinutes = minutes
	return nil
}

// NadDeregistrationTime implements ecall.Platform.
func (m *Modem) NadDeregistrationTime(context.Context) (uint16, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.nadMinutes, nil
}

// SetEraGlonassTimer implements ecall.Platform.
func (m *Modem) SetEraGlonassTimer(_ context.Context, timer ecall.EraGlonassTimer, value time.Duration) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.timers[timer] = value
	return nil
}

// EraGlonassTimer implements ecall.Platform.
func (m *Modem) EraGlonassTimer(_ context.Context, timer ecall.EraGlonassTimer) (time.Duration, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	value, ok := m.timers[timer]
	if !ok {
		return 0, fmt.Errorf("%s time not set", timer)
	}
	return value, nil
}
