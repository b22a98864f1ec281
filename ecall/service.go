// Package ecall implements the eCall session: the MSD that is sent to the PSAP, the redial policies
// of the PAN-EUROPEAN and ERA-GLONASS standards, and the notification of eCall state changes.
// The modem is accessed through a Platform and an optional CallControl.
package ecall

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/ftl/ecall/msd"
)

// Defaults of a new service
const (
	DefaultIntervalBetweenAttempts = 30 * time.Second
	DefaultEraGlonassDialAttempts  = 10
	DefaultEraGlonassDialDuration  = 300 * time.Second
	DefaultCallbackTimeout         = 10 * time.Second
)

const (
	panEuropeanReconnectWindow = 120 * time.Second
	minimumRedialDelay         = time.Second
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger of the service.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithMetrics registers the metrics of the service in the given registry.
func WithMetrics(registry metrics.Registry) Option {
	return func(s *Service) {
		s.registry = registry
	}
}

// WithClock replaces the wall clock, mainly for testing.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithCallControl enables hanging up ongoing calls on start and the resolution of the termination reason.
func WithCallControl(callControl CallControl) Option {
	return func(s *Service) {
		s.callControl = callControl
	}
}

// WithStandard selects the initial system standard.
func WithStandard(standard SystemStandard) Option {
	return func(s *Service) {
		s.standard = standard
	}
}

// WithCallbackTimeout limits the platform operations that are triggered by timers and modem events.
func WithCallbackTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.callbackTimeout = timeout
	}
}

type stateHandler struct {
	ref     HandlerRef
	handler func(Ref, State)
}

// Service owns the eCall session. All public methods and all callbacks from the platform, the call
// control and the timers are serialized.
type Service struct {
	platform        Platform
	callControl     CallControl
	clock           Clock
	log             *logrus.Entry
	registry        metrics.Registry
	metrics         *serviceMetrics
	callbackTimeout time.Duration

	lock           sync.Mutex
	refs           map[Ref]bool
	lastRef        Ref
	ref            Ref
	handlers       []stateHandler
	lastHandlerRef HandlerRef
	events         []State

	standard    SystemStandard
	state       State
	isStarted   bool
	isCompleted bool
	isStopped   bool
	// wasConnected tells if the current call was connected to the PSAP before it got disconnected.
	wasConnected bool
	startType    StartType
	runID        uuid.UUID

	msg        msd.Message
	propulsion PropulsionType
	built      []byte
	imported   bool
	eraData    msd.EraGlonassData
	// computed tells if MSD fields were set or the MSD was encoded from the session data.
	computed bool

	intervalBetweenAttempts time.Duration
	startTentativeTime      time.Time
	intervalTimer           *redialTimer

	// PAN-EUROPEAN
	stopDialing                bool
	remainingDialDurationTimer *redialTimer

	// ERA-GLONASS
	manualDialAttempts int
	autoDialAttempts   int
	dialAttempts       int
	dialAttemptsCount  int
	dialDuration       time.Duration
	dialDurationTimer  *redialTimer

	callID            int
	callTerminated    bool
	disconnectPending bool
	terminationReason TerminationReason
	terminationCode   int
}

// New creates the eCall service and initializes the platform with the selected system standard.
func New(ctx context.Context, platform Platform, options ...Option) (*Service, error) {
	result := &Service{
		platform:        platform,
		clock:           realClock{},
		log:             logrus.WithField("component", "ecall"),
		registry:        metrics.DefaultRegistry,
		callbackTimeout: DefaultCallbackTimeout,
		refs:            make(map[Ref]bool),

		standard:  PanEuropean,
		state:     StateCompleted,
		isStopped: true,
		startType: StartManual,
		msg: msd.Message{
			Version: msd.Version,
			Control: msd.Control{
				AutomaticActivation: true,
				VehicleType:         msd.PassengerM1,
			},
		},

		intervalBetweenAttempts: DefaultIntervalBetweenAttempts,
		manualDialAttempts:      DefaultEraGlonassDialAttempts,
		autoDialAttempts:        DefaultEraGlonassDialAttempts,
		dialAttempts:            DefaultEraGlonassDialAttempts,
		dialAttemptsCount:       DefaultEraGlonassDialAttempts,
		dialDuration:            DefaultEraGlonassDialDuration,
	}
	for _, option := range options {
		option(result)
	}
	result.metrics = newServiceMetrics(result.registry)
	result.intervalTimer = newRedialTimer(result.clock)
	result.remainingDialDurationTimer = newRedialTimer(result.clock)
	result.dialDurationTimer = newRedialTimer(result.clock)

	err := platform.Init(ctx, result.standard)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot initialize the platform for %s: %w", ErrFault, result.standard, err)
	}

	platform.AddStateHandler(result.onPlatformState)
	if result.callControl != nil {
		result.callControl.AddCallEventHandler(result.onCallEvent)
	}

	result.log.WithField("standard", result.standard).Info("eCall service initialized")
	return result, nil
}

// Create returns a new reference to the eCall session.
func (s *Service) Create() Ref {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.lastRef++
	s.refs[s.lastRef] = true
	s.ref = s.lastRef
	return s.lastRef
}

// Delete releases the given reference. It does not stop an active eCall.
func (s *Service) Delete(ref Ref) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return err
	}
	delete(s.refs, ref)
	if s.ref == ref {
		s.ref = 0
		for r := range s.refs {
			if r > s.ref {
				s.ref = r
			}
		}
	}
	return nil
}

// State returns the last state of the eCall session.
func (s *Service) State(ref Ref) (State, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return StateUnknown, err
	}
	return s.state, nil
}

// IsStarted reports whether the modem reported the start of the eCall and the session has not been
// completed or ended since.
func (s *Service) IsStarted(ref Ref) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return false, err
	}
	return s.isStarted, nil
}

// TerminationReason returns the reason why the last eCall was disconnected.
func (s *Service) TerminationReason(ref Ref) (TerminationReason, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return TerminationNotDefined, err
	}
	return s.terminationReason, nil
}

// PlatformTerminationCode returns the modem specific code of the last termination.
func (s *Service) PlatformTerminationCode(ref Ref) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return 0, err
	}
	return s.terminationCode, nil
}

// AddStateChangeHandler registers a handler for all state changes of the eCall session. The handlers
// are called in the order of registration, without holding the lock of the service.
func (s *Service) AddStateChangeHandler(handler func(Ref, State)) HandlerRef {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.lastHandlerRef++
	s.handlers = append(s.handlers, stateHandler{ref: s.lastHandlerRef, handler: handler})
	return s.lastHandlerRef
}

// RemoveStateChangeHandler removes the handler with the given reference. Unknown references are ignored.
func (s *Service) RemoveStateChangeHandler(ref HandlerRef) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for i, h := range s.handlers {
		if h.ref == ref {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return
		}
	}
}

func (s *Service) checkRef(ref Ref) error {
	if !s.refs[ref] {
		return fmt.Errorf("%w: %d", ErrInvalidHandle, ref)
	}
	return nil
}

// emit queues the state for the handlers. It must be called while holding the lock.
func (s *Service) emit(state State) {
	s.events = append(s.events, state)
}

// unlockAndPublish releases the lock and delivers the queued states to the handlers.
func (s *Service) unlockAndPublish() {
	events := s.events
	s.events = nil
	ref := s.ref
	handlers := make([]stateHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.lock.Unlock()

	for _, state := range events {
		for _, h := range handlers {
			h.handler(ref, state)
		}
	}
}

func (s *Service) callbackContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.callbackTimeout)
}

// runLog returns the logger of the current eCall run.
func (s *Service) runLog() *logrus.Entry {
	if s.runID == uuid.Nil {
		return s.log.WithField("standard", s.standard)
	}
	return s.log.WithFields(logrus.Fields{
		"standard": s.standard,
		"run":      s.runID,
	})
}
