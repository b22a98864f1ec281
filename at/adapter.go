// Package at implements the eCall platform and call control for modems that provide the eCall
// procedure through AT commands.
package at

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ftl/ecall/dispatch"
	"github.com/ftl/ecall/ecall"
)

// DefaultCallIDTimeout limits how long Start waits for the modem to report the dialing call.
const DefaultCallIDTimeout = 2 * time.Second

// Modem is the AT command channel to the modem, usually a *com.COM.
type Modem interface {
	Requester
	ATs(ctx context.Context, requests ...string) error
	AddURC(prefix string, trailingLines int, handler func(lines []string))
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger of the adapter.
func WithLogger(log *logrus.Entry) Option {
	return func(a *Adapter) {
		a.log = log
	}
}

// WithCallIDTimeout sets how long Start waits for the modem to report the dialing call.
func WithCallIDTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		a.callIDTimeout = timeout
	}
}

// Adapter implements ecall.Platform and ecall.CallControl on top of an AT command channel.
// The handlers are called on a separate goroutine in the order the URCs arrived, never on the
// COM loop.
type Adapter struct {
	modem         Modem
	dispatcher    *dispatch.Dispatcher
	log           *logrus.Entry
	callIDTimeout time.Duration

	lock          sync.Mutex
	stateHandlers []func(ecall.State)
	callHandlers  []func(ecall.CallEvent)
	dialing       chan int
	hungUpLocally bool
}

var (
	_ ecall.Platform    = (*Adapter)(nil)
	_ ecall.CallControl = (*Adapter)(nil)
)

// NewAdapter registers the URC handlers at the given modem.
func NewAdapter(modem Modem, options ...Option) *Adapter {
	result := &Adapter{
		modem:         modem,
		dispatcher:    dispatch.New(),
		log:           logrus.WithField("component", "at"),
		callIDTimeout: DefaultCallIDTimeout,
	}
	for _, option := range options {
		option(result)
	}

	modem.AddURC("+CECN:", 0, result.onStateIndication)
	modem.AddURC("+CLCC:", 0, result.onCallStatusReport)

	return result
}

// Close stops the dispatching of URCs.
func (a *Adapter) Close() {
	a.dispatcher.Close()
}

func (a *Adapter) onStateIndication(lines []string) {
	state, err := ParseStateIndication(lines[0])
	if err != nil {
		a.log.WithError(err).Warn("cannot parse eCall state indication")
		return
	}

	a.lock.Lock()
	handlers := append([]func(ecall.State){}, a.stateHandlers...)
	a.lock.Unlock()

	a.dispatcher.Post(func() {
		for _, handler := range handlers {
			handler(state)
		}
	})
}

func (a *Adapter) onCallStatusReport(lines []string) {
	report, err := ParseCallStatusReport(lines[0])
	if err != nil {
		a.log.WithError(err).Warn("cannot parse call status report")
		return
	}
	a.log.WithFields(logrus.Fields{
		"call":   report.ID,
		"status": report.Status,
	}).Trace("call status")

	a.lock.Lock()
	if report.Direction == MobileOriginated && report.Status == CallDialing && a.dialing != nil {
		a.dialing <- report.ID
		a.dialing = nil
	}
	handlers := append([]func(ecall.CallEvent){}, a.callHandlers...)
	a.lock.Unlock()

	event, ok := report.Event()
	if !ok {
		return
	}
	a.dispatcher.Post(func() {
		for _, handler := range handlers {
			handler(event)
		}
	})
}

// AddStateHandler implements ecall.Platform.
func (a *Adapter) AddStateHandler(handler func(ecall.State)) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.stateHandlers = append(a.stateHandlers, handler)
}

// AddCallEventHandler implements ecall.CallControl.
func (a *Adapter) AddCallEventHandler(handler func(ecall.CallEvent)) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.callHandlers = append(a.callHandlers, handler)
}

// Init enables the URCs and selects the system standard.
func (a *Adapter) Init(ctx context.Context, standard ecall.SystemStandard) error {
	return a.modem.ATs(ctx, EnableStateReports, EnableCallReports, SetSystemStandard(standard))
}

// Start triggers the eCall and waits a short time for the modem to report the call. The call ID is
// 0 if the modem did not report the call in time.
func (a *Adapter) Start(ctx context.Context, startType ecall.StartType) (int, error) {
	request, err := StartECall(startType)
	if err != nil {
		return 0, err
	}

	dialing := make(chan int, 1)
	a.lock.Lock()
	a.hungUpLocally = false
	a.dialing = dialing
	a.lock.Unlock()

	if _, err := a.modem.AT(ctx, request); err != nil {
		a.lock.Lock()
		a.dialing = nil
		a.lock.Unlock()
		return 0, err
	}

	timeout := time.NewTimer(a.callIDTimeout)
	defer timeout.Stop()
	select {
	case callID := <-dialing:
		return callID, nil
	case <-timeout.C:
	case <-ctx.Done():
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	a.dialing = nil
	select {
	case callID := <-dialing:
		return callID, nil
	default:
		a.log.WithField("type", startType).Debug("no call reported for the eCall")
		return 0, nil
	}
}

// Stop stops the eCall procedure of the modem.
func (a *Adapter) Stop(ctx context.Context) error {
	a.markHungUp()
	return a.modem.ATs(ctx, StopECall)
}

// End hangs up the eCall.
func (a *Adapter) End(ctx context.Context) error {
	a.markHungUp()
	return a.modem.ATs(ctx, HangUp)
}

// LoadMsd implements ecall.Platform.
func (a *Adapter) LoadMsd(ctx context.Context, msd []byte) error {
	return a.modem.ATs(ctx, LoadMsd(msd))
}

// SendMsd loads the given MSD and transmits it to the PSAP.
func (a *Adapter) SendMsd(ctx context.Context, msd []byte) error {
	return a.modem.ATs(ctx, LoadMsd(msd), TransmitMsd)
}

// SetPsapNumber implements ecall.Platform.
func (a *Adapter) SetPsapNumber(ctx context.Context, number string) error {
	return a.modem.ATs(ctx, SetPsapNumber(number))
}

// PsapNumber implements ecall.Platform.
func (a *Adapter) PsapNumber(ctx context.Context) (string, error) {
	return RequestPsapNumber(ctx, a.modem)
}

// UseUSimNumbers implements ecall.Platform.
func (a *Adapter) UseUSimNumbers(ctx context.Context) error {
	return a.modem.ATs(ctx, UseUSimNumbers)
}

// SetOperationMode implements ecall.Platform.
func (a *Adapter) SetOperationMode(ctx context.Context, mode ecall.OperationMode) error {
	return a.modem.ATs(ctx, SetOperationMode(mode))
}

// OperationMode implements ecall.Platform.
func (a *Adapter) OperationMode(ctx context.Context) (ecall.OperationMode, error) {
	return RequestOperationMode(ctx, a.modem)
}

// SetMsdTxMode implements ecall.Platform.
func (a *Adapter) SetMsdTxMode(ctx context.Context, mode ecall.MsdTxMode) error {
	return a.modem.ATs(ctx, SetMsdTxMode(mode))
}

// MsdTxMode implements ecall.Platform.
func (a *Adapter) MsdTxMode(ctx context.Context) (ecall.MsdTxMode, error) {
	return RequestMsdTxMode(ctx, a.modem)
}

// SetNadDeregistrationTime implements ecall.Platform.
func (a *Adapter) SetNadDeregistrationTime(ctx context.Context, minutes uint16) error {
	return a.modem.ATs(ctx, SetNadDeregistrationTime(minutes))
}

// NadDeregistrationTime implements ecall.Platform.
func (a *Adapter) NadDeregistrationTime(ctx context.Context) (uint16, error) {
	return RequestNadDeregistrationTime(ctx, a.modem)
}

// SetEraGlonassTimer implements ecall.Platform.
func (a *Adapter) SetEraGlonassTimer(ctx context.Context, timer ecall.EraGlonassTimer, value time.Duration) error {
	return a.modem.ATs(ctx, SetTimer(timer, value))
}

// EraGlonassTimer implements ecall.Platform.
func (a *Adapter) EraGlonassTimer(ctx context.Context, timer ecall.EraGlonassTimer) (time.Duration, error) {
	return RequestTimer(ctx, a.modem, timer)
}

// HangUpAll implements ecall.CallControl.
func (a *Adapter) HangUpAll(ctx context.Context) error {
	return a.modem.ATs(ctx, HangUp)
}

// TerminationReason reads the release cause of the last call. The modem only keeps the cause of the
// most recent call, so the call ID is only used for logging.
func (a *Adapter) TerminationReason(ctx context.Context, callID int) (ecall.TerminationReason, error) {
	cause, err := RequestReleaseCause(ctx, a.modem)
	if err != nil {
		return ecall.TerminationNotDefined, err
	}
	a.lock.Lock()
	hungUpLocally := a.hungUpLocally
	a.lock.Unlock()

	reason := TerminationReason(cause, hungUpLocally)
	a.log.WithFields(logrus.Fields{
		"call":   callID,
		"cause":  cause,
		"reason": reason,
	}).Debug("call terminated")
	return reason, nil
}

// PlatformTerminationCode returns the raw release cause of the last call.
func (a *Adapter) PlatformTerminationCode(ctx context.Context, _ int) (int, error) {
	return RequestReleaseCause(ctx, a.modem)
}

func (a *Adapter) markHungUp() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.hungUpLocally = true
}
