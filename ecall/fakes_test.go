package ecall

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testVIN = "WM9VDSVDSYA123456"

var testEpoch = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	lock   sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	done     bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.lock.Lock()
	defer c.lock.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.lock.Lock()
	defer t.clock.lock.Unlock()
	active := !t.done
	t.done = true
	return active
}

// Advance moves the clock forward and runs all timers that expire until then, in the order of their deadlines.
func (c *fakeClock) Advance(d time.Duration) {
	c.lock.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.done && !t.deadline.After(c.now) {
			t.done = true
			due = append(due, t)
		}
	}
	c.lock.Unlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, t := range due {
		t.f()
	}
}

// Pending returns the remaining durations of all active timers, shortest first.
func (c *fakeClock) Pending() []time.Duration {
	c.lock.Lock()
	defer c.lock.Unlock()
	var result []time.Duration
	for _, t := range c.timers {
		if !t.done {
			result = append(result, t.deadline.Sub(c.now))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

type fakePlatform struct {
	lock       sync.Mutex
	standards  []SystemStandard
	starts     []StartType
	lastCallID int
	hideCallID bool
	startErr   error
	endErr     error
	sendErr    error
	stops      int
	ends       int
	loaded     [][]byte
	sent       [][]byte
	psap       string
	opMode     OperationMode
	txMode     MsdTxMode
	nad        uint16
	useUSim    int
	timers     map[EraGlonassTimer]time.Duration
	handler    func(State)
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{timers: make(map[EraGlonassTimer]time.Duration)}
}

func (p *fakePlatform) Init(_ context.Context, standard SystemStandard) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.standards = append(p.standards, standard)
	return nil
}

func (p *fakePlatform) Start(_ context.Context, startType StartType) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.startErr != nil {
		return 0, p.startErr
	}
	p.starts = append(p.starts, startType)
	p.lastCallID++
	if p.hideCallID {
		return 0, nil
	}
	return p.lastCallID, nil
}

func (p *fakePlatform) Stop(context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.stops++
	return nil
}

func (p *fakePlatform) End(context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.endErr != nil {
		return p.endErr
	}
	p.ends++
	return nil
}

func (p *fakePlatform) LoadMsd(_ context.Context, msd []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.loaded = append(p.loaded, append([]byte{}, msd...))
	return nil
}

func (p *fakePlatform) SendMsd(_ context.Context, msd []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, append([]byte{}, msd...))
	return nil
}

func (p *fakePlatform) SetPsapNumber(_ context.Context, number string) error {
	p.psap = number
	return nil
}

func (p *fakePlatform) PsapNumber(context.Context) (string, error) {
	return p.psap, nil
}

func (p *fakePlatform) SetOperationMode(_ context.Context, mode OperationMode) error {
	p.opMode = mode
	return nil
}

func (p *fakePlatform) OperationMode(context.Context) (OperationMode, error) {
	return p.opMode, nil
}

func (p *fakePlatform) SetMsdTxMode(_ context.Context, mode MsdTxMode) error {
	p.txMode = mode
	return nil
}

func (p *fakePlatform) MsdTxMode(context.Context) (MsdTxMode, error) {
	return p.txMode, nil
}

func (p *fakePlatform) SetNadDeregistrationTime(_ context.Context, minutes uint16) error {
	p.nad = minutes
	return nil
}

func (p *fakePlatform) NadDeregistrationTime(context.Context) (uint16, error) {
	return p.nad, nil
}

func (p *fakePlatform) UseUSimNumbers(context.Context) error {
	p.useUSim++
	return nil
}

func (p *fakePlatform) SetEraGlonassTimer(_ context.Context, timer EraGlonassTimer, value time.Duration) error {
	p.timers[timer] = value
	return nil
}

func (p *fakePlatform) EraGlonassTimer(_ context.Context, timer EraGlonassTimer) (time.Duration, error) {
	return p.timers[timer], nil
}

func (p *fakePlatform) AddStateHandler(handler func(State)) {
	p.handler = handler
}

// Report delivers the given states as if the modem reported them.
func (p *fakePlatform) Report(states ...State) {
	for _, state := range states {
		p.handler(state)
	}
}

func (p *fakePlatform) Starts() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.starts)
}

func (p *fakePlatform) Stops() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.stops
}

func (p *fakePlatform) LastLoaded() []byte {
	p.lock.Lock()
	defer p.lock.Unlock()
	if len(p.loaded) == 0 {
		return nil
	}
	return p.loaded[len(p.loaded)-1]
}

type fakeCallControl struct {
	hangUps   int
	hangUpErr error
	reason    TerminationReason
	code      int
	queried   []int
	handler   func(CallEvent)
}

func (c *fakeCallControl) HangUpAll(context.Context) error {
	c.hangUps++
	return c.hangUpErr
}

func (c *fakeCallControl) TerminationReason(_ context.Context, callID int) (TerminationReason, error) {
	c.queried = append(c.queried, callID)
	return c.reason, nil
}

func (c *fakeCallControl) PlatformTerminationCode(context.Context, int) (int, error) {
	return c.code, nil
}

func (c *fakeCallControl) AddCallEventHandler(handler func(CallEvent)) {
	c.handler = handler
}

func (c *fakeCallControl) Emit(event CallEvent) {
	c.handler(event)
}

type stateRecorder struct {
	lock   sync.Mutex
	refs   []Ref
	states []State
}

func (r *stateRecorder) Handle(ref Ref, state State) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.refs = append(r.refs, ref)
	r.states = append(r.states, state)
}

func (r *stateRecorder) States() []State {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]State{}, r.states...)
}

type testSetup struct {
	service  *Service
	ref      Ref
	platform *fakePlatform
	clock    *fakeClock
	registry metrics.Registry
	recorder *stateRecorder
}

func setupService(t *testing.T, options ...Option) testSetup {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	result := testSetup{
		platform: newFakePlatform(),
		clock:    newFakeClock(),
		registry: metrics.NewRegistry(),
		recorder: new(stateRecorder),
	}
	options = append([]Option{
		WithClock(result.clock),
		WithMetrics(result.registry),
		WithLogger(logrus.NewEntry(logger)),
	}, options...)

	service, err := New(context.Background(), result.platform, options...)
	require.NoError(t, err)
	result.service = service
	result.ref = service.Create()
	require.NoError(t, service.SetVIN(result.ref, testVIN))
	service.AddStateChangeHandler(result.recorder.Handle)
	return result
}
