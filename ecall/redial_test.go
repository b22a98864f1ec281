package ecall

import (
	"context"
	"testing"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedialAfterFailedAttempt(t *testing.T) {
	tt := []struct {
		desc          string
		elapsed       time.Duration
		expectedDelay time.Duration
	}{
		{"immediately", 0, 30 * time.Second},
		{"after some seconds", 10 * time.Second, 20 * time.Second},
		{"fractions are ignored", 10*time.Second + 700*time.Millisecond, 20 * time.Second},
		{"interval elapsed", 30 * time.Second, time.Second},
		{"interval exceeded", 45 * time.Second, time.Second},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			s := setupService(t)
			require.NoError(t, s.service.StartManual(context.Background(), s.ref))
			s.platform.Report(StateStarted)
			s.clock.Advance(tc.elapsed)

			s.platform.Report(StateDisconnected)

			assert.Equal(t, []time.Duration{tc.expectedDelay}, s.clock.Pending())
			assert.Equal(t, 1, s.platform.Starts())
			s.clock.Advance(tc.expectedDelay - time.Millisecond)
			assert.Equal(t, 1, s.platform.Starts())
			s.clock.Advance(time.Millisecond)
			assert.Equal(t, 2, s.platform.Starts())
			assert.Equal(t, int64(1), metrics.GetOrRegisterCounter(MetricRedialScheduled, s.registry).Count())
		})
	}
}

func TestRedial_UsesConfiguredInterval(t *testing.T) {
	s := setupService(t)
	require.NoError(t, s.service.SetIntervalBetweenDialAttempts(time.Minute))
	require.NoError(t, s.service.StartAutomatic(context.Background(), s.ref))

	s.platform.Report(StateStarted, StateDisconnected)

	assert.Equal(t, []time.Duration{time.Minute}, s.clock.Pending())
	assert.Equal(t, []StartType{StartAutomatic}, s.platform.starts)
	s.clock.Advance(time.Minute)
	assert.Equal(t, []StartType{StartAutomatic, StartAutomatic}, s.platform.starts)
}

func TestNoRedialWhenStopped(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	require.NoError(t, s.service.StartManual(ctx, s.ref))
	s.platform.Report(StateStarted)
	require.NoError(t, s.service.End(ctx, s.ref))

	s.platform.Report(StateDisconnected)

	assert.Empty(t, s.clock.Pending())
	assert.Equal(t, 1, s.platform.Starts())
	assert.Equal(t, []State{StateStarted, StateDisconnected}, s.recorder.States())
}

func TestPanEuropean_ReconnectAfterDrop(t *testing.T) {
	s := setupService(t)
	require.NoError(t, s.service.StartAutomatic(context.Background(), s.ref))
	s.platform.Report(StateStarted, StateConnected)

	s.platform.Report(StateDisconnected)

	assert.Equal(t, 2, s.platform.Starts(), "immediate redial")
	assert.Equal(t, []time.Duration{120 * time.Second}, s.clock.Pending())

	s.platform.Report(StateStarted)
	s.clock.Advance(10 * time.Second)
	s.platform.Report(StateDisconnected)
	assert.Equal(t, []time.Duration{20 * time.Second, 110 * time.Second}, s.clock.Pending())

	s.clock.Advance(20 * time.Second)
	assert.Equal(t, 3, s.platform.Starts())
	s.platform.Report(StateStarted)

	s.clock.Advance(90 * time.Second)
	assert.Equal(t, 1, s.platform.Stops())
	assert.Equal(t, StateEndOfRedialPeriod, s.recorder.States()[len(s.recorder.States())-1])
	assert.Equal(t, int64(1), metrics.GetOrRegisterCounter(MetricRedialPeriodEnded, s.registry).Count())

	s.platform.Report(StateDisconnected)
	s.clock.Advance(time.Minute)
	assert.Equal(t, 3, s.platform.Starts(), "no more dialing")
}

func TestPanEuropean_ReconnectedInTime(t *testing.T) {
	s := setupService(t)
	require.NoError(t, s.service.StartAutomatic(context.Background(), s.ref))
	s.platform.Report(StateStarted, StateConnected, StateDisconnected)
	require.Len(t, s.clock.Pending(), 1)

	s.platform.Report(StateStarted, StateConnected)

	assert.Empty(t, s.clock.Pending())
	s.clock.Advance(5 * time.Minute)
	assert.Equal(t, 0, s.platform.Stops())
}

func TestEraGlonass_RedialBookkeeping(t *testing.T) {
	s := setupService(t, WithStandard(EraGlonass))
	require.NoError(t, s.service.SetEraGlonassDialDuration(time.Hour))
	require.NoError(t, s.service.StartAutomatic(context.Background(), s.ref))

	for attempt := 1; attempt < DefaultEraGlonassDialAttempts; attempt++ {
		s.platform.Report(StateStarted, StateDisconnected)
		s.clock.Advance(DefaultIntervalBetweenAttempts)
		require.Equal(t, attempt+1, s.platform.Starts())
	}
	assert.Equal(t, 0, s.service.dialAttemptsCount)
	assert.NotContains(t, s.recorder.States(), StateEndOfRedialPeriod)

	s.platform.Report(StateStarted, StateDisconnected)
	s.clock.Advance(DefaultIntervalBetweenAttempts)

	assert.Equal(t, DefaultEraGlonassDialAttempts, s.platform.Starts())
	assert.Contains(t, s.recorder.States(), StateEndOfRedialPeriod)
	state, err := s.service.State(s.ref)
	require.NoError(t, err)
	assert.Equal(t, StateEndOfRedialPeriod, state)
}

func TestEraGlonass_ManualAndAutomaticAttempts(t *testing.T) {
	tt := []struct {
		desc     string
		start    func(*Service, context.Context, Ref) error
		expected int
	}{
		{"automatic", (*Service).StartAutomatic, 3},
		{"manual", (*Service).StartManual, 2},
		{"test", (*Service).StartTest, 2},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			s := setupService(t, WithStandard(EraGlonass))
			require.NoError(t, s.service.SetEraGlonassManualDialAttempts(2))
			require.NoError(t, s.service.SetEraGlonassAutoDialAttempts(3))
			require.NoError(t, tc.start(s.service, context.Background(), s.ref))

			for i := 0; i < 5; i++ {
				s.platform.Report(StateStarted, StateDisconnected)
				s.clock.Advance(DefaultIntervalBetweenAttempts)
			}

			assert.Equal(t, tc.expected, s.platform.Starts())
		})
	}
}

func TestEraGlonass_DialDuration(t *testing.T) {
	s := setupService(t, WithStandard(EraGlonass))
	require.NoError(t, s.service.StartManual(context.Background(), s.ref))
	s.platform.Report(StateStarted, StateDisconnected)

	s.clock.Advance(DefaultIntervalBetweenAttempts)
	require.Equal(t, 2, s.platform.Starts())
	s.platform.Report(StateStarted)
	s.clock.Advance(DefaultEraGlonassDialDuration - DefaultIntervalBetweenAttempts)

	assert.Equal(t, 1, s.platform.Stops())
	assert.Equal(t, []State{StateStarted, StateDisconnected, StateStarted, StateEndOfRedialPeriod}, s.recorder.States())
	assert.Equal(t, 0, s.service.dialAttemptsCount)

	s.platform.Report(StateDisconnected)
	s.clock.Advance(DefaultIntervalBetweenAttempts)
	assert.Equal(t, 2, s.platform.Starts())
}

func TestEraGlonass_ReconnectAfterDrop(t *testing.T) {
	s := setupService(t, WithStandard(EraGlonass))
	require.NoError(t, s.service.SetEraGlonassManualDialAttempts(2))
	require.NoError(t, s.service.StartManual(context.Background(), s.ref))

	s.platform.Report(StateStarted, StateConnected, StateDisconnected)
	assert.Equal(t, 2, s.platform.Starts(), "immediate redial")

	s.platform.Report(StateStarted, StateConnected, StateDisconnected)
	assert.Equal(t, 2, s.platform.Starts(), "no attempts left")
	assert.NotContains(t, s.recorder.States(), StateEndOfRedialPeriod)
	assert.Equal(t, []time.Duration{DefaultEraGlonassDialDuration}, s.clock.Pending())
}

func TestDisconnectedWaitsForTerminationReason(t *testing.T) {
	tt := []struct {
		desc            string
		terminatedFirst bool
	}{
		{"disconnected first", false},
		{"terminated first", true},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			callControl := &fakeCallControl{reason: TerminationBusy, code: 17}
			s := setupService(t, WithCallControl(callControl))
			require.NoError(t, s.service.StartManual(context.Background(), s.ref))
			s.platform.Report(StateStarted)
			callID := s.platform.lastCallID

			if tc.terminatedFirst {
				callControl.Emit(CallEvent{CallID: callID, Type: CallTerminated})
				assert.Equal(t, []State{StateStarted}, s.recorder.States())
				s.platform.Report(StateDisconnected)
			} else {
				s.platform.Report(StateDisconnected)
				assert.Equal(t, []State{StateStarted}, s.recorder.States())
				assert.Empty(t, s.clock.Pending())
				callControl.Emit(CallEvent{CallID: callID, Type: CallTerminated})
			}

			assert.Equal(t, []State{StateStarted, StateDisconnected}, s.recorder.States())
			assert.Equal(t, []int{callID}, callControl.queried)
			reason, err := s.service.TerminationReason(s.ref)
			require.NoError(t, err)
			assert.Equal(t, TerminationBusy, reason)
			code, err := s.service.PlatformTerminationCode(s.ref)
			require.NoError(t, err)
			assert.Equal(t, 17, code)
			assert.Len(t, s.clock.Pending(), 1, "redial scheduled")
		})
	}
}

func TestDisconnectedIgnoresUnrelatedCalls(t *testing.T) {
	callControl := &fakeCallControl{reason: TerminationRemoteEnded}
	s := setupService(t, WithCallControl(callControl))
	require.NoError(t, s.service.StartManual(context.Background(), s.ref))
	s.platform.Report(StateStarted, StateDisconnected)

	callControl.Emit(CallEvent{CallID: s.platform.lastCallID + 5, Type: CallTerminated})
	callControl.Emit(CallEvent{CallID: s.platform.lastCallID, Type: CallConnected})

	assert.Equal(t, []State{StateStarted}, s.recorder.States())
	assert.Empty(t, callControl.queried)
}

func TestDisconnectedWithUnknownCallID(t *testing.T) {
	tt := []struct {
		desc     string
		before   []CallEvent
		after    CallEvent
		expected []int
	}{
		{
			desc:     "released call before connect",
			before:   []CallEvent{{CallID: 7, Type: CallTerminated}, {CallID: 3, Type: CallConnected}},
			after:    CallEvent{CallID: 3, Type: CallTerminated},
			expected: []int{3},
		},
		{
			desc:     "terminated without connect",
			before:   []CallEvent{{CallID: 7, Type: CallTerminated}},
			after:    CallEvent{CallID: 3, Type: CallTerminated},
			expected: []int{3},
		},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			callControl := &fakeCallControl{reason: TerminationRemoteEnded}
			s := setupService(t, WithCallControl(callControl))
			s.platform.hideCallID = true
			require.NoError(t, s.service.StartManual(context.Background(), s.ref))
			s.platform.Report(StateStarted)

			for _, event := range tc.before {
				callControl.Emit(event)
			}
			s.platform.Report(StateDisconnected)
			assert.Equal(t, []State{StateStarted}, s.recorder.States())
			callControl.Emit(tc.after)

			assert.Equal(t, []State{StateStarted, StateDisconnected}, s.recorder.States())
			assert.Equal(t, tc.expected, callControl.queried)
		})
	}
}

func TestDisconnectedWithoutCallControl(t *testing.T) {
	s := setupService(t)
	require.NoError(t, s.service.StartManual(context.Background(), s.ref))

	s.platform.Report(StateStarted, StateDisconnected)

	assert.Equal(t, []State{StateStarted, StateDisconnected}, s.recorder.States())
	reason, err := s.service.TerminationReason(s.ref)
	require.NoError(t, err)
	assert.Equal(t, TerminationNotDefined, reason)
}

func TestRedialTimer(t *testing.T) {
	clock := newFakeClock()
	timer := newRedialTimer(clock)
	var fired []uint64
	fire := func(generation uint64) {
		if timer.Fired(generation) {
			fired = append(fired, generation)
		}
	}

	timer.Stop()
	timer.Stop()
	assert.False(t, timer.Running())

	timer.Start(time.Second, fire)
	assert.True(t, timer.Running())
	timer.Start(2*time.Second, fire)
	clock.Advance(time.Second)
	assert.Empty(t, fired, "re-armed timer must not fire early")
	clock.Advance(time.Second)
	assert.Len(t, fired, 1)
	assert.False(t, timer.Running())

	timer.Start(time.Second, func(generation uint64) {
		timer.Stop()
		fire(generation)
	})
	clock.Advance(time.Second)
	assert.Len(t, fired, 1, "stopped timer must be discarded")
}
