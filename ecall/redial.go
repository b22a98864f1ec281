package ecall

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// onPlatformState is called by the platform for every eCall state reported by the modem.
// DISCONNECTED is held back until the termination reason of the call is known.
func (s *Service) onPlatformState(state State) {
	s.lock.Lock()

	if state == StateDisconnected && s.callControl != nil {
		s.disconnectPending = true
		resolve := s.callTerminated
		callID := s.callID
		s.lock.Unlock()
		if resolve {
			s.resolveDisconnect(callID)
		}
		return
	}
	if state == StateDisconnected {
		s.terminationReason = TerminationNotDefined
		s.terminationCode = 0
	}

	ctx, cancel := s.callbackContext()
	defer cancel()
	s.handleState(ctx, state)
	s.unlockAndPublish()
}

// onCallEvent is called by the call control for every event of a voice call.
func (s *Service) onCallEvent(event CallEvent) {
	s.lock.Lock()

	// While the id of the eCall is unknown, it is taken from the first call that connects. A
	// termination is only taken while DISCONNECTED is held back, earlier ones belong to the calls
	// released before the start.
	if s.callID == 0 && !s.isStopped {
		if event.Type == CallConnected || (event.Type == CallTerminated && s.disconnectPending) {
			s.callID = event.CallID
		}
	}
	if event.CallID != s.callID {
		s.lock.Unlock()
		s.log.WithField("call", event.CallID).Debug("ignoring event of unrelated call")
		return
	}
	if event.Type != CallTerminated {
		s.lock.Unlock()
		return
	}

	s.callTerminated = true
	resolve := s.disconnectPending
	s.lock.Unlock()
	if resolve {
		s.resolveDisconnect(event.CallID)
	}
}

// resolveDisconnect fetches the termination reason of the given call and then handles the held back
// DISCONNECTED state.
func (s *Service) resolveDisconnect(callID int) {
	ctx, cancel := s.callbackContext()
	defer cancel()

	reason, err := s.callControl.TerminationReason(ctx, callID)
	if err != nil {
		s.log.WithError(err).WithField("call", callID).Warn("cannot get the termination reason")
		reason = TerminationNotDefined
	}
	code, err := s.callControl.PlatformTerminationCode(ctx, callID)
	if err != nil {
		s.log.WithError(err).WithField("call", callID).Warn("cannot get the platform termination code")
		code = 0
	}

	s.lock.Lock()
	if !s.disconnectPending || s.callID != callID {
		s.lock.Unlock()
		return
	}
	s.disconnectPending = false
	s.terminationReason = reason
	s.terminationCode = code
	s.handleState(ctx, StateDisconnected)
	s.unlockAndPublish()
}

// handleState updates the session according to the given state and queues it for the handlers.
// It must be called while holding the lock.
func (s *Service) handleState(ctx context.Context, state State) {
	log := s.runLog()
	log.WithField("state", state).Debug("eCall state")
	s.state = state

	switch state {
	case StateStarted:
		s.isStarted = true
		s.isCompleted = false
		s.startTentativeTime = s.clock.Now()
		s.terminationReason = TerminationNotDefined
		s.terminationCode = 0
	case StateConnected:
		s.wasConnected = true
		s.remainingDialDurationTimer.Stop()
		s.intervalTimer.Stop()
	case StateDisconnected:
		log.WithFields(logrus.Fields{
			"reason": s.terminationReason,
			"code":   s.terminationCode,
		}).Info("eCall disconnected")
		s.redialAfterDisconnect(ctx, log)
	case StateCompleted:
		s.isStopped = true
		s.built = nil
		s.isStarted = false
		s.isCompleted = true
		s.imported = false
		s.computed = false
		s.stopTimers()
		s.metrics.sessionsCompleted.Inc(1)
		log.Info("eCall session completed")
	case StateUnknown:
		log.Error("unknown eCall indication")
	}

	s.emit(state)
}

func (s *Service) redialAfterDisconnect(ctx context.Context, log *logrus.Entry) {
	if s.isCompleted || s.isStopped {
		return
	}

	if s.wasConnected {
		s.wasConnected = false
		if s.standard == EraGlonass {
			if s.dialAttemptsCount == 0 {
				log.Warn("connection to the PSAP lost, no dial attempts left")
				return
			}
			log.WithField("attempt", s.dialAttempts-s.dialAttemptsCount+1).Info("connection to the PSAP lost, redial")
			if s.dial(ctx) == nil {
				s.dialAttemptsCount--
			}
			return
		}
		log.WithField("window", panEuropeanReconnectWindow).Warn("connection to the PSAP lost, redial")
		s.remainingDialDurationTimer.Start(panEuropeanReconnectWindow, s.onRemainingDialDurationExpired)
		s.dial(ctx)
		return
	}

	elapsed := s.clock.Now().Sub(s.startTentativeTime).Truncate(time.Second)
	delay := minimumRedialDelay
	if elapsed < s.intervalBetweenAttempts {
		delay = s.intervalBetweenAttempts - elapsed
	}
	log.WithField("delay", delay).Warn("failed to connect with the PSAP, redial later")
	s.metrics.redialScheduled.Inc(1)
	s.intervalTimer.Start(delay, s.onIntervalExpired)
}

// dial starts the next call attempt of the current run. It must be called while holding the lock.
func (s *Service) dial(ctx context.Context) error {
	callID, err := s.platform.Start(ctx, s.startType)
	if err != nil {
		s.runLog().WithError(err).Error("cannot start the eCall")
		return err
	}
	s.metrics.dialAttempts.Inc(1)
	s.callID = callID
	s.callTerminated = false
	s.disconnectPending = false
	return nil
}

func (s *Service) stopTimers() {
	s.intervalTimer.Stop()
	s.remainingDialDurationTimer.Stop()
	s.dialDurationTimer.Stop()
}

func (s *Service) endOfRedialPeriod() {
	s.state = StateEndOfRedialPeriod
	s.metrics.redialPeriodEnded.Inc(1)
	s.emit(StateEndOfRedialPeriod)
}

func (s *Service) onIntervalExpired(generation uint64) {
	s.lock.Lock()
	defer s.unlockAndPublish()
	if !s.intervalTimer.Fired(generation) {
		return
	}
	ctx, cancel := s.callbackContext()
	defer cancel()
	log := s.runLog()

	if s.standard == EraGlonass {
		if s.dialAttemptsCount == 0 {
			log.WithField("attempts", s.dialAttempts).Warn("all dial attempts used or dial duration expired, stop dialing")
			s.endOfRedialPeriod()
			return
		}
		log.WithFields(logrus.Fields{
			"attempt":  s.dialAttempts - s.dialAttemptsCount + 1,
			"attempts": s.dialAttempts,
		}).Info("interval expired, redial")
		if s.dial(ctx) == nil {
			s.dialAttemptsCount--
		}
		return
	}

	if s.stopDialing {
		return
	}
	log.Info("interval expired, redial")
	s.dial(ctx)
}

func (s *Service) onDialDurationExpired(generation uint64) {
	s.lock.Lock()
	defer s.unlockAndPublish()
	if !s.dialDurationTimer.Fired(generation) {
		return
	}
	ctx, cancel := s.callbackContext()
	defer cancel()

	s.runLog().WithField("duration", s.dialDuration).Info("dial duration expired, stop dialing")
	s.dialAttemptsCount = 0
	s.endOfRedialPeriod()
	if err := s.platform.Stop(ctx); err != nil {
		s.runLog().WithError(err).Error("cannot stop the eCall")
	}
}

func (s *Service) onRemainingDialDurationExpired(generation uint64) {
	s.lock.Lock()
	defer s.unlockAndPublish()
	if !s.remainingDialDurationTimer.Fired(generation) {
		return
	}
	ctx, cancel := s.callbackContext()
	defer cancel()

	s.runLog().Info("remaining dial duration expired, stop dialing")
	s.stopDialing = true
	s.endOfRedialPeriod()
	if err := s.platform.Stop(ctx); err != nil {
		s.runLog().WithError(err).Error("cannot stop the eCall")
	}
}
