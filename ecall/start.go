package ecall

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StartAutomatic starts an automatically triggered eCall.
func (s *Service) StartAutomatic(ctx context.Context, ref Ref) error {
	return s.start(ctx, ref, StartAutomatic)
}

// StartManual starts a manually triggered eCall.
func (s *Service) StartManual(ctx context.Context, ref Ref) error {
	return s.start(ctx, ref, StartManual)
}

// StartTest starts a test eCall.
func (s *Service) StartTest(ctx context.Context, ref Ref) error {
	return s.start(ctx, ref, StartTest)
}

func (s *Service) start(ctx context.Context, ref Ref, startType StartType) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return err
	}
	if !s.isStopped {
		return ErrBusy
	}

	if s.callControl != nil {
		err := s.callControl.HangUpAll(ctx)
		if err != nil {
			return fmt.Errorf("%w: cannot hang up the ongoing calls: %w", ErrFault, err)
		}
	}

	s.runID = uuid.New()
	log := s.runLog().WithField("type", startType)

	s.msg.MessageIdentifier++
	s.msg.Timestamp = uint32(s.clock.Now().Unix())
	s.msg.Control.AutomaticActivation = startType == StartAutomatic
	s.msg.Control.TestCall = startType == StartTest
	if !s.imported {
		s.built = nil
	}
	if err := s.loadMsd(ctx); err != nil {
		return err
	}

	s.isStopped = false
	s.stopDialing = false
	s.wasConnected = false
	s.callID = 0
	s.callTerminated = false
	s.disconnectPending = false
	if s.standard == EraGlonass {
		if startType == StartAutomatic {
			s.dialAttemptsCount = s.autoDialAttempts
		} else {
			s.dialAttemptsCount = s.manualDialAttempts
		}
	}
	s.startType = startType

	if err := s.dial(ctx); err != nil {
		s.isStopped = true
		return fmt.Errorf("%w: %w", ErrFault, err)
	}

	if s.standard == EraGlonass {
		s.dialDurationTimer.Start(s.dialDuration, s.onDialDurationExpired)
		s.dialAttemptsCount--
		log = log.WithFields(logrus.Fields{
			"attempts":     s.dialAttemptsCount + 1,
			"dialDuration": s.dialDuration,
		})
	}
	log.WithField("msgId", s.msg.MessageIdentifier).Info("eCall started")
	return nil
}

// End ends the eCall session. The built MSD is discarded.
func (s *Service) End(ctx context.Context, ref Ref) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return err
	}

	s.built = nil
	s.imported = false
	s.computed = false
	s.isStarted = false
	s.isStopped = true

	if err := s.platform.End(ctx); err != nil {
		return fmt.Errorf("%w: cannot end the eCall: %w", ErrFault, err)
	}
	s.stopTimers()
	s.runLog().Info("eCall ended")
	return nil
}

// SendMsd sends the MSD to the PSAP, with a new message identifier.
func (s *Service) SendMsd(ctx context.Context, ref Ref) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return err
	}

	s.msg.MessageIdentifier++
	if !s.imported {
		s.built = nil
	}
	built, err := s.buildMsd()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFault, err)
	}
	if err := s.platform.SendMsd(ctx, built); err != nil {
		return fmt.Errorf("%w: cannot send the MSD: %w", ErrFault, err)
	}
	s.runLog().WithField("msgId", s.msg.MessageIdentifier).Info("MSD sent")
	return nil
}

// loadMsd builds the MSD if necessary and loads it into the modem.
func (s *Service) loadMsd(ctx context.Context) error {
	built, err := s.buildMsd()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFault, err)
	}
	if err := s.platform.LoadMsd(ctx, built); err != nil {
		return fmt.Errorf("%w: cannot load the MSD: %w", ErrFault, err)
	}
	return nil
}
