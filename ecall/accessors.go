package ecall

import (
	"context"
	"fmt"
	"time"
)

// MaxPsapNumberLength is the maximum length of a PSAP phone number.
const MaxPsapNumberLength = 17

// Allowed range of the ERA-GLONASS call clear-down fallback timer (CCFT)
const (
	MinEraGlonassFallbackTime = 1 * time.Minute
	MaxEraGlonassFallbackTime = 720 * time.Minute
)

// SetPsapNumber overrides the PSAP number stored on the U/SIM.
func (s *Service) SetPsapNumber(ctx context.Context, number string) error {
	if number == "" || len(number) > MaxPsapNumberLength {
		return fmt.Errorf("%w: invalid PSAP number %q", ErrBadParameter, number)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.platform.SetPsapNumber(ctx, number); err != nil {
		return fmt.Errorf("%w: cannot set the PSAP number: %w", ErrFault, err)
	}
	return nil
}

// PsapNumber returns the PSAP number that is configured in the modem.
func (s *Service) PsapNumber(ctx context.Context) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	number, err := s.platform.PsapNumber(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: cannot get the PSAP number: %w", ErrFault, err)
	}
	if number == "" {
		return "", ErrNotFound
	}
	return number, nil
}

// UseUSimNumbers makes the modem dial the numbers stored on the U/SIM again.
func (s *Service) UseUSimNumbers(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.platform.UseUSimNumbers(ctx); err != nil {
		return fmt.Errorf("%w: cannot use the U/SIM numbers: %w", ErrFault, err)
	}
	return nil
}

// ForceOnlyMode restricts the modem to eCall until the next power cycle.
func (s *Service) ForceOnlyMode(ctx context.Context) error {
	return s.setOperationMode(ctx, OnlyMode)
}

// ForcePersistentOnlyMode restricts the modem to eCall, also after a power cycle.
func (s *Service) ForcePersistentOnlyMode(ctx context.Context) error {
	return s.setOperationMode(ctx, ForcedPersistentOnlyMode)
}

// ExitOnlyMode returns to the operation mode configured on the U/SIM.
func (s *Service) ExitOnlyMode(ctx context.Context) error {
	return s.setOperationMode(ctx, NormalMode)
}

func (s *Service) setOperationMode(ctx context.Context, mode OperationMode) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.platform.SetOperationMode(ctx, mode); err != nil {
		return fmt.Errorf("%w: cannot set the operation mode to %s: %w", ErrFault, mode, err)
	}
	s.log.WithField("mode", mode).Info("operation mode changed")
	return nil
}

// ConfiguredOperationMode returns the operation mode of the modem.
func (s *Service) ConfiguredOperationMode(ctx context.Context) (OperationMode, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	mode, err := s.platform.OperationMode(ctx)
	if err != nil {
		return NormalMode, fmt.Errorf("%w: cannot get the operation mode: %w", ErrFault, err)
	}
	return mode, nil
}

// SetMsdTxMode selects if the MSD is pushed to the PSAP or pulled by the PSAP.
func (s *Service) SetMsdTxMode(ctx context.Context, mode MsdTxMode) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.platform.SetMsdTxMode(ctx, mode); err != nil {
		return fmt.Errorf("%w: cannot set the MSD transmission mode: %w", ErrFault, err)
	}
	return nil
}

// MsdTxMode returns the MSD transmission mode.
func (s *Service) MsdTxMode(ctx context.Context) (MsdTxMode, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	mode, err := s.platform.MsdTxMode(ctx)
	if err != nil {
		return TxModePush, fmt.Errorf("%w: cannot get the MSD transmission mode: %w", ErrFault, err)
	}
	return mode, nil
}

// SetNadDeregistrationTime sets how long, in minutes, the modem stays registered after an eCall.
func (s *Service) SetNadDeregistrationTime(ctx context.Context, minutes uint16) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.platform.SetNadDeregistrationTime(ctx, minutes); err != nil {
		return fmt.Errorf("%w: cannot set the NAD deregistration time: %w", ErrFault, err)
	}
	return nil
}

// NadDeregistrationTime returns the NAD deregistration time in minutes.
func (s *Service) NadDeregistrationTime(ctx context.Context) (uint16, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	minutes, err := s.platform.NadDeregistrationTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot get the NAD deregistration time: %w", ErrFault, err)
	}
	return minutes, nil
}

// SetIntervalBetweenDialAttempts sets the minimum interval between the starts of two dial attempts.
func (s *Service) SetIntervalBetweenDialAttempts(interval time.Duration) error {
	if interval < 0 {
		return fmt.Errorf("%w: negative interval %v", ErrBadParameter, interval)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.intervalBetweenAttempts = interval
	return nil
}

// IntervalBetweenDialAttempts returns the minimum interval between the starts of two dial attempts.
func (s *Service) IntervalBetweenDialAttempts() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.intervalBetweenAttempts
}

// SetEraGlonassManualDialAttempts sets the number of dial attempts of manually triggered ERA-GLONASS eCalls.
func (s *Service) SetEraGlonassManualDialAttempts(attempts uint16) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.manualDialAttempts = int(attempts)
	s.dialAttempts = int(attempts)
	return nil
}

// EraGlonassManualDialAttempts returns the number of dial attempts of manually triggered ERA-GLONASS eCalls.
func (s *Service) EraGlonassManualDialAttempts() uint16 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return uint16(s.manualDialAttempts)
}

// SetEraGlonassAutoDialAttempts sets the number of dial attempts of automatically triggered ERA-GLONASS eCalls.
func (s *Service) SetEraGlonassAutoDialAttempts(attempts uint16) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.autoDialAttempts = int(attempts)
	s.dialAttempts = int(attempts)
	return nil
}

// EraGlonassAutoDialAttempts returns the number of dial attempts of automatically triggered ERA-GLONASS eCalls.
func (s *Service) EraGlonassAutoDialAttempts() uint16 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return uint16(s.autoDialAttempts)
}

// SetEraGlonassDialDuration limits the overall time for all dial attempts of an ERA-GLONASS eCall.
func (s *Service) SetEraGlonassDialDuration(duration time.Duration) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.dialDuration = duration
	return nil
}

// EraGlonassDialDuration returns the overall time for all dial attempts of an ERA-GLONASS eCall.
func (s *Service) EraGlonassDialDuration() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.dialDuration
}

// SetEraGlonassFallbackTime sets the call clear-down fallback timer (CCFT).
func (s *Service) SetEraGlonassFallbackTime(ctx context.Context, value time.Duration) error {
	if value < MinEraGlonassFallbackTime || value > MaxEraGlonassFallbackTime {
		return fmt.Errorf("%w: fallback time %v out of range", ErrBadParameter, value)
	}
	return s.setEraGlonassTimer(ctx, FallbackTimer, value)
}

// EraGlonassFallbackTime returns the call clear-down fallback timer (CCFT).
func (s *Service) EraGlonassFallbackTime(ctx context.Context) (time.Duration, error) {
	return s.eraGlonassTimer(ctx, FallbackTimer)
}

// SetEraGlonassAutoAnswerTime sets how long the modem answers incoming PSAP calls automatically after an eCall.
func (s *Service) SetEraGlonassAutoAnswerTime(ctx context.Context, value time.Duration) error {
	return s.setEraGlonassTimer(ctx, AutoAnswerTimer, value)
}

// EraGlonassAutoAnswerTime returns the auto answer time.
func (s *Service) EraGlonassAutoAnswerTime(ctx context.Context) (time.Duration, error) {
	return s.eraGlonassTimer(ctx, AutoAnswerTimer)
}

// SetEraGlonassMsdMaxTransmissionTime limits the time for the transmission of the MSD.
func (s *Service) SetEraGlonassMsdMaxTransmissionTime(ctx context.Context, value time.Duration) error {
	return s.setEraGlonassTimer(ctx, MsdMaxTransmissionTimer, value)
}

// EraGlonassMsdMaxTransmissionTime returns the MSD max transmission time.
func (s *Service) EraGlonassMsdMaxTransmissionTime(ctx context.Context) (time.Duration, error) {
	return s.eraGlonassTimer(ctx, MsdMaxTransmissionTimer)
}

// SetEraGlonassPostTestRegistrationTime sets how long the modem stays registered after a test eCall.
func (s *Service) SetEraGlonassPostTestRegistrationTime(ctx context.Context, value time.Duration) error {
	return s.setEraGlonassTimer(ctx, PostTestRegistrationTimer, value)
}

// EraGlonassPostTestRegistrationTime returns the post test registration time.
func (s *Service) EraGlonassPostTestRegistrationTime(ctx context.Context) (time.Duration, error) {
	return s.eraGlonassTimer(ctx, PostTestRegistrationTimer)
}

func (s *Service) setEraGlonassTimer(ctx context.Context, timer EraGlonassTimer, value time.Duration) error {
	if value < 0 {
		return fmt.Errorf("%w: negative %s time", ErrBadParameter, timer)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.platform.SetEraGlonassTimer(ctx, timer, value); err != nil {
		return fmt.Errorf("%w: cannot set the %s time: %w", ErrFault, timer, err)
	}
	return nil
}

func (s *Service) eraGlonassTimer(ctx context.Context, timer EraGlonassTimer) (time.Duration, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	value, err := s.platform.EraGlonassTimer(ctx, timer)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot get the %s time: %w", ErrFault, timer, err)
	}
	return value, nil
}
