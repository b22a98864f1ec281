package ecall

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ftl/ecall/msd"
)

// buildMsd returns the built MSD. If there is none, the MSD is encoded from the session data.
// It must be called while holding the lock.
func (s *Service) buildMsd() ([]byte, error) {
	if s.built != nil {
		return s.built, nil
	}

	msg := s.msg
	msg.Propulsion = s.propulsion.storage()
	if s.standard == EraGlonass {
		msg.OptionalDataPresent = true
		msg.OptionalData = msd.EraGlonassOptionalData(&s.eraData)
	}

	buf := make([]byte, msd.MaxBytes)
	n, err := msd.Encode(&msg, buf)
	if err != nil {
		s.metrics.msdEncodeFailures.Inc(1)
		s.log.WithError(err).Error("cannot encode the MSD")
		return nil, err
	}
	s.built = buf[:n]
	s.computed = true
	s.metrics.msdEncoded.Inc(1)
	s.metrics.msdSize.Update(int64(n))
	s.log.WithFields(logrus.Fields{
		"vin":         msg.VIN,
		"vehicleType": msg.Control.VehicleType,
		"propulsion":  s.propulsion,
		"trusted":     msg.Control.PositionCanBeTrusted,
		"latitude":    msg.Location.Latitude,
		"longitude":   msg.Location.Longitude,
		"direction":   msg.Direction,
		"size":        n,
	}).Debugf("MSD encoded: %X", s.built)
	return s.built, nil
}

// modifyMsd applies the given modification to the MSD fields and discards the built MSD. Once MSD
// fields are set, no MSD can be imported until the session is completed or ended.
func (s *Service) modifyMsd(ref Ref, modify func() error) error {
	return s.modifySessionData(ref, func() error {
		if err := modify(); err != nil {
			return err
		}
		s.computed = true
		return nil
	})
}

// modifySessionData applies the given modification to the session data and discards the built MSD.
func (s *Service) modifySessionData(ref Ref, modify func() error) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return err
	}
	if s.imported {
		return ErrDuplicate
	}
	if err := modify(); err != nil {
		return err
	}
	s.built = nil
	return nil
}

// SetMsdPosition sets the position of the vehicle. Latitude and longitude are given in degrees * 1e6,
// the direction in degrees from magnetic north.
func (s *Service) SetMsdPosition(ref Ref, trusted bool, latitude, longitude int32, direction uint8) error {
	return s.modifyMsd(ref, func() error {
		s.msg.Control.PositionCanBeTrusted = trusted
		s.msg.Location = msd.Location{
			Latitude:  DdToDms(latitude),
			Longitude: DdToDms(longitude),
		}
		s.msg.Direction = direction
		return nil
	})
}

// SetMsdPositionN1 sets the delta of the recent location N1 to the current position, in units of 100 milliarcseconds.
func (s *Service) SetMsdPositionN1(ref Ref, latitudeDelta, longitudeDelta int32) error {
	return s.modifyMsd(ref, func() error {
		delta, err := locationDelta(latitudeDelta, longitudeDelta)
		if err != nil {
			return err
		}
		s.msg.RecentLocationN1 = delta
		s.msg.RecentLocationN1Set = true
		return nil
	})
}

// SetMsdPositionN2 sets the delta of the recent location N2 to N1, in units of 100 milliarcseconds.
func (s *Service) SetMsdPositionN2(ref Ref, latitudeDelta, longitudeDelta int32) error {
	return s.modifyMsd(ref, func() error {
		delta, err := locationDelta(latitudeDelta, longitudeDelta)
		if err != nil {
			return err
		}
		s.msg.RecentLocationN2 = delta
		s.msg.RecentLocationN2Set = true
		return nil
	})
}

func locationDelta(latitudeDelta, longitudeDelta int32) (msd.LocationDelta, error) {
	for _, d := range []int32{latitudeDelta, longitudeDelta} {
		if d < msd.MinLocationDelta || d > msd.MaxLocationDelta {
			return msd.LocationDelta{}, fmt.Errorf("%w: location delta %d out of range", ErrBadParameter, d)
		}
	}
	return msd.LocationDelta{LatitudeDelta: latitudeDelta, LongitudeDelta: longitudeDelta}, nil
}

// SetMsdPassengersCount sets the number of passengers.
func (s *Service) SetMsdPassengersCount(ref Ref, count uint8) error {
	return s.modifyMsd(ref, func() error {
		s.msg.NumberOfPassengers = count
		s.msg.PassengersSet = true
		return nil
	})
}

// SetMsdEraGlonassCrashSeverity sets the ERA-GLONASS crash severity (ASI15).
func (s *Service) SetMsdEraGlonassCrashSeverity(ref Ref, severity uint16) error {
	return s.modifyMsd(ref, func() error {
		if severity > msd.MaxCrashSeverity {
			return fmt.Errorf("%w: crash severity %d out of range", ErrBadParameter, severity)
		}
		s.eraData.CrashSeverityPresent = true
		s.eraData.CrashSeverity = severity
		return nil
	})
}

// ResetMsdEraGlonassCrashSeverity removes the ERA-GLONASS crash severity from the MSD.
func (s *Service) ResetMsdEraGlonassCrashSeverity(ref Ref) error {
	return s.modifyMsd(ref, func() error {
		s.eraData.CrashSeverityPresent = false
		s.eraData.CrashSeverity = 0
		return nil
	})
}

// SetMsdEraGlonassDiagnosticResult sets the ERA-GLONASS diagnostic result from a bit mask.
// Bit 2n tells if the flag n is present, bit 2n+1 holds its value.
func (s *Service) SetMsdEraGlonassDiagnosticResult(ref Ref, mask uint64) error {
	return s.modifyMsd(ref, func() error {
		s.eraData.DiagnosticResultPresent = true
		s.eraData.DiagnosticResult = msd.DiagnosticResultFromMask(mask)
		return nil
	})
}

// ResetMsdEraGlonassDiagnosticResult removes the ERA-GLONASS diagnostic result from the MSD.
func (s *Service) ResetMsdEraGlonassDiagnosticResult(ref Ref) error {
	return s.modifyMsd(ref, func() error {
		s.eraData.DiagnosticResultPresent = false
		s.eraData.DiagnosticResult = msd.DiagnosticResult{}
		return nil
	})
}

// SetMsdEraGlonassCrashInfo sets the ERA-GLONASS crash type from a bit mask, using the same layout as
// SetMsdEraGlonassDiagnosticResult.
func (s *Service) SetMsdEraGlonassCrashInfo(ref Ref, mask uint16) error {
	return s.modifyMsd(ref, func() error {
		s.eraData.CrashInfoPresent = true
		s.eraData.CrashInfo = msd.CrashInfoFromMask(mask)
		return nil
	})
}

// ResetMsdEraGlonassCrashInfo removes the ERA-GLONASS crash type from the MSD.
func (s *Service) ResetMsdEraGlonassCrashInfo(ref Ref) error {
	return s.modifyMsd(ref, func() error {
		s.eraData.CrashInfoPresent = false
		s.eraData.CrashInfo = msd.CrashInfo{}
		return nil
	})
}

// ImportMsd sets an MSD that was encoded elsewhere. It returns ErrDuplicate if an MSD was already
// imported, MSD fields were set, or the MSD was encoded. Until the session is completed or ended,
// the MSD cannot be modified.
func (s *Service) ImportMsd(ref Ref, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return err
	}
	if len(data) > msd.MaxBytes {
		return fmt.Errorf("%w: MSD too long (%d > %d bytes)", ErrOverflow, len(data), msd.MaxBytes)
	}
	if s.imported || s.computed {
		return ErrDuplicate
	}

	s.built = make([]byte, len(data))
	copy(s.built, data)
	s.imported = true
	s.log.WithField("size", len(data)).Debugf("MSD imported: %X", data)
	return nil
}

// ExportMsd copies the MSD into dst and returns its length. dst must hold at least msd.MaxBytes.
func (s *Service) ExportMsd(ref Ref, dst []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return 0, err
	}
	if len(dst) < msd.MaxBytes {
		return 0, fmt.Errorf("%w: buffer too small (%d < %d bytes)", ErrOverflow, len(dst), msd.MaxBytes)
	}

	built, err := s.buildMsd()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return copy(dst, built), nil
}
