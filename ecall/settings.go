package ecall

import (
	"context"
	"errors"
	"fmt"

	"github.com/ftl/ecall/msd"
)

// Settings are the vehicle and system settings of the eCall service, as read from the configuration.
type Settings struct {
	VIN             string
	VehicleType     string
	MsdVersion      int
	SystemStandard  string
	PropulsionTypes []string
}

// ApplySettings applies all valid settings and reports the invalid ones. An invalid or missing system
// standard selects PAN-EUROPEAN, a missing MSD version selects version 1.
func (s *Service) ApplySettings(ctx context.Context, ref Ref, settings Settings) error {
	var errs []error

	if settings.VIN != "" {
		if err := s.SetVIN(ref, settings.VIN); err != nil {
			errs = append(errs, err)
		}
	}

	if settings.VehicleType != "" {
		vehicleType, err := VehicleTypeByName(settings.VehicleType)
		if err == nil {
			err = s.SetVehicleType(ref, vehicleType)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	version := settings.MsdVersion
	if version == 0 {
		version = msd.Version
	}
	if err := s.SetMsdVersion(ref, version); err != nil {
		errs = append(errs, err)
	}

	standard, err := SystemStandardByName(settings.SystemStandard)
	if err != nil {
		s.log.WithField("standard", settings.SystemStandard).Warnf("invalid system standard, using %s", PanEuropean)
		standard = PanEuropean
	}
	if err := s.SetSystemStandard(ctx, ref, standard); err != nil {
		errs = append(errs, err)
	}

	if len(settings.PropulsionTypes) > 0 {
		propulsion, err := PropulsionTypeByNames(settings.PropulsionTypes...)
		if err == nil {
			err = s.SetPropulsionType(ref, propulsion)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// SetVIN sets the vehicle identification number.
func (s *Service) SetVIN(ref Ref, vin string) error {
	return s.modifySessionData(ref, func() error {
		if err := msd.ValidateVIN(vin); err != nil {
			return fmt.Errorf("%w: %w", ErrBadParameter, err)
		}
		s.msg.VIN = vin
		return nil
	})
}

// VIN returns the vehicle identification number. It returns ErrNotFound if no VIN is set.
func (s *Service) VIN(ref Ref) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return "", err
	}
	if s.msg.VIN == "" {
		return "", ErrNotFound
	}
	return s.msg.VIN, nil
}

// SetVehicleType sets the vehicle type.
func (s *Service) SetVehicleType(ref Ref, vehicleType msd.VehicleType) error {
	return s.modifySessionData(ref, func() error {
		if !vehicleType.Valid() {
			return fmt.Errorf("%w: invalid vehicle type %d", ErrBadParameter, vehicleType)
		}
		s.msg.Control.VehicleType = vehicleType
		return nil
	})
}

// VehicleType returns the vehicle type.
func (s *Service) VehicleType(ref Ref) (msd.VehicleType, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return 0, err
	}
	return s.msg.Control.VehicleType, nil
}

// SetPropulsionType sets the energy storages of the vehicle.
func (s *Service) SetPropulsionType(ref Ref, propulsion PropulsionType) error {
	return s.modifySessionData(ref, func() error {
		if propulsion >= PropulsionOther<<1 {
			return fmt.Errorf("%w: invalid propulsion type %#x", ErrBadParameter, uint8(propulsion))
		}
		s.propulsion = propulsion
		return nil
	})
}

// PropulsionType returns the energy storages of the vehicle.
func (s *Service) PropulsionType(ref Ref) (PropulsionType, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return 0, err
	}
	return s.propulsion, nil
}

// SetMsdVersion sets the version of the MSD format. Only version 1 is supported.
func (s *Service) SetMsdVersion(ref Ref, version int) error {
	return s.modifySessionData(ref, func() error {
		if version != msd.Version {
			return fmt.Errorf("%w: MSD version %d not supported", ErrBadParameter, version)
		}
		s.msg.Version = msd.Version
		return nil
	})
}

// MsdVersion returns the version of the MSD format.
func (s *Service) MsdVersion(ref Ref) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return 0, err
	}
	return int(s.msg.Version), nil
}

// SetSystemStandard selects the system standard and initializes the platform accordingly.
// The standard cannot be changed while an eCall is active.
func (s *Service) SetSystemStandard(ctx context.Context, ref Ref, standard SystemStandard) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return err
	}
	if _, ok := SystemStandardsByName[standard.String()]; !ok {
		return fmt.Errorf("%w: invalid system standard %d", ErrBadParameter, standard)
	}
	if standard == s.standard {
		return nil
	}
	if !s.isStopped {
		return ErrBusy
	}
	if err := s.platform.Init(ctx, standard); err != nil {
		return fmt.Errorf("%w: cannot initialize the platform for %s: %w", ErrFault, standard, err)
	}
	s.standard = standard
	if !s.imported {
		s.built = nil
	}
	s.log.WithField("standard", standard).Info("system standard changed")
	return nil
}

// SystemStandard returns the selected system standard.
func (s *Service) SystemStandard(ref Ref) (SystemStandard, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkRef(ref); err != nil {
		return PanEuropean, err
	}
	return s.standard, nil
}
