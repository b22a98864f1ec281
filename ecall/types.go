package ecall

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/ftl/ecall/msd"
)

// Ref references an eCall session object of a Service.
type Ref uint32

// HandlerRef references a registered state change handler.
type HandlerRef uint32

// StartType tells how the eCall was triggered.
type StartType int

// All start types
const (
	StartManual StartType = iota
	StartAutomatic
	StartTest
)

var startTypeNames = map[StartType]string{
	StartManual:    "manual",
	StartAutomatic: "automatic",
	StartTest:      "test",
}

func (t StartType) String() string {
	name, ok := startTypeNames[t]
	if !ok {
		return "unknown"
	}
	return name
}

// SystemStandard selects the regional eCall standard and its redial policy.
type SystemStandard int

// All supported system standards
const (
	PanEuropean SystemStandard = iota
	EraGlonass
)

// SystemStandardsByName maps all supported system standards by their configuration name
var SystemStandardsByName = map[string]SystemStandard{
	"PAN-EUROPEAN": PanEuropean,
	"ERA-GLONASS":  EraGlonass,
}

// SystemStandardByName returns the system standard with the given name
func SystemStandardByName(name string) (SystemStandard, error) {
	return lookupByName(SystemStandardsByName, "system standard", name)
}

func (s SystemStandard) String() string {
	return nameOf(SystemStandardsByName, s)
}

// MsdTxMode tells if the MSD is pushed by the vehicle or pulled by the PSAP.
type MsdTxMode int

// All MSD transmission modes
const (
	TxModePull MsdTxMode = iota
	TxModePush
)

func (m MsdTxMode) String() string {
	if m == TxModePush {
		return "push"
	}
	return "pull"
}

// OperationMode of the modem with respect to eCall.
type OperationMode int

// All operation modes
const (
	NormalMode OperationMode = iota
	OnlyMode
	ForcedPersistentOnlyMode
)

var operationModeNames = map[OperationMode]string{
	NormalMode:               "normal",
	OnlyMode:                 "eCall only",
	ForcedPersistentOnlyMode: "forced persistent eCall only",
}

func (m OperationMode) String() string {
	name, ok := operationModeNames[m]
	if !ok {
		return "unknown"
	}
	return name
}

// TerminationReason of the emergency voice call.
type TerminationReason int

// All termination reasons
const (
	TerminationNotDefined TerminationReason = iota
	TerminationNetworkFail
	TerminationBadAddress
	TerminationBusy
	TerminationLocalEnded
	TerminationRemoteEnded
)

var terminationReasonNames = map[TerminationReason]string{
	TerminationNotDefined:  "NOT_DEFINED",
	TerminationNetworkFail: "NETWORK_FAIL",
	TerminationBadAddress:  "BAD_ADDRESS",
	TerminationBusy:        "BUSY",
	TerminationLocalEnded:  "LOCAL_ENDED",
	TerminationRemoteEnded: "REMOTE_ENDED",
}

func (r TerminationReason) String() string {
	name, ok := terminationReasonNames[r]
	if !ok {
		return "NOT_DEFINED"
	}
	return name
}

// CallEventType is the kind of a voice call event reported by call control.
type CallEventType int

// All call event types
const (
	CallConnected CallEventType = iota
	CallTerminated
)

// CallEvent is a voice call event reported by call control.
type CallEvent struct {
	CallID int
	Type   CallEventType
}

// VehicleTypesByName maps the vehicle types by their configuration name
var VehicleTypesByName = map[string]msd.VehicleType{
	"Passenger-M1":   msd.PassengerM1,
	"Bus-M2":         msd.BusM2,
	"Bus-M3":         msd.BusM3,
	"Commercial-N1":  msd.CommercialN1,
	"Heavy-N2":       msd.HeavyN2,
	"Heavy-N3":       msd.HeavyN3,
	"Motorcycle-L1e": msd.MotorcycleL1e,
	"Motorcycle-L2e": msd.MotorcycleL2e,
	"Motorcycle-L3e": msd.MotorcycleL3e,
	"Motorcycle-L4e": msd.MotorcycleL4e,
	"Motorcycle-L5e": msd.MotorcycleL5e,
	"Motorcycle-L6e": msd.MotorcycleL6e,
	"Motorcycle-L7e": msd.MotorcycleL7e,
}

// VehicleTypeByName returns the vehicle type with the given name
func VehicleTypeByName(name string) (msd.VehicleType, error) {
	return lookupByName(VehicleTypesByName, "vehicle type", name)
}

// PropulsionType is a bit mask of the vehicle's energy storages.
type PropulsionType uint8

// All propulsion types. PropulsionOther is kept in the session but has no representation in MSD version 1.
const (
	PropulsionGasoline PropulsionType = 1 << iota
	PropulsionDiesel
	PropulsionNaturalGas
	PropulsionPropane
	PropulsionElectric
	PropulsionHydrogen
	PropulsionOther
)

// PropulsionTypesByName maps the single propulsion types by their configuration name
var PropulsionTypesByName = map[string]PropulsionType{
	"Gasoline":   PropulsionGasoline,
	"Diesel":     PropulsionDiesel,
	"NaturalGas": PropulsionNaturalGas,
	"Propane":    PropulsionPropane,
	"Electric":   PropulsionElectric,
	"Hydrogen":   PropulsionHydrogen,
	"Other":      PropulsionOther,
}

// PropulsionTypeByNames combines the propulsion types with the given names into one mask
func PropulsionTypeByNames(names ...string) (PropulsionType, error) {
	var result PropulsionType
	for _, name := range names {
		t, err := lookupByName(PropulsionTypesByName, "propulsion type", name)
		if err != nil {
			return 0, err
		}
		result |= t
	}
	return result, nil
}

func (p PropulsionType) String() string {
	var names []string
	for bit := PropulsionGasoline; bit <= PropulsionOther; bit <<= 1 {
		if p&bit != 0 {
			names = append(names, nameOf(PropulsionTypesByName, bit))
		}
	}
	return strings.Join(names, "|")
}

func (p PropulsionType) storage() msd.PropulsionStorage {
	return msd.PropulsionStorage{
		GasolineTank:          p&PropulsionGasoline != 0,
		DieselTank:            p&PropulsionDiesel != 0,
		CompressedNaturalGas:  p&PropulsionNaturalGas != 0,
		LiquidPropaneGas:      p&PropulsionPropane != 0,
		ElectricEnergyStorage: p&PropulsionElectric != 0,
		HydrogenStorage:       p&PropulsionHydrogen != 0,
	}
}

var foldCase = cases.Fold()

// lookupByName matches the given name case insensitively against the keys of the table.
func lookupByName[T any](table map[string]T, kind string, name string) (T, error) {
	wanted := foldCase.String(strings.TrimSpace(name))
	for k, v := range table {
		if foldCase.String(k) == wanted {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: invalid %s %q", ErrBadParameter, kind, name)
}

func nameOf[T comparable](table map[string]T, value T) string {
	for k, v := range table {
		if v == value {
			return k
		}
	}
	return "UNKNOWN"
}
