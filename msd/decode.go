package msd

import (
	"fmt"

	"github.com/bamiaux/iobit"
)

// Decode parses an encoded MSD. It is the reverse of Encode and is meant for diagnostics;
// values are not range checked beyond what the bit widths imply.
func Decode(buf []byte) (Message, error) {
	var msg Message
	r := iobit.NewReader(buf)

	msg.Version = r.Uint8(8)
	if msg.Version != Version {
		return msg, fmt.Errorf("%w: version %d not supported", ErrInvalid, msg.Version)
	}
	r.Skip(1) // extension
	msg.OptionalDataPresent = r.Bit()

	r.Skip(1) // extension
	msg.RecentLocationN1Set = r.Bit()
	msg.RecentLocationN2Set = r.Bit()
	msg.PassengersSet = r.Bit()
	msg.MessageIdentifier = r.Uint8(8)

	msg.Control.AutomaticActivation = r.Bit()
	msg.Control.TestCall = r.Bit()
	msg.Control.PositionCanBeTrusted = r.Bit()
	r.Skip(1) // extension
	msg.Control.VehicleType = VehicleType(r.Uint8(4) + 1)

	vin := make([]byte, VINLength)
	for i := range vin {
		c, ok := AlphanumericChar(r.Uint8(6))
		if !ok {
			return msg, fmt.Errorf("%w: invalid VIN code at position %d", ErrInvalid, i+1)
		}
		vin[i] = c
	}
	msg.VIN = string(vin)

	r.Skip(1) // extension
	var flags [6]bool
	for i := range flags {
		flags[i] = r.Bit()
	}
	for i := range flags {
		if flags[i] {
			flags[i] = r.Bit()
		}
	}
	msg.Propulsion = PropulsionStorage{
		GasolineTank:          flags[0],
		DieselTank:            flags[1],
		CompressedNaturalGas:  flags[2],
		LiquidPropaneGas:      flags[3],
		ElectricEnergyStorage: flags[4],
		HydrogenStorage:       flags[5],
	}

	msg.Timestamp = r.Uint32(32)
	msg.Location.Latitude = int32(r.Uint32(32) - 0x80000000)
	msg.Location.Longitude = int32(r.Uint32(32) - 0x80000000)
	msg.Direction = r.Uint8(8)

	if msg.RecentLocationN1Set {
		msg.RecentLocationN1 = readLocationDelta(&r)
	}
	if msg.RecentLocationN2Set {
		msg.RecentLocationN2 = readLocationDelta(&r)
	}
	if msg.PassengersSet {
		msg.NumberOfPassengers = r.Uint8(8)
	}
	if msg.OptionalDataPresent {
		msg.OptionalData = readOptionalData(&r)
	}

	if err := r.Error(); err != nil {
		return msg, fmt.Errorf("%w: truncated message: %v", ErrInvalid, err)
	}
	return msg, nil
}

func readLocationDelta(r *iobit.Reader) LocationDelta {
	return LocationDelta{
		LatitudeDelta:  int32(r.Uint16(10)) - locationDeltaBias,
		LongitudeDelta: int32(r.Uint16(10)) - locationDeltaBias,
	}
}

func readOptionalData(r *iobit.Reader) OptionalData {
	var result OptionalData
	oidLength := int(r.Uint8(8))
	for i := 0; i < oidLength; i++ {
		b := r.Uint8(8)
		if b&0x80 != 0 && i+1 < oidLength {
			low := r.Uint8(8)
			i++
			result.OID = append(result.OID, (b&0x01)<<7|low&0x7F)
			continue
		}
		result.OID = append(result.OID, b)
	}
	dataLength := int(r.Uint8(8))
	result.Data = make([]byte, dataLength)
	for i := range result.Data {
		result.Data[i] = r.Uint8(8)
	}
	return result
}

// DecodeEraGlonassOptionalData parses the ERA-GLONASS additional data written by EncodeEraGlonassOptionalData.
func DecodeEraGlonassOptionalData(buf []byte) (EraGlonassData, error) {
	var data EraGlonassData
	r := iobit.NewReader(buf)

	r.Skip(1) // extension
	data.CrashSeverityPresent = r.Bit()
	data.DiagnosticResultPresent = r.Bit()
	data.CrashInfoPresent = r.Bit()

	if data.CrashSeverityPresent {
		data.CrashSeverity = r.Uint16(11)
	}
	if data.DiagnosticResultPresent {
		readFlags(&r, data.DiagnosticResult[:])
	}
	if data.CrashInfoPresent {
		readFlags(&r, data.CrashInfo[:])
	}

	if err := r.Error(); err != nil {
		return data, fmt.Errorf("%w: truncated ERA-GLONASS data: %v", ErrInvalid, err)
	}
	return data, nil
}

func readFlags(r *iobit.Reader, flags []Flag) {
	for i := range flags {
		flags[i].Present = r.Bit()
	}
	for i := range flags {
		if flags[i].Present {
			flags[i].Value = r.Bit()
		}
	}
}
