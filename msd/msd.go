// Package msd implements the encoding of the eCall Minimum Set of Data (MSD) according to
// CEN EN 15722 (ASN.1 UNALIGNED PER), version 1 of the MSD format.
package msd

import (
	"errors"
	"fmt"
)

const (
	// Version is the only supported MSD format version.
	Version = 1
	// MaxBytes is the maximum length of an encoded MSD.
	MaxBytes = 140
	// MaxBits is the maximum length of an encoded MSD in bits.
	MaxBits = MaxBytes * 8

	// UnknownCoordinate marks an unknown latitude or longitude. It is accepted regardless of the range.
	UnknownCoordinate int32 = 0x7FFFFFFF
	// UnknownDirection marks an unknown vehicle direction.
	UnknownDirection uint8 = 255

	MaxLatitude       int32 = 324000000
	MaxLongitude      int32 = 648000000
	MaxDirection      uint8 = 179
	MinLocationDelta  int32 = -512
	MaxLocationDelta  int32 = 511
	locationDeltaBias int32 = 512

	// scratchSize holds the largest message the schema can describe, so that an over-long message
	// is detected after encoding instead of writing past the caller's buffer.
	scratchSize = 1024
)

var (
	// ErrInvalid is returned (wrapped) for every field that fails validation.
	ErrInvalid = errors.New("invalid MSD")
	// ErrTooLong is returned when the encoded message exceeds MaxBits.
	ErrTooLong = errors.New("MSD exceeds 1120 bits")
)

// VehicleType according to EN 15722, the numbering starts at 1.
type VehicleType uint8

// All defined vehicle types
const (
	PassengerM1 VehicleType = iota + 1
	BusM2
	BusM3
	CommercialN1
	HeavyN2
	HeavyN3
	MotorcycleL1e
	MotorcycleL2e
	MotorcycleL3e
	MotorcycleL4e
	MotorcycleL5e
	MotorcycleL6e
	MotorcycleL7e
)

// Valid reports whether the vehicle type can be encoded.
func (t VehicleType) Valid() bool {
	return t >= PassengerM1 && t <= MotorcycleL7e
}

// Control block of the MSD structure.
type Control struct {
	AutomaticActivation  bool
	TestCall             bool
	PositionCanBeTrusted bool
	VehicleType          VehicleType
}

// PropulsionStorage lists the energy storages present in the vehicle.
type PropulsionStorage struct {
	GasolineTank          bool
	DieselTank            bool
	CompressedNaturalGas  bool
	LiquidPropaneGas      bool
	ElectricEnergyStorage bool
	HydrogenStorage       bool
}

func (p PropulsionStorage) flags() [6]bool {
	return [6]bool{
		p.GasolineTank,
		p.DieselTank,
		p.CompressedNaturalGas,
		p.LiquidPropaneGas,
		p.ElectricEnergyStorage,
		p.HydrogenStorage,
	}
}

// Location in milliarcseconds.
type Location struct {
	Latitude  int32
	Longitude int32
}

// LocationDelta of a recent vehicle location, in units of 100 milliarcseconds.
type LocationDelta struct {
	LatitudeDelta  int32
	LongitudeDelta int32
}

// OptionalData carries additional data identified by an object identifier.
type OptionalData struct {
	OID  []uint8
	Data []byte
}

// Message is the MSD message. The *Present flags mark the optional elements.
type Message struct {
	Version             uint8
	MessageIdentifier   uint8
	Control             Control
	VIN                 string
	Propulsion          PropulsionStorage
	Timestamp           uint32
	Location            Location
	Direction           uint8
	RecentLocationN1    LocationDelta
	RecentLocationN1Set bool
	RecentLocationN2    LocationDelta
	RecentLocationN2Set bool
	NumberOfPassengers  uint8
	PassengersSet       bool
	OptionalDataPresent bool
	OptionalData        OptionalData
}

// Encode writes the message into dst and returns the length of the encoded message in bytes.
// The last byte is padded with zero bits. The message is encoded field by field in the order of the
// ASN.1 schema; the first invalid field aborts the encoding and nothing is written to dst.
func Encode(msg *Message, dst []byte) (int, error) {
	scratch := make([]byte, scratchSize)
	bits, err := encodeMessage(msg, scratch)
	if err != nil {
		return 0, err
	}
	if bits > MaxBits {
		return 0, fmt.Errorf("%w: %d bits", ErrTooLong, bits)
	}

	n := BitsToBytes(bits)
	if len(dst) < n {
		return 0, fmt.Errorf("buffer too small for MSD: %d < %d", len(dst), n)
	}
	copy(dst, scratch[:n])
	return n, nil
}

func encodeMessage(msg *Message, dst []byte) (int, error) {
	if msg.Version != Version {
		return 0, fmt.Errorf("%w: version %d not supported", ErrInvalid, msg.Version)
	}

	offset := putUint8(0, 8, msg.Version, dst)
	offset = putBool(offset, false, dst) // extension
	offset = putBool(offset, msg.OptionalDataPresent, dst)

	// MSDStructure
	offset = putBool(offset, false, dst) // extension
	offset = putBool(offset, msg.RecentLocationN1Set, dst)
	offset = putBool(offset, msg.RecentLocationN2Set, dst)
	offset = putBool(offset, msg.PassengersSet, dst)
	offset = putUint8(offset, 8, msg.MessageIdentifier, dst)

	offset = putBool(offset, msg.Control.AutomaticActivation, dst)
	offset = putBool(offset, msg.Control.TestCall, dst)
	offset = putBool(offset, msg.Control.PositionCanBeTrusted, dst)
	offset = putBool(offset, false, dst) // extension of the vehicle type enumeration
	if !msg.Control.VehicleType.Valid() {
		return 0, fmt.Errorf("%w: vehicle type %d", ErrInvalid, msg.Control.VehicleType)
	}
	offset = putUint8(offset, 4, uint8(msg.Control.VehicleType-1), dst)

	var err error
	offset, err = encodeVIN(offset, msg.VIN, dst)
	if err != nil {
		return 0, err
	}

	offset = encodePropulsion(offset, msg.Propulsion, dst)
	offset = putUint32(offset, msg.Timestamp, dst)

	if !validCoordinate(msg.Location.Latitude, MaxLatitude) {
		return 0, fmt.Errorf("%w: latitude %d", ErrInvalid, msg.Location.Latitude)
	}
	offset = putUint32(offset, uint32(msg.Location.Latitude)+0x80000000, dst)
	if !validCoordinate(msg.Location.Longitude, MaxLongitude) {
		return 0, fmt.Errorf("%w: longitude %d", ErrInvalid, msg.Location.Longitude)
	}
	offset = putUint32(offset, uint32(msg.Location.Longitude)+0x80000000, dst)

	if msg.Direction > MaxDirection && msg.Direction != UnknownDirection {
		return 0, fmt.Errorf("%w: vehicle direction %d", ErrInvalid, msg.Direction)
	}
	offset = putUint8(offset, 8, msg.Direction, dst)

	if msg.RecentLocationN1Set {
		offset, err = encodeLocationDelta(offset, "N1", msg.RecentLocationN1, dst)
		if err != nil {
			return 0, err
		}
	}
	if msg.RecentLocationN2Set {
		offset, err = encodeLocationDelta(offset, "N2", msg.RecentLocationN2, dst)
		if err != nil {
			return 0, err
		}
	}
	if msg.PassengersSet {
		offset = putUint8(offset, 8, msg.NumberOfPassengers, dst)
	}
	if msg.OptionalDataPresent {
		offset, err = encodeOptionalData(offset, msg.OptionalData, dst)
		if err != nil {
			return 0, err
		}
	}

	return offset, nil
}

func validCoordinate(value int32, limit int32) bool {
	if value == UnknownCoordinate {
		return true
	}
	return value >= -limit && value <= limit
}

// encodeVIN writes the 17 characters in the groups WMI (3), VDS (6), model year (1), and
// sequential plant number (7), 6 bits per character.
func encodeVIN(offset int, vin string, dst []byte) (int, error) {
	if len(vin) != VINLength {
		return 0, fmt.Errorf("%w: VIN must have %d characters, got %d", ErrInvalid, VINLength, len(vin))
	}
	for i := 0; i < VINLength; i++ {
		code := AlphanumericCode(vin[i])
		if code < 0 {
			return 0, fmt.Errorf("%w: invalid VIN character %q at position %d", ErrInvalid, vin[i], i+1)
		}
		offset = putUint8(offset, 6, uint8(code), dst)
	}
	return offset, nil
}

// encodePropulsion writes the six presence bits, then the value bit of each present storage type.
// The value of a present type is always true, so every set flag appears twice on the wire.
func encodePropulsion(offset int, p PropulsionStorage, dst []byte) int {
	offset = putBool(offset, false, dst) // extension
	flags := p.flags()
	for _, present := range flags {
		offset = putBool(offset, present, dst)
	}
	for _, present := range flags {
		if present {
			offset = putBool(offset, present, dst)
		}
	}
	return offset
}

func encodeLocationDelta(offset int, name string, delta LocationDelta, dst []byte) (int, error) {
	if delta.LatitudeDelta < MinLocationDelta || delta.LatitudeDelta > MaxLocationDelta {
		return 0, fmt.Errorf("%w: latitude delta %s %d", ErrInvalid, name, delta.LatitudeDelta)
	}
	offset = EncodeWideField(offset, 10, uint16(delta.LatitudeDelta+locationDeltaBias), dst)
	if delta.LongitudeDelta < MinLocationDelta || delta.LongitudeDelta > MaxLocationDelta {
		return 0, fmt.Errorf("%w: longitude delta %s %d", ErrInvalid, name, delta.LongitudeDelta)
	}
	offset = EncodeWideField(offset, 10, uint16(delta.LongitudeDelta+locationDeltaBias), dst)
	return offset, nil
}

// encodeOptionalData writes the OID as in ITU-T X.690 8.19.2 (arcs above 127 take two octets)
// followed by the length prefixed data.
func encodeOptionalData(offset int, data OptionalData, dst []byte) (int, error) {
	if len(data.OID) > 255 || len(data.Data) > 255 {
		return 0, fmt.Errorf("%w: optional data too long (oid %d, data %d)", ErrInvalid, len(data.OID), len(data.Data))
	}

	oidLength := len(data.OID)
	for _, arc := range data.OID {
		if arc > 127 {
			oidLength++
		}
	}
	if oidLength > 255 {
		return 0, fmt.Errorf("%w: encoded OID too long (%d)", ErrInvalid, oidLength)
	}
	offset = putUint8(offset, 8, uint8(oidLength), dst)
	for _, arc := range data.OID {
		if arc > 127 {
			offset = putUint8(offset, 8, 0x80|(arc>>7)&0x01, dst)
			offset = putUint8(offset, 8, arc&0x7F, dst)
		} else {
			offset = putUint8(offset, 8, arc, dst)
		}
	}

	offset = putUint8(offset, 8, uint8(len(data.Data)), dst)
	for _, b := range data.Data {
		offset = putUint8(offset, 8, b, dst)
	}
	return offset, nil
}
