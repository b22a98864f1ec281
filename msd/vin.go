package msd

import "fmt"

// VINLength is the number of characters of a vehicle identification number.
const VINLength = 17

// alphanumericTable maps the 6-bit VIN character codes to their ASCII characters (ISO 3779 without I, O, Q).
var alphanumericTable = [33]byte{
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9',
	'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'J', 'K', 'L',
	'M', 'N', 'P', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z',
}

// AlphanumericCode returns the 6-bit code of the given VIN character, or -1 if the character is not supported.
func AlphanumericCode(c byte) int8 {
	for i, v := range alphanumericTable {
		if v == c {
			return int8(i)
		}
	}
	return -1
}

// AlphanumericChar is the reverse of AlphanumericCode.
func AlphanumericChar(code byte) (byte, bool) {
	if int(code) >= len(alphanumericTable) {
		return 0, false
	}
	return alphanumericTable[code], true
}

// ValidateVIN checks the given VIN according to ISO 3779: 17 upper-case characters without I, O, Q,
// and a model year character that is neither 0, U, nor Z.
func ValidateVIN(vin string) error {
	if len(vin) != VINLength {
		return fmt.Errorf("%w: VIN must have %d characters, got %d", ErrInvalid, VINLength, len(vin))
	}
	for i := 0; i < len(vin); i++ {
		if AlphanumericCode(vin[i]) < 0 {
			return fmt.Errorf("%w: invalid VIN character %q at position %d", ErrInvalid, vin[i], i+1)
		}
	}
	switch modelYear := vin[9]; modelYear {
	case '0', 'U', 'Z':
		return fmt.Errorf("%w: invalid VIN model year %q", ErrInvalid, modelYear)
	}
	return nil
}
