package ecall

// DdToDms converts a coordinate in decimal degrees * 1e6 into milliarcseconds, the unit of the MSD.
// The fractional part is computed in single precision, the result is truncated.
func DdToDms(dd int32) int32 {
	deg := dd / 1000000
	minAbs := float32(dd%1000000) * 60
	min := int32(minAbs / 1000000)
	secDec := minAbs - float32(min*1000000)
	sec := float32(secDec*60) / 1000000

	return int32((float64(deg)*60*60 + float64(min)*60 + float64(sec)) * 1000)
}
