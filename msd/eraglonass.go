package msd

// EraGlonassOID identifies the ERA-GLONASS additional data (GOST R 54620) in the optional data of the MSD.
var EraGlonassOID = []uint8{1, 4, 1}

// MaxCrashSeverity is the largest value of the 11 bit crash severity.
const MaxCrashSeverity = 2047

// Flag is an optional boolean element of the ERA-GLONASS additional data.
type Flag struct {
	Present bool
	Value   bool
}

// DiagnosticFlag indexes DiagnosticResult. The order is the encoding order.
type DiagnosticFlag int

// All diagnostic result flags according to GOST R 54620 table A.2
const (
	MicConnectionFailure DiagnosticFlag = iota
	MicFailure
	RightSpeakerFailure
	LeftSpeakerFailure
	SpeakersFailure
	IgnitionLineFailure
	UIMFailure
	StatusIndicatorFailure
	BatteryFailure
	BatteryVoltageLow
	CrashSensorFailure
	FirmwareImageCorruption
	CommModuleInterfaceFailure
	GNSSReceiverFailure
	RAIMProblem
	GNSSAntennaFailure
	CommModuleFailure
	EventsMemoryOverflow
	CrashProfileMemoryOverflow
	OtherCriticalFailures
	OtherNotCriticalFailures

	DiagnosticFlagCount
)

var diagnosticFlagNames = [DiagnosticFlagCount]string{
	"micConnectionFailure",
	"micFailure",
	"rightSpeakerFailure",
	"leftSpeakerFailure",
	"speakersFailure",
	"ignitionLineFailure",
	"uimFailure",
	"statusIndicatorFailure",
	"batteryFailure",
	"batteryVoltageLow",
	"crashSensorFailure",
	"firmwareImageCorruption",
	"commModuleInterfaceFailure",
	"gnssReceiverFailure",
	"raimProblem",
	"gnssAntennaFailure",
	"commModuleFailure",
	"eventsMemoryOverflow",
	"crashProfileMemoryOverflow",
	"otherCriticalFailures",
	"otherNotCriticalFailures",
}

func (f DiagnosticFlag) String() string {
	if f < 0 || f >= DiagnosticFlagCount {
		return "unknown"
	}
	return diagnosticFlagNames[f]
}

// CrashType indexes CrashInfo. The order is the encoding order.
type CrashType int

// All crash types according to GOST R 54620 table A.2
const (
	CrashFront CrashType = iota
	CrashLeft
	CrashRight
	CrashRear
	CrashRollover
	CrashSide
	CrashFrontOrSide
	CrashAnotherType

	CrashTypeCount
)

var crashTypeNames = [CrashTypeCount]string{
	"crashFront",
	"crashLeft",
	"crashRight",
	"crashRear",
	"crashRollover",
	"crashSide",
	"crashFrontOrSide",
	"crashAnotherType",
}

func (c CrashType) String() string {
	if c < 0 || c >= CrashTypeCount {
		return "unknown"
	}
	return crashTypeNames[c]
}

// DiagnosticResult holds the ERA-GLONASS self test results.
type DiagnosticResult [DiagnosticFlagCount]Flag

// CrashInfo holds the ERA-GLONASS crash type.
type CrashInfo [CrashTypeCount]Flag

// EraGlonassData is the ERA-GLONASS additional data carried as optional data of the MSD.
type EraGlonassData struct {
	CrashSeverityPresent    bool
	CrashSeverity           uint16
	DiagnosticResultPresent bool
	DiagnosticResult        DiagnosticResult
	CrashInfoPresent        bool
	CrashInfo               CrashInfo
}

// DiagnosticResultFromMask decomposes a bit mask into the diagnostic result flags:
// flag n is present if bit 2n is set, its value is bit 2n+1.
func DiagnosticResultFromMask(mask uint64) DiagnosticResult {
	var result DiagnosticResult
	for i := range result {
		result[i] = Flag{
			Present: mask&(1<<uint(2*i)) != 0,
			Value:   mask&(1<<uint(2*i+1)) != 0,
		}
	}
	return result
}

// CrashInfoFromMask decomposes a bit mask into the crash info flags, using the same layout as DiagnosticResultFromMask.
func CrashInfoFromMask(mask uint16) CrashInfo {
	var result CrashInfo
	for i := range result {
		result[i] = Flag{
			Present: mask&(1<<uint(2*i)) != 0,
			Value:   mask&(1<<uint(2*i+1)) != 0,
		}
	}
	return result
}

// EncodeEraGlonassOptionalData writes the ERA-GLONASS additional data into dst and returns the number of bits written.
// dst must hold at least 10 bytes.
//
//	ERAAdditionalData ::= SEQUENCE {
//	  crashSeverity INTEGER(0..2047) OPTIONAL,
//	  diagnosticResult DiagnosticResult OPTIONAL,
//	  crashInfo CrashInfo OPTIONAL,
//	  ...
//	}
func EncodeEraGlonassOptionalData(data *EraGlonassData, dst []byte) int {
	offset := putBool(0, false, dst) // extension
	offset = putBool(offset, data.CrashSeverityPresent, dst)
	offset = putBool(offset, data.DiagnosticResultPresent, dst)
	offset = putBool(offset, data.CrashInfoPresent, dst)

	if data.CrashSeverityPresent {
		offset = EncodeWideField(offset, 11, data.CrashSeverity, dst)
	}
	if data.DiagnosticResultPresent {
		offset = encodeFlags(offset, data.DiagnosticResult[:], dst)
	}
	if data.CrashInfoPresent {
		offset = encodeFlags(offset, data.CrashInfo[:], dst)
	}
	return offset
}

// encodeFlags writes all presence bits first, then the values of the present flags.
func encodeFlags(offset int, flags []Flag, dst []byte) int {
	for _, f := range flags {
		offset = putBool(offset, f.Present, dst)
	}
	for _, f := range flags {
		if f.Present {
			offset = putBool(offset, f.Value, dst)
		}
	}
	return offset
}

// EraGlonassOptionalData encodes the ERA-GLONASS additional data as optional data of the MSD.
func EraGlonassOptionalData(data *EraGlonassData) OptionalData {
	buf := make([]byte, 16)
	bits := EncodeEraGlonassOptionalData(data, buf)
	oid := make([]uint8, len(EraGlonassOID))
	copy(oid, EraGlonassOID)
	return OptionalData{
		OID:  oid,
		Data: buf[:BitsToBytes(bits)],
	}
}
