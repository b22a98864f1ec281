package msd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticResultFromMask(t *testing.T) {
	result := DiagnosticResultFromMask(0x3FFFFFFFFFF)
	for i, f := range result {
		assert.Equal(t, Flag{Present: true, Value: true}, f, DiagnosticFlag(i).String())
	}

	result = DiagnosticResultFromMask(0x1 | 0x2<<2 | 0x3<<40)
	assert.Equal(t, Flag{Present: true, Value: false}, result[MicConnectionFailure])
	assert.Equal(t, Flag{Present: false, Value: true}, result[MicFailure])
	assert.Equal(t, Flag{}, result[RightSpeakerFailure])
	assert.Equal(t, Flag{Present: true, Value: true}, result[OtherNotCriticalFailures])
}

func TestCrashInfoFromMask(t *testing.T) {
	result := CrashInfoFromMask(0xFFFF)
	for i, f := range result {
		assert.Equal(t, Flag{Present: true, Value: true}, f, CrashType(i).String())
	}

	result = CrashInfoFromMask(0x3 << 12)
	assert.Equal(t, Flag{Present: true, Value: true}, result[CrashFrontOrSide])
	assert.Equal(t, Flag{}, result[CrashFront])
	assert.Equal(t, Flag{}, result[CrashAnotherType])
}

func TestEncodeEraGlonassOptionalData(t *testing.T) {
	tt := []struct {
		desc         string
		data         EraGlonassData
		expectedBits int
		expected     []byte
	}{
		{
			desc: "everything present",
			data: EraGlonassData{
				CrashSeverityPresent:    true,
				CrashSeverity:           99,
				DiagnosticResultPresent: true,
				DiagnosticResult:        DiagnosticResultFromMask(0x3FFFFFFFFFF),
				CrashInfoPresent:        true,
				CrashInfo:               CrashInfoFromMask(0xFFFF),
			},
			expectedBits: 73,
			expected:     []byte{0x70, 0xC7, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x80},
		},
		{
			desc: "single flags",
			data: EraGlonassData{
				DiagnosticResultPresent: true,
				DiagnosticResult:        DiagnosticResultFromMask(0x1),
				CrashInfoPresent:        true,
				CrashInfo:               CrashInfoFromMask(0x3 << 12),
			},
			expectedBits: 35,
			expected:     []byte{0x38, 0x00, 0x00, 0x00, 0xA0},
		},
		{
			desc:         "nothing present",
			data:         EraGlonassData{},
			expectedBits: 4,
			expected:     []byte{0x00},
		},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			dst := make([]byte, 16)

			bits := EncodeEraGlonassOptionalData(&tc.data, dst)

			assert.Equal(t, tc.expectedBits, bits)
			assert.Equal(t, tc.expected, dst[:BitsToBytes(bits)])
		})
	}
}

func TestEraGlonassOptionalData(t *testing.T) {
	data := EraGlonassData{CrashSeverityPresent: true, CrashSeverity: MaxCrashSeverity}

	actual := EraGlonassOptionalData(&data)

	assert.Equal(t, []uint8{1, 4, 1}, actual.OID)
	require.Len(t, actual.Data, 2)
	assert.Equal(t, []byte{0x4F, 0xFE}, actual.Data)

	actual.OID[0] = 2
	assert.Equal(t, uint8(1), EraGlonassOID[0], "OID is copied")
}

func TestFlagNames(t *testing.T) {
	assert.Equal(t, "micConnectionFailure", MicConnectionFailure.String())
	assert.Equal(t, "otherNotCriticalFailures", OtherNotCriticalFailures.String())
	assert.Equal(t, "unknown", DiagnosticFlagCount.String())
	assert.Equal(t, "crashFrontOrSide", CrashFrontOrSide.String())
	assert.Equal(t, "unknown", CrashType(-1).String())
}
