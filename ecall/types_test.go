package ecall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/ecall/msd"
)

func TestSystemStandardByName(t *testing.T) {
	tt := []struct {
		value    string
		expected SystemStandard
		invalid  bool
	}{
		{value: "PAN-EUROPEAN", expected: PanEuropean},
		{value: "era-glonass", expected: EraGlonass},
		{value: " Era-Glonass ", expected: EraGlonass},
		{value: "NG-ECALL", invalid: true},
		{value: "", invalid: true},
	}
	for _, tc := range tt {
		t.Run(tc.value, func(t *testing.T) {
			actual, err := SystemStandardByName(tc.value)
			if tc.invalid {
				assert.ErrorIs(t, err, ErrBadParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
			assert.Equal(t, actual, SystemStandardsByName[actual.String()])
		})
	}
}

func TestVehicleTypeByName(t *testing.T) {
	actual, err := VehicleTypeByName("motorcycle-l3e")
	require.NoError(t, err)
	assert.Equal(t, msd.MotorcycleL3e, actual)

	_, err = VehicleTypeByName("Tractor")
	assert.ErrorIs(t, err, ErrBadParameter)
}

func TestPropulsionTypeByNames(t *testing.T) {
	tt := []struct {
		desc     string
		names    []string
		expected PropulsionType
		str      string
		invalid  bool
	}{
		{desc: "none", expected: 0, str: ""},
		{desc: "single", names: []string{"diesel"}, expected: PropulsionDiesel, str: "Diesel"},
		{desc: "combined", names: []string{"Electric", "GASOLINE"}, expected: PropulsionGasoline | PropulsionElectric, str: "Gasoline|Electric"},
		{desc: "other", names: []string{"Other", "Hydrogen"}, expected: PropulsionHydrogen | PropulsionOther, str: "Hydrogen|Other"},
		{desc: "invalid", names: []string{"Diesel", "Coal"}, invalid: true},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			actual, err := PropulsionTypeByNames(tc.names...)
			if tc.invalid {
				assert.ErrorIs(t, err, ErrBadParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
			assert.Equal(t, tc.str, actual.String())
		})
	}
}

func TestPropulsionStorage(t *testing.T) {
	storage := (PropulsionNaturalGas | PropulsionPropane | PropulsionOther).storage()

	assert.Equal(t, msd.PropulsionStorage{CompressedNaturalGas: true, LiquidPropaneGas: true}, storage)
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, "automatic", StartAutomatic.String())
	assert.Equal(t, "push", TxModePush.String())
	assert.Equal(t, "forced persistent eCall only", ForcedPersistentOnlyMode.String())
	assert.Equal(t, "REMOTE_ENDED", TerminationRemoteEnded.String())
	assert.Equal(t, "NOT_DEFINED", TerminationReason(42).String())
	assert.Equal(t, "UNKNOWN", SystemStandard(42).String())
}
