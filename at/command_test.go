package at

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/ecall/ecall"
)

func TestCommands(t *testing.T) {
	tt := []struct {
		desc     string
		actual   string
		expected string
	}{
		{"standard", SetSystemStandard(ecall.EraGlonass), "AT+CECSTD=1"},
		{"load MSD", LoadMsd([]byte{0x01, 0x5c, 0xab}), "AT+CECMSD=015CAB"},
		{"PSAP number", SetPsapNumber("+49301234567"), `AT+CECPSAP=1,"+49301234567"`},
		{"operation mode", SetOperationMode(ecall.ForcedPersistentOnlyMode), "AT+CECMODE=2"},
		{"tx mode", SetMsdTxMode(ecall.TxModePush), "AT+CECTXM=1"},
		{"NAD deregistration", SetNadDeregistrationTime(720), "AT+CECNAD=720"},
		{"timer", SetTimer(ecall.AutoAnswerTimer, 20*time.Minute), "AT+CECTMR=1,1200"},
		{"timer fractions", SetTimer(ecall.FallbackTimer, 1500*time.Millisecond), "AT+CECTMR=0,1"},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.actual)
		})
	}
}

func TestStartECall(t *testing.T) {
	tt := []struct {
		startType ecall.StartType
		expected  string
	}{
		{ecall.StartTest, "AT+CECALL=0"},
		{ecall.StartManual, "AT+CECALL=2"},
		{ecall.StartAutomatic, "AT+CECALL=3"},
	}
	for _, tc := range tt {
		t.Run(tc.startType.String(), func(t *testing.T) {
			actual, err := StartECall(tc.startType)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}

	_, err := StartECall(ecall.StartType(9))
	assert.Error(t, err)
}

func respond(lines ...string) Requester {
	return RequesterFunc(func(context.Context, string) ([]string, error) {
		return lines, nil
	})
}

func TestRequestPsapNumber(t *testing.T) {
	tt := []struct {
		desc     string
		response string
		expected string
		invalid  bool
	}{
		{desc: "override", response: `+CECPSAP: 1,"112"`, expected: "112"},
		{desc: "U/SIM", response: "+CECPSAP: 0", expected: ""},
		{desc: "garbage", response: "+CECMODE: 0", invalid: true},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			actual, err := RequestPsapNumber(context.Background(), respond(tc.response))
			if tc.invalid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestRequestValues(t *testing.T) {
	ctx := context.Background()

	mode, err := RequestOperationMode(ctx, respond("+CECMODE: 1"))
	require.NoError(t, err)
	assert.Equal(t, ecall.OnlyMode, mode)

	txMode, err := RequestMsdTxMode(ctx, respond(" +cectxm: 1 "))
	require.NoError(t, err)
	assert.Equal(t, ecall.TxModePush, txMode)

	minutes, err := RequestNadDeregistrationTime(ctx, respond("+CECNAD: 720"))
	require.NoError(t, err)
	assert.Equal(t, uint16(720), minutes)

	cause, err := RequestReleaseCause(ctx, respond("+CEER: 17,\"User busy\""))
	require.NoError(t, err)
	assert.Equal(t, 17, cause)

	_, err = RequestNadDeregistrationTime(ctx, respond())
	assert.Error(t, err)
}

func TestRequestTimer(t *testing.T) {
	requester := respond("+CECTMR: 0,3600", "+CECTMR: 1,1200", "+CECTMR: 2,20")

	actual, err := RequestTimer(context.Background(), requester, ecall.AutoAnswerTimer)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, actual)

	_, err = RequestTimer(context.Background(), requester, ecall.PostTestRegistrationTimer)
	assert.Error(t, err)
}

func TestHexBinaryRoundtrip(t *testing.T) {
	hex := "015C06806A1E5050D6C2040054CD9B"

	data, err := HexToBinary("015C 0680 6A1E\n5050D6C2040054CD9B")
	require.NoError(t, err)

	assert.Equal(t, hex, BinaryToHex(data))
}
