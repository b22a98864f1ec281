package at

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/ecall/ecall"
)

func TestParseStateIndication(t *testing.T) {
	tt := []struct {
		line     string
		expected ecall.State
		invalid  bool
	}{
		{line: "+CECN: 0", expected: ecall.StateStarted},
		{line: "+cecn: 13", expected: ecall.StateConnected},
		{line: "+CECN: 14", expected: ecall.StateDisconnected},
		{line: "+CECN: 15", expected: ecall.StateCompleted},
		{line: "+CECN: 99", expected: ecall.StateUnknown},
		{line: "+CECN: x", invalid: true},
	}
	for _, tc := range tt {
		t.Run(tc.line, func(t *testing.T) {
			actual, err := ParseStateIndication(tc.line)
			if tc.invalid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestParseCallStatusReport(t *testing.T) {
	tt := []struct {
		line     string
		expected CallStatusReport
		event    ecall.CallEvent
		hasEvent bool
	}{
		{
			line:     `+CLCC: 1,0,2,0,0,"112",129`,
			expected: CallStatusReport{ID: 1, Direction: MobileOriginated, Status: CallDialing, Number: "112"},
		},
		{
			line:     "+CLCC: 2,0,0,0,0",
			expected: CallStatusReport{ID: 2, Direction: MobileOriginated, Status: CallActive},
			event:    ecall.CallEvent{CallID: 2, Type: ecall.CallConnected},
			hasEvent: true,
		},
		{
			line:     `+CLCC: 3,1,6,0,0,"+4930123",145`,
			expected: CallStatusReport{ID: 3, Direction: MobileTerminated, Status: CallReleased, Number: "+4930123"},
			event:    ecall.CallEvent{CallID: 3, Type: ecall.CallTerminated},
			hasEvent: true,
		},
	}
	for _, tc := range tt {
		t.Run(tc.line, func(t *testing.T) {
			actual, err := ParseCallStatusReport(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)

			event, ok := actual.Event()
			assert.Equal(t, tc.hasEvent, ok)
			assert.Equal(t, tc.event, event)
		})
	}

	_, err := ParseCallStatusReport("+CLCC: ")
	assert.Error(t, err)
}

func TestTerminationReason(t *testing.T) {
	tt := []struct {
		desc          string
		cause         int
		hungUpLocally bool
		expected      ecall.TerminationReason
	}{
		{"unassigned number", 1, false, ecall.TerminationBadAddress},
		{"no route", 3, false, ecall.TerminationBadAddress},
		{"invalid number format", 28, false, ecall.TerminationBadAddress},
		{"user busy", 17, false, ecall.TerminationBusy},
		{"no circuit", 34, false, ecall.TerminationNetworkFail},
		{"network out of order", 38, false, ecall.TerminationNetworkFail},
		{"temporary failure", 41, false, ecall.TerminationNetworkFail},
		{"resources unavailable", 47, false, ecall.TerminationNetworkFail},
		{"normal clearing by the PSAP", 16, false, ecall.TerminationRemoteEnded},
		{"normal clearing by us", 16, true, ecall.TerminationLocalEnded},
		{"no answer", 19, false, ecall.TerminationNotDefined},
		{"outside the range", 48, false, ecall.TerminationNotDefined},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, TerminationReason(tc.cause, tc.hungUpLocally))
		})
	}
}
