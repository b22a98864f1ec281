package at

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ftl/ecall/ecall"
)

// indications maps the values of the +CECN URC to eCall states.
var indications = map[int]ecall.State{
	0:  ecall.StateStarted,
	1:  ecall.StateMsdTxStarted,
	2:  ecall.StateWaitingPsapStartInd,
	3:  ecall.StatePsapStartIndReceived,
	4:  ecall.StateLLNACKReceived,
	5:  ecall.StateLLACKReceived,
	6:  ecall.StateALACKReceivedPositive,
	7:  ecall.StateALACKReceivedClearDown,
	8:  ecall.StateMsdTxCompleted,
	9:  ecall.StateMsdTxFailed,
	10: ecall.StateReset,
	11: ecall.StateFailed,
	12: ecall.StateStopped,
	13: ecall.StateConnected,
	14: ecall.StateDisconnected,
	15: ecall.StateCompleted,
}

var stateIndication = regexp.MustCompile(`^\+CECN: (\d+)$`)

// ParseStateIndication parses a +CECN URC. Unknown indications are reported as StateUnknown.
func ParseStateIndication(line string) (ecall.State, error) {
	parts := stateIndication.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(line)))
	if len(parts) != 2 {
		return ecall.StateUnknown, fmt.Errorf("unexpected state indication: %s", line)
	}
	value, err := strconv.Atoi(parts[1])
	if err != nil {
		return ecall.StateUnknown, err
	}
	state, ok := indications[value]
	if !ok {
		return ecall.StateUnknown, nil
	}
	return state, nil
}

// CallDirection according to 3GPP TS 27.007 +CLCC
type CallDirection int

// All call directions
const (
	MobileOriginated CallDirection = iota
	MobileTerminated
)

// CallStatus according to 3GPP TS 27.007 +CLCC
type CallStatus int

// All call status values
const (
	CallActive CallStatus = iota
	CallHeld
	CallDialing
	CallAlerting
	CallIncoming
	CallWaiting
	CallReleased
)

// CallStatusReport is a single +CLCC line.
type CallStatusReport struct {
	ID        int
	Direction CallDirection
	Status    CallStatus
	Number    string
}

var callStatusReport = regexp.MustCompile(`^\+CLCC: (\d+),(\d),(\d),\d,\d(?:,"([^"]*)",\d+)?`)

// ParseCallStatusReport parses a +CLCC line.
func ParseCallStatusReport(line string) (CallStatusReport, error) {
	parts := callStatusReport.FindStringSubmatch(strings.TrimSpace(line))
	if len(parts) != 5 {
		return CallStatusReport{}, fmt.Errorf("unexpected call status report: %s", line)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return CallStatusReport{}, err
	}
	direction, _ := strconv.Atoi(parts[2])
	status, _ := strconv.Atoi(parts[3])

	return CallStatusReport{
		ID:        id,
		Direction: CallDirection(direction),
		Status:    CallStatus(status),
		Number:    parts[4],
	}, nil
}

// Event returns the call event that corresponds to the report. Only connected and released calls
// produce an event.
func (r CallStatusReport) Event() (ecall.CallEvent, bool) {
	switch r.Status {
	case CallActive:
		return ecall.CallEvent{CallID: r.ID, Type: ecall.CallConnected}, true
	case CallReleased:
		return ecall.CallEvent{CallID: r.ID, Type: ecall.CallTerminated}, true
	default:
		return ecall.CallEvent{}, false
	}
}

// Release causes according to 3GPP TS 24.008 table 10.5.123
const (
	CauseUnassignedNumber     = 1
	CauseNoRouteToDestination = 3
	CauseNormalCallClearing   = 16
	CauseUserBusy             = 17
	CauseInvalidNumberFormat  = 28
	CauseNoCircuitAvailable   = 34
	CauseNetworkOutOfOrder    = 38
	CauseTemporaryFailure     = 41
	CauseResourcesUnavailable = 47
)

// TerminationReason maps the release cause of a call to the reason reported by the eCall session.
// A normal clearing counts as locally ended if we hung up the call ourselves.
func TerminationReason(cause int, hungUpLocally bool) ecall.TerminationReason {
	switch {
	case cause == CauseUnassignedNumber, cause == CauseNoRouteToDestination, cause == CauseInvalidNumberFormat:
		return ecall.TerminationBadAddress
	case cause == CauseUserBusy:
		return ecall.TerminationBusy
	case cause == CauseNoCircuitAvailable, cause == CauseNetworkOutOfOrder,
		cause >= CauseTemporaryFailure && cause <= CauseResourcesUnavailable:
		return ecall.TerminationNetworkFail
	case cause == CauseNormalCallClearing && hungUpLocally:
		return ecall.TerminationLocalEnded
	case cause == CauseNormalCallClearing:
		return ecall.TerminationRemoteEnded
	default:
		return ecall.TerminationNotDefined
	}
}
