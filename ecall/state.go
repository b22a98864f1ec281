package ecall

// State of the eCall session, as reported by the platform or synthesized by the session.
type State int

// All eCall states
const (
	StateUnknown State = iota
	StateStarted
	StateMsdTxStarted
	StateWaitingPsapStartInd
	StatePsapStartIndReceived
	StateLLNACKReceived
	StateLLACKReceived
	StateALACKReceivedPositive
	StateALACKReceivedClearDown
	StateMsdTxCompleted
	StateMsdTxFailed
	StateReset
	StateFailed
	StateStopped
	StateConnected
	StateDisconnected
	StateCompleted
	StateEndOfRedialPeriod
)

var stateNames = map[State]string{
	StateUnknown:                "UNKNOWN",
	StateStarted:                "STARTED",
	StateMsdTxStarted:           "MSD_TX_STARTED",
	StateWaitingPsapStartInd:    "WAITING_PSAP_START_IND",
	StatePsapStartIndReceived:   "PSAP_START_IND_RECEIVED",
	StateLLNACKReceived:         "LLNACK_RECEIVED",
	StateLLACKReceived:          "LLACK_RECEIVED",
	StateALACKReceivedPositive:  "ALACK_RECEIVED_POSITIVE",
	StateALACKReceivedClearDown: "ALACK_RECEIVED_CLEAR_DOWN",
	StateMsdTxCompleted:         "MSD_TX_COMPLETED",
	StateMsdTxFailed:            "MSD_TX_FAILED",
	StateReset:                  "RESET",
	StateFailed:                 "FAILED",
	StateStopped:                "STOPPED",
	StateConnected:              "CONNECTED",
	StateDisconnected:           "DISCONNECTED",
	StateCompleted:              "COMPLETED",
	StateEndOfRedialPeriod:      "END_OF_REDIAL_PERIOD",
}

func (s State) String() string {
	name, ok := stateNames[s]
	if !ok {
		return "UNKNOWN"
	}
	return name
}
