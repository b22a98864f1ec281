package ecall

import (
	"context"
	"time"
)

// Platform is the modem specific part of the eCall service. It delivers the eCall states reported
// by the modem asynchronously to the registered state handler.
type Platform interface {
	Init(ctx context.Context, standard SystemStandard) error
	Start(ctx context.Context, startType StartType) (callID int, err error)
	Stop(ctx context.Context) error
	End(ctx context.Context) error
	LoadMsd(ctx context.Context, msd []byte) error
	SendMsd(ctx context.Context, msd []byte) error

	SetPsapNumber(ctx context.Context, number string) error
	PsapNumber(ctx context.Context) (string, error)
	SetOperationMode(ctx context.Context, mode OperationMode) error
	OperationMode(ctx context.Context) (OperationMode, error)
	SetMsdTxMode(ctx context.Context, mode MsdTxMode) error
	MsdTxMode(ctx context.Context) (MsdTxMode, error)
	SetNadDeregistrationTime(ctx context.Context, minutes uint16) error
	NadDeregistrationTime(ctx context.Context) (uint16, error)
	UseUSimNumbers(ctx context.Context) error

	SetEraGlonassTimer(ctx context.Context, timer EraGlonassTimer, value time.Duration) error
	EraGlonassTimer(ctx context.Context, timer EraGlonassTimer) (time.Duration, error)

	AddStateHandler(handler func(State))
}

// EraGlonassTimer identifies one of the ERA-GLONASS timers that are held by the modem.
type EraGlonassTimer int

// All ERA-GLONASS modem timers
const (
	FallbackTimer EraGlonassTimer = iota
	AutoAnswerTimer
	MsdMaxTransmissionTimer
	PostTestRegistrationTimer
)

var eraGlonassTimerNames = map[EraGlonassTimer]string{
	FallbackTimer:             "CCFT",
	AutoAnswerTimer:           "auto answer",
	MsdMaxTransmissionTimer:   "MSD max transmission",
	PostTestRegistrationTimer: "post test registration",
}

func (t EraGlonassTimer) String() string {
	name, ok := eraGlonassTimerNames[t]
	if !ok {
		return "unknown"
	}
	return name
}

// CallControl gives access to the voice calls of the modem. It is used to hang up ongoing calls
// before an eCall is started and to resolve the reason of a terminated eCall.
type CallControl interface {
	HangUpAll(ctx context.Context) error
	TerminationReason(ctx context.Context, callID int) (TerminationReason, error)
	PlatformTerminationCode(ctx context.Context, callID int) (int, error)
	AddCallEventHandler(handler func(CallEvent))
}
