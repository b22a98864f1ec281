package at

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ftl/ecall/ecall"
)

// Requester sends an AT command and returns the intermediate response lines.
type Requester interface {
	AT(context.Context, string) ([]string, error)
}

// RequesterFunc wraps a function into a Requester.
type RequesterFunc func(context.Context, string) ([]string, error)

func (f RequesterFunc) AT(ctx context.Context, request string) ([]string, error) {
	return f(ctx, request)
}

const (
	// EnableStateReports activates the +CECN URC.
	EnableStateReports = "AT+CECN=1"
	// EnableCallReports activates the unsolicited +CLCC call status reports.
	EnableCallReports = "AT+CLCC=1"
	// HangUp ends all voice calls.
	HangUp = "AT+CHUP"
	// StopECall stops the eCall procedure of the modem, including its own redial attempts.
	StopECall = "AT+CECALLSTOP"
	// TransmitMsd sends the loaded MSD to the PSAP.
	TransmitMsd = "AT+CECMSDTX"
	// UseUSimNumbers selects the eCall numbers stored on the U/SIM.
	UseUSimNumbers = "AT+CECPSAP=0"
	// RequestExtendedError reads the cause of the last call release.
	RequestExtendedError = "AT+CEER"
)

var startTypeCodes = map[ecall.StartType]int{
	ecall.StartTest:      0,
	ecall.StartManual:    2,
	ecall.StartAutomatic: 3,
}

// StartECall returns the command to start an eCall of the given type.
func StartECall(startType ecall.StartType) (string, error) {
	code, ok := startTypeCodes[startType]
	if !ok {
		return "", fmt.Errorf("invalid start type %d", startType)
	}
	return fmt.Sprintf("AT+CECALL=%d", code), nil
}

// SetSystemStandard selects the eCall standard: 0 PAN-EUROPEAN, 1 ERA-GLONASS.
func SetSystemStandard(standard ecall.SystemStandard) string {
	return fmt.Sprintf("AT+CECSTD=%d", standard)
}

// LoadMsd returns the command to load the given encoded MSD into the modem.
func LoadMsd(msd []byte) string {
	return fmt.Sprintf("AT+CECMSD=%s", BinaryToHex(msd))
}

// SetPsapNumber overrides the U/SIM eCall numbers with the given number.
func SetPsapNumber(number string) string {
	return fmt.Sprintf(`AT+CECPSAP=1,"%s"`, number)
}

var requestPsapNumberResponse = regexp.MustCompile(`^\+CECPSAP: (\d)(?:,"([^"]*)")?$`)

// RequestPsapNumber reads the overriding PSAP number. It is empty if the U/SIM numbers are used.
func RequestPsapNumber(ctx context.Context, requester Requester) (string, error) {
	parts, err := requestSingle(ctx, requester, "AT+CECPSAP?", requestPsapNumberResponse)
	if err != nil {
		return "", err
	}
	if parts[1] == "0" {
		return "", nil
	}
	return parts[2], nil
}

// SetOperationMode of the modem: 0 normal, 1 eCall only, 2 forced persistent eCall only.
func SetOperationMode(mode ecall.OperationMode) string {
	return fmt.Sprintf("AT+CECMODE=%d", mode)
}

var requestOperationModeResponse = regexp.MustCompile(`^\+CECMODE: (\d+)$`)

// RequestOperationMode reads the current operation mode.
func RequestOperationMode(ctx context.Context, requester Requester) (ecall.OperationMode, error) {
	value, err := requestInt(ctx, requester, "AT+CECMODE?", requestOperationModeResponse)
	return ecall.OperationMode(value), err
}

// SetMsdTxMode selects 0 pull or 1 push.
func SetMsdTxMode(mode ecall.MsdTxMode) string {
	return fmt.Sprintf("AT+CECTXM=%d", mode)
}

var requestMsdTxModeResponse = regexp.MustCompile(`^\+CECTXM: (\d+)$`)

// RequestMsdTxMode reads the MSD transmission mode.
func RequestMsdTxMode(ctx context.Context, requester Requester) (ecall.MsdTxMode, error) {
	value, err := requestInt(ctx, requester, "AT+CECTXM?", requestMsdTxModeResponse)
	return ecall.MsdTxMode(value), err
}

// SetNadDeregistrationTime in minutes.
func SetNadDeregistrationTime(minutes uint16) string {
	return fmt.Sprintf("AT+CECNAD=%d", minutes)
}

var requestNadDeregistrationTimeResponse = regexp.MustCompile(`^\+CECNAD: (\d+)$`)

// RequestNadDeregistrationTime reads the NAD deregistration time in minutes.
func RequestNadDeregistrationTime(ctx context.Context, requester Requester) (uint16, error) {
	value, err := requestInt(ctx, requester, "AT+CECNAD?", requestNadDeregistrationTimeResponse)
	return uint16(value), err
}

// SetTimer sets one of the ERA-GLONASS timers, with a resolution of one second.
func SetTimer(timer ecall.EraGlonassTimer, value time.Duration) string {
	return fmt.Sprintf("AT+CECTMR=%d,%d", timer, int(value/time.Second))
}

var requestTimerResponse = regexp.MustCompile(`^\+CECTMR: (\d+),(\d+)$`)

// RequestTimer reads the given ERA-GLONASS timer. The modem lists all timers, one per line.
func RequestTimer(ctx context.Context, requester Requester, timer ecall.EraGlonassTimer) (time.Duration, error) {
	responses, err := requester.AT(ctx, "AT+CECTMR?")
	if err != nil {
		return 0, err
	}
	for _, response := range responses {
		parts := requestTimerResponse.FindStringSubmatch(strings.TrimSpace(response))
		if len(parts) != 3 || parts[1] != strconv.Itoa(int(timer)) {
			continue
		}
		seconds, err := strconv.Atoi(parts[2])
		if err != nil {
			return 0, err
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return 0, fmt.Errorf("no value for timer %s received", timer)
}

var requestExtendedErrorResponse = regexp.MustCompile(`^\+CEER: (\d+)`)

// RequestReleaseCause reads the cause of the last call release.
func RequestReleaseCause(ctx context.Context, requester Requester) (int, error) {
	return requestInt(ctx, requester, RequestExtendedError, requestExtendedErrorResponse)
}

func requestSingle(ctx context.Context, requester Requester, request string, expression *regexp.Regexp) ([]string, error) {
	responses, err := requester.AT(ctx, request)
	if err != nil {
		return nil, err
	}
	if len(responses) < 1 {
		return nil, fmt.Errorf("no response received")
	}
	response := strings.ToUpper(strings.TrimSpace(responses[0]))
	parts := expression.FindStringSubmatch(response)
	if len(parts) == 0 {
		return nil, fmt.Errorf("unexpected response: %s", responses[0])
	}
	return parts, nil
}

func requestInt(ctx context.Context, requester Requester, request string, expression *regexp.Regexp) (int, error) {
	parts, err := requestSingle(ctx, requester, request, expression)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(parts[1])
}
