package parser

// Column labels of the SIPp 3.x statistics file.
// (P) columns cover the last reporting period, (C) columns are cumulative.
const (
	LabelStartTime     = "StartTime"
	LabelLastResetTime = "LastResetTime"
	LabelCurrentTime   = "CurrentTime"
	LabelElapsedTimeP  = "ElapsedTime(P)"
	LabelElapsedTimeC  = "ElapsedTime(C)"

	LabelTargetRate = "TargetRate"
	LabelCallRateP  = "CallRate(P)"
	LabelCallRateC  = "CallRate(C)"

	LabelIncomingCallP    = "IncomingCall(P)"
	LabelIncomingCallC    = "IncomingCall(C)"
	LabelOutgoingCallP    = "OutgoingCall(P)"
	LabelOutgoingCallC    = "OutgoingCall(C)"
	LabelTotalCallCreated = "TotalCallCreated"
	LabelCurrentCall      = "CurrentCall"
	LabelSuccessfulCallP  = "SuccessfulCall(P)"
	LabelSuccessfulCallC  = "SuccessfulCall(C)"
	LabelFailedCallP      = "FailedCall(P)"
	LabelFailedCallC      = "FailedCall(C)"

	LabelFailedCannotSendMessageP   = "FailedCannotSendMessage(P)"
	LabelFailedCannotSendMessageC   = "FailedCannotSendMessage(C)"
	LabelFailedMaxUDPRetransP       = "FailedMaxUDPRetrans(P)"
	LabelFailedMaxUDPRetransC       = "FailedMaxUDPRetrans(C)"
	LabelFailedTCPConnectP          = "FailedTcpConnect(P)"
	LabelFailedTCPConnectC          = "FailedTcpConnect(C)"
	LabelFailedTCPClosedP           = "FailedTcpClosed(P)"
	LabelFailedTCPClosedC           = "FailedTcpClosed(C)"
	LabelFailedUnexpectedMessageP   = "FailedUnexpectedMessage(P)"
	LabelFailedUnexpectedMessageC   = "FailedUnexpectedMessage(C)"
	LabelFailedCallRejectedP        = "FailedCallRejected(P)"
	LabelFailedCallRejectedC        = "FailedCallRejected(C)"
	LabelFailedCmdNotSentP          = "FailedCmdNotSent(P)"
	LabelFailedCmdNotSentC          = "FailedCmdNotSent(C)"
	LabelFailedRegexpDoesntMatchP   = "FailedRegexpDoesntMatch(P)"
	LabelFailedRegexpDoesntMatchC   = "FailedRegexpDoesntMatch(C)"
	LabelFailedRegexpShouldntMatchP = "FailedRegexpShouldntMatch(P)"
	LabelFailedRegexpShouldntMatchC = "FailedRegexpShouldntMatch(C)"
	LabelFailedRegexpHdrNotFoundP   = "FailedRegexpHdrNotFound(P)"
	LabelFailedRegexpHdrNotFoundC   = "FailedRegexpHdrNotFound(C)"
	LabelFailedOutboundCongestionP  = "FailedOutboundCongestion(P)"
	LabelFailedOutboundCongestionC  = "FailedOutboundCongestion(C)"
	LabelFailedTimeoutOnRecvP       = "FailedTimeoutOnRecv(P)"
	LabelFailedTimeoutOnRecvC       = "FailedTimeoutOnRecv(C)"
	LabelFailedTimeoutOnSendP       = "FailedTimeoutOnSend(P)"
	LabelFailedTimeoutOnSendC       = "FailedTimeoutOnSend(C)"

	LabelOutOfCallMsgsP   = "OutOfCallMsgs(P)"
	LabelOutOfCallMsgsC   = "OutOfCallMsgs(C)"
	LabelDeadCallMsgsP    = "DeadCallMsgs(P)"
	LabelDeadCallMsgsC    = "DeadCallMsgs(C)"
	LabelRetransmissionsP = "Retransmissions(P)"
	LabelRetransmissionsC = "Retransmissions(C)"
	LabelAutoAnsweredP    = "AutoAnswered(P)"
	LabelAutoAnsweredC    = "AutoAnswered(C)"
	LabelWarningsP        = "Warnings(P)"
	LabelWarningsC        = "Warnings(C)"
	LabelFatalErrorsP     = "FatalErrors(P)"
	LabelFatalErrorsC     = "FatalErrors(C)"
	LabelWatchdogMajorP   = "WatchdogMajor(P)"
	LabelWatchdogMajorC   = "WatchdogMajor(C)"
	LabelWatchdogMinorP   = "WatchdogMinor(P)"
	LabelWatchdogMinorC   = "WatchdogMinor(C)"

	LabelResponseTime1P      = "ResponseTime1(P)"
	LabelResponseTime1C      = "ResponseTime1(C)"
	LabelResponseTime1StDevP = "ResponseTime1StDev(P)"
	LabelResponseTime1StDevC = "ResponseTime1StDev(C)"
	LabelCallLengthP         = "CallLength(P)"
	LabelCallLengthC         = "CallLength(C)"
	LabelCallLengthStDevP    = "CallLengthStDev(P)"
	LabelCallLengthStDevC    = "CallLengthStDev(C)"

	LabelResponseTimeRepartition1 = "ResponseTimeRepartition1"
	LabelCallLengthRepartition    = "CallLengthRepartition"
)

// FailureLabels lists the periodic failure counters in file order.
var FailureLabels = []string{
	LabelFailedCannotSendMessageP,
	LabelFailedMaxUDPRetransP,
	LabelFailedTCPConnectP,
	LabelFailedTCPClosedP,
	LabelFailedUnexpectedMessageP,
	LabelFailedCallRejectedP,
	LabelFailedCmdNotSentP,
	LabelFailedRegexpDoesntMatchP,
	LabelFailedRegexpShouldntMatchP,
	LabelFailedRegexpHdrNotFoundP,
	LabelFailedOutboundCongestionP,
	LabelFailedTimeoutOnRecvP,
	LabelFailedTimeoutOnSendP,
}

func isTimestampLabel(label string) bool {
	switch label {
	case LabelStartTime, LabelLastResetTime, LabelCurrentTime:
		return true
	}
	return false
}

func isDurationLabel(label string) bool {
	switch label {
	case LabelElapsedTimeP, LabelElapsedTimeC:
		return true
	case LabelResponseTime1P, LabelResponseTime1C,
		LabelResponseTime1StDevP, LabelResponseTime1StDevC,
		LabelCallLengthP, LabelCallLengthC,
		LabelCallLengthStDevP, LabelCallLengthStDevC:
		return true
	}
	return false
}

func isRepartitionLabel(label string) bool {
	return label == LabelResponseTimeRepartition1 || label == LabelCallLengthRepartition
}
