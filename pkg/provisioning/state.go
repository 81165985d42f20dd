package provisioning

// State enumerates the provisioning state machine's states.
type State int

const (
	StateIdle State = iota
	StateInviteSent
	StateCapabilitiesReceived
	StateStartSent
	StatePublicKeySent
	StatePublicKeyReceived
	StateConfirmationSent
	StateConfirmationReceived
	StateRandomSent
	StateRandomReceived
	StateDataSent
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInviteSent:
		return "inviteSent"
	case StateCapabilitiesReceived:
		return "capabilitiesReceived"
	case StateStartSent:
		return "startSent"
	case StatePublicKeySent:
		return "publicKeySent"
	case StatePublicKeyReceived:
		return "publicKeyReceived"
	case StateConfirmationSent:
		return "confirmationSent"
	case StateConfirmationReceived:
		return "confirmationReceived"
	case StateRandomSent:
		return "randomSent"
	case StateRandomReceived:
		return "randomReceived"
	case StateDataSent:
		return "dataSent"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
