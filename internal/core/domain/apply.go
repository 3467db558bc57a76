package domain

// StreamSettings is the (server, key) pair pushed to the broadcasting application.
type StreamSettings struct {
	Server string
	Key    string
}

func (s StreamSettings) Complete() bool {
	return s.Server != "" && s.Key != ""
}

// AppliedState is the coordinator's idempotence anchor. Empty strings mean
// "nothing applied yet".
type AppliedState struct {
	Server   string
	Key      string
	InFlight bool
}

func (a AppliedState) Matches(s StreamSettings) bool {
	return a.Server == s.Server && a.Key == s.Key
}

// ChannelStatus is reported by the external control channel when its
// connection state changes.
type ChannelStatus string

const (
	ChannelConnected    ChannelStatus = "connected"
	ChannelDisconnected ChannelStatus = "disconnected"
)

// ApplyPhase is reported to status listeners while settings are pushed.
type ApplyPhase string

const (
	ApplyStarted   ApplyPhase = "started"
	ApplySucceeded ApplyPhase = "succeeded"
	ApplyFailed    ApplyPhase = "failed"
)

// ApplyTrigger tells whether a push came from the poll loop or an operator.
type ApplyTrigger string

const (
	TriggerAuto   ApplyTrigger = "auto"
	TriggerManual ApplyTrigger = "manual"
)
