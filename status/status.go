// Package status defines the tagged status values reported by Ingress and
// Egress workers to the router's status channel.
package status

import "fmt"

// EngineIndex is the reserved sentinel route index used for engine-level
// status events that are not attributable to any single route (currently
// only a listener bind failure).
const EngineIndex = -1

// Kind identifies which variant of AppStatus a value holds.
type Kind int

const (
	Disabled Kind = iota
	Stopped
	Running
	Error
)

func (k Kind) String() string {
	switch k {
	case Disabled:
		return "Disabled"
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// AppStatus is the tagged status of a single route, or of the engine as a
// whole when Index == status.EngineIndex. Only Kind == Error populates
// ErrID/Message.
type AppStatus struct {
	Kind    Kind
	ErrID   int
	Message string
}

func (s AppStatus) String() string {
	if s.Kind == Error {
		return fmt.Sprintf("%s: %s [%d]", s.Kind, s.Message, s.ErrID)
	}
	return s.Kind.String()
}

// Update pairs an AppStatus with the route index it concerns. Index ==
// EngineIndex denotes an engine-level event not attributable to any route.
type Update struct {
	Index  int
	Status AppStatus
}

func running() AppStatus { return AppStatus{Kind: Running} }

func stopped() AppStatus { return AppStatus{Kind: Stopped} }

func disabled() AppStatus { return AppStatus{Kind: Disabled} }

// Running reports a route (or the engine) as up and serving.
func Running() AppStatus { return running() }

// Stopped reports orderly termination.
func Stopped() AppStatus { return stopped() }

// Disabled reports a route that was never started.
func Disabled() AppStatus { return disabled() }

// ErrorStatus builds an Error status carrying a route-specific error code
// and message.
func ErrorStatus(errID int, format string, args ...any) AppStatus {
	return AppStatus{
		Kind:    Error,
		ErrID:   errID,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error codes, one small negative constant per failure site.
const (
	ErrBindListener = -1 // engine-level: failed to bind the ingress socket
	ErrBindRoute    = -2 // route-level: failed to bind the egress send socket
	ErrSendRoute    = -3 // route-level: transient send_to failure
)
