package models

// NodeState represents the expansion lifecycle of a plan node.
// It is used for progress reporting only.
type NodeState string

const (
	// NodeStateCreated indicates the node exists but has not been looked at.
	NodeStateCreated NodeState = "created"
	// NodeStateProcessing indicates the node is being worked on locally.
	NodeStateProcessing NodeState = "processing"
	// NodeStateRequestSubmitted indicates a completion request is in flight.
	NodeStateRequestSubmitted NodeState = "request_submitted"
	// NodeStateResponseReceived indicates completions arrived for the node.
	NodeStateResponseReceived NodeState = "response_received"
	// NodeStateFinal indicates the node is below the maximum depth and was not expanded.
	NodeStateFinal NodeState = "final"
	// NodeStateDone indicates expansion of the node and its subtree finished.
	NodeStateDone NodeState = "done"
)

// Valid returns true if the state is a known value.
func (s NodeState) Valid() bool {
	switch s {
	case NodeStateCreated, NodeStateProcessing, NodeStateRequestSubmitted,
		NodeStateResponseReceived, NodeStateFinal, NodeStateDone:
		return true
	default:
		return false
	}
}

// Label returns the human readable form used in progress output.
func (s NodeState) Label() string {
	switch s {
	case NodeStateCreated:
		return "Created"
	case NodeStateProcessing:
		return "Processing"
	case NodeStateRequestSubmitted:
		return "Request submitted"
	case NodeStateResponseReceived:
		return "Response received"
	case NodeStateFinal:
		return "Final leaf"
	case NodeStateDone:
		return "Done"
	default:
		return string(s)
	}
}

// Terminal returns true if no further work will happen on the node.
func (s NodeState) Terminal() bool {
	return s == NodeStateFinal || s == NodeStateDone
}
