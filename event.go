package liveq

// Action identifies the kind of change a backend event carries.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event is a change notification for one record inside a subscription's
// scope. For ActionDelete the record holds the pre-deletion state, so its
// identifier is always available.
type Event struct {
	Action Action `json:"action"`
	Record Record `json:"record"`
}
