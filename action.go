package nodeflow

// Action is the outcome label a unit returns from its finalize phase. The
// empty Action means no explicit transition and routes as DefaultAction.
type Action string

// DefaultAction is the reserved label used when a unit returns no label.
const DefaultAction Action = "default"

// OrDefault returns DefaultAction for the empty label.
func (a Action) OrDefault() Action {
	if a == "" {
		return DefaultAction
	}
	return a
}

func (a Action) String() string {
	return string(a)
}
