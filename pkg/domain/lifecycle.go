package domain

// NodeState tracks a node through one edit/save cycle.
type NodeState uint8

// Node lifecycle states.
const (
	// StateUnbound means no schema has been applied yet.
	StateUnbound NodeState = iota
	// StateBound means the schema is applied and the weight resolved.
	StateBound
	// StateEdited means the node carries unsaved edits.
	StateEdited
	// StateReconciled means the node was matched against its persisted twin.
	StateReconciled
	// StatePersisted means the persistence collaborator accepted the node.
	StatePersisted
)

var nodeStateNames = map[NodeState]string{
	StateUnbound:    "unbound",
	StateBound:      "bound",
	StateEdited:     "edited",
	StateReconciled: "reconciled",
	StatePersisted:  "persisted",
}

func (s NodeState) String() string {
	if name, ok := nodeStateNames[s]; ok {
		return name
	}
	return "unknown"
}

var nodeTransitions = map[NodeState]map[NodeState]struct{}{
	StateUnbound:    toStateSet(StateBound),
	StateBound:      toStateSet(StateBound, StateEdited, StateReconciled),
	StateEdited:     toStateSet(StateEdited, StateReconciled),
	StateReconciled: toStateSet(StateEdited, StatePersisted),
	StatePersisted:  toStateSet(StateBound, StateEdited, StateReconciled),
}

func toStateSet(states ...NodeState) map[NodeState]struct{} {
	out := make(map[NodeState]struct{}, len(states))
	for _, s := range states {
		out[s] = struct{}{}
	}
	return out
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to NodeState) bool {
	_, ok := nodeTransitions[from][to]
	return ok
}

// Transition moves the node to state to.
func (n *Node) Transition(to NodeState) error {
	if !CanTransition(n.State, to) {
		return InvalidTransitionError{Label: n.Label, From: n.State, To: to}
	}
	n.State = to
	return nil
}
