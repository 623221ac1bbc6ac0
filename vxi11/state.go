package vxi11

import "sync/atomic"

// State is the lifecycle state of a Session.
type State uint32

const (
	UnconnectedState State = iota
	LinkedState
	ClosedState
)

func (s State) String() string {
	switch s {
	case UnconnectedState:
		return "Unconnected"
	case LinkedState:
		return "Linked"
	case ClosedState:
		return "Closed"
	default:
		return "Unknown"
	}
}

type atomicState struct {
	state atomic.Uint32
}

func (st *atomicState) String() string {
	return st.Get().String()
}

// Get returns the current state.
func (st *atomicState) Get() State {
	return State(st.state.Load())
}

func (st *atomicState) IsUnconnected() bool {
	return st.Get() == UnconnectedState
}

func (st *atomicState) IsLinked() bool {
	return st.Get() == LinkedState
}

func (st *atomicState) IsClosed() bool {
	return st.Get() == ClosedState
}

// ToLinked moves an unconnected session to Linked.
func (st *atomicState) ToLinked() bool {
	return st.state.CompareAndSwap(uint32(UnconnectedState), uint32(LinkedState))
}

// ToClosed moves the session to Closed from any state. It returns false if it was already closed.
func (st *atomicState) ToClosed() bool {
	return st.state.Swap(uint32(ClosedState)) != uint32(ClosedState)
}
