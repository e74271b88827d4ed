package async

import "github.com/indigo-web/connector/transport"

// Event is an input of the machine.
type Event uint8

const (
	EvStart Event = iota
	EvComplete
	EvCompleteOffContainer
	EvDispatch
	EvDispatchOffContainer
	EvTimeout
	EvError
	EvPostProcess
	EvOperation
	EvRun
	eventCount
)

var eventNames = [eventCount]string{
	EvStart:                "start",
	EvComplete:             "complete",
	EvCompleteOffContainer: "complete (off container)",
	EvDispatch:             "dispatch",
	EvDispatchOffContainer: "dispatch (off container)",
	EvTimeout:              "timeout",
	EvError:                "error",
	EvPostProcess:          "post-process",
	EvOperation:            "operation",
	EvRun:                  "run",
}

func (e Event) String() string {
	if e < eventCount {
		return eventNames[e]
	}

	return "unknown"
}

// Transition is a cell of the transition table.
type Transition struct {
	Next State
	// Result is what the operation reports to its caller: whether a redispatch is
	// required for complete and dispatch, whether the timeout fires for timeout.
	Result         bool
	ClearListeners bool
	FireComplete   bool
	// Socket is the outcome of post-processing.
	Socket transport.SocketState
	Valid  bool
}

func to(next State) Transition {
	return Transition{Next: next, Valid: true}
}

func (t Transition) result() Transition {
	t.Result = true
	return t
}

func (t Transition) clearing() Transition {
	t.ClearListeners = true
	return t
}

func (t Transition) firing() Transition {
	t.FireComplete = true
	return t
}

func (t Transition) socket(state transport.SocketState) Transition {
	t.Socket = state
	return t
}

// table is indexed by state and event. Zero cells are invalid transitions.
var table = func() (t [stateCount][eventCount]Transition) {
	t[Dispatched][EvStart] = to(Starting)

	for _, ev := range []Event{EvComplete, EvCompleteOffContainer} {
		t[Starting][ev] = to(MustComplete).clearing()
		t[MustError][ev] = to(MustComplete).clearing()
		t[Started][ev] = to(Completing).clearing().result()
		t[ReadWriteOp][ev] = to(Completing).clearing()
		t[TimingOut][ev] = to(Completing).clearing()
		t[Error][ev] = to(Completing).clearing()
	}

	// the service call is still in flight, it will pick the pending state up on its way out
	t[Starting][EvCompleteOffContainer] = to(CompletePending)

	for _, ev := range []Event{EvDispatch, EvDispatchOffContainer} {
		t[Starting][ev] = to(MustDispatch).clearing()
		t[MustError][ev] = to(MustDispatch).clearing()
		t[Started][ev] = to(Dispatching).clearing().result()
		t[ReadWriteOp][ev] = to(Dispatching).clearing()
		t[TimingOut][ev] = to(Dispatching).clearing()
		t[Error][ev] = to(Dispatching).clearing()
	}

	t[Starting][EvDispatchOffContainer] = to(DispatchPending)

	t[Started][EvTimeout] = to(TimingOut).result()
	t[Completing][EvTimeout] = to(Completing)
	t[Dispatching][EvTimeout] = to(Dispatching)
	t[Dispatched][EvTimeout] = to(Dispatched)

	for s := range stateCount {
		t[s][EvError] = to(Error).clearing()
	}
	t[Starting][EvError] = to(MustError).clearing()

	t[CompletePending][EvPostProcess] = to(Completing).clearing().socket(transport.AsyncEnd)
	t[DispatchPending][EvPostProcess] = to(Dispatching).clearing().socket(transport.AsyncEnd)
	t[Starting][EvPostProcess] = to(Started).socket(transport.Long)
	t[ReadWriteOp][EvPostProcess] = to(Started).socket(transport.Long)
	t[Started][EvPostProcess] = to(Started).socket(transport.Long)
	t[MustComplete][EvPostProcess] = to(Dispatched).firing().socket(transport.AsyncEnd)
	t[Completing][EvPostProcess] = to(Dispatched).firing().socket(transport.AsyncEnd)
	t[MustDispatch][EvPostProcess] = to(Dispatching).socket(transport.AsyncEnd)
	t[Dispatching][EvPostProcess] = to(Dispatched).socket(transport.AsyncEnd)

	t[Started][EvOperation] = to(ReadWriteOp)

	t[Starting][EvRun] = to(Starting)
	t[Started][EvRun] = to(Started)
	t[ReadWriteOp][EvRun] = to(ReadWriteOp)

	return t
}()

// Lookup returns the transition for the state and the event.
func Lookup(state State, event Event) Transition {
	if state >= stateCount || event >= eventCount {
		return Transition{}
	}

	return table[state][event]
}
