package async

// State of the async machine. Each state carries four flags: whether the request is async,
// whether async was started and not yet resolved, and whether it is completing or
// dispatching.
type State uint8

const (
	Dispatched State = iota
	Starting
	Started
	ReadWriteOp
	MustComplete
	CompletePending
	Completing
	TimingOut
	MustDispatch
	DispatchPending
	Dispatching
	MustError
	Error
	stateCount
)

type flags struct {
	async, started, completing, dispatching bool
}

var stateFlags = [stateCount]flags{
	Dispatched:      {false, false, false, false},
	Starting:        {true, true, false, false},
	Started:         {true, true, false, false},
	ReadWriteOp:     {true, true, false, false},
	MustComplete:    {true, true, true, false},
	CompletePending: {true, true, false, false},
	Completing:      {true, false, true, false},
	TimingOut:       {true, true, false, false},
	MustDispatch:    {true, true, false, true},
	DispatchPending: {true, true, false, false},
	Dispatching:     {true, false, false, true},
	MustError:       {true, true, false, false},
	Error:           {true, true, false, false},
}

var stateNames = [stateCount]string{
	Dispatched:      "DISPATCHED",
	Starting:        "STARTING",
	Started:         "STARTED",
	ReadWriteOp:     "READ_WRITE_OP",
	MustComplete:    "MUST_COMPLETE",
	CompletePending: "COMPLETE_PENDING",
	Completing:      "COMPLETING",
	TimingOut:       "TIMING_OUT",
	MustDispatch:    "MUST_DISPATCH",
	DispatchPending: "DISPATCH_PENDING",
	Dispatching:     "DISPATCHING",
	MustError:       "MUST_ERROR",
	Error:           "ERROR",
}

func (s State) String() string {
	if s < stateCount {
		return stateNames[s]
	}

	return "UNKNOWN"
}

func (s State) IsAsync() bool       { return stateFlags[s].async }
func (s State) IsStarted() bool     { return stateFlags[s].started }
func (s State) IsCompleting() bool  { return stateFlags[s].completing }
func (s State) IsDispatching() bool { return stateFlags[s].dispatching }
