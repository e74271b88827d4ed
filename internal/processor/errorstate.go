package processor

// ErrorState is ordered by severity. It only ever escalates within a request cycle.
type ErrorState uint8

const (
	ErrorNone ErrorState = iota
	// ErrorCloseClean finishes the current response and closes the connection afterward.
	ErrorCloseClean
	// ErrorCloseConnectionNow is an I/O-level failure: nothing more can be written.
	ErrorCloseConnectionNow
	// ErrorCloseNow abandons the response state entirely.
	ErrorCloseNow
)

var errorStateNames = [...]string{
	ErrorNone:               "NONE",
	ErrorCloseClean:         "CLOSE_CLEAN",
	ErrorCloseConnectionNow: "CLOSE_CONNECTION_NOW",
	ErrorCloseNow:           "CLOSE_NOW",
}

func (e ErrorState) String() string {
	if int(e) < len(errorStateNames) {
		return errorStateNames[e]
	}

	return "UNKNOWN"
}

func (e ErrorState) IsError() bool {
	return e != ErrorNone
}

// IsIOAllowed tells whether the response may still be written.
func (e ErrorState) IsIOAllowed() bool {
	return e <= ErrorCloseClean
}

// IsConnectionIOAllowed tells whether anything at all may still be written into the connection.
func (e ErrorState) IsConnectionIOAllowed() bool {
	return e != ErrorCloseConnectionNow
}

// Merge returns the most severe of both.
func (e ErrorState) Merge(other ErrorState) ErrorState {
	return max(e, other)
}
