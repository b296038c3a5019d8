package engine

import "fmt"

// RequestError is returned when a request fails to execute and the run is
// not configured to continue past failures.
type RequestError struct {
	Worker    int
	Iteration int
	Request   string
	Err       error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("worker %d, iteration %d: request %q failed: %v", e.Worker, e.Iteration, e.Request, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// InternalError reports a worker that panicked or finished without
// reporting back to the scheduler.
type InternalError struct {
	Worker int

	// Panic holds the recovered value, nil when the worker simply vanished
	Panic interface{}
}

func (e *InternalError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("worker %d panicked: %v", e.Worker, e.Panic)
	}
	return fmt.Sprintf("worker %d exited without reporting", e.Worker)
}
