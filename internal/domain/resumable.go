package domain

// Resumable is a unit of work that completes over several calls.
// Step advances it by one step and reports whether it is finished.
// A non-nil error ends the task.
type Resumable interface {
	Step() (done bool, err error)
}

// StepFunc adapts a function to the Resumable interface.
type StepFunc func() (bool, error)

func (f StepFunc) Step() (bool, error) { return f() }

// Steps returns a Resumable that runs each function in order, one per
// Step call. It reports done after the last function has run.
func Steps(fns ...func() error) Resumable {
	next := 0
	return StepFunc(func() (bool, error) {
		if next >= len(fns) {
			return true, nil
		}
		fn := fns[next]
		next++
		if err := fn(); err != nil {
			return true, err
		}
		return next >= len(fns), nil
	})
}
