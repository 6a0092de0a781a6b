package refresh

// Reporter receives the human-facing progress of a run. It is separate
// from logging: these lines are for the operator at the keyboard.
type Reporter interface {
	Phase(p Phase)
	Info(msg string)
	Success(msg string)
	Warn(msg string)
	Error(msg string)
	Hint(msg string)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Phase(Phase)    {}
func (NopReporter) Info(string)    {}
func (NopReporter) Success(string) {}
func (NopReporter) Warn(string)    {}
func (NopReporter) Error(string)   {}
func (NopReporter) Hint(string)    {}
