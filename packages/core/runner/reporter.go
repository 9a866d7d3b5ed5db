package runner

// Reporter receives progress while a run executes. Calls arrive in order on
// the goroutine that called Run.
type Reporter interface {
	// OnStart is called once the backend URL has been resolved, or has
	// failed to resolve, in which case run.APIBase is empty.
	OnStart(run *RunResult)
	OnStepStart(step Step)
	OnStepResult(step *StepResult)
	OnFinish(run *RunResult)
}

type nopReporter struct{}

func (nopReporter) OnStart(*RunResult)       {}
func (nopReporter) OnStepStart(Step)         {}
func (nopReporter) OnStepResult(*StepResult) {}
func (nopReporter) OnFinish(*RunResult)      {}

// MultiReporter fans progress out to several reporters.
type MultiReporter []Reporter

func (m MultiReporter) OnStart(run *RunResult) {
	for _, r := range m {
		r.OnStart(run)
	}
}

func (m MultiReporter) OnStepStart(step Step) {
	for _, r := range m {
		r.OnStepStart(step)
	}
}

func (m MultiReporter) OnStepResult(step *StepResult) {
	for _, r := range m {
		r.OnStepResult(step)
	}
}

func (m MultiReporter) OnFinish(run *RunResult) {
	for _, r := range m {
		r.OnFinish(run)
	}
}
