// Package notify posts run results to chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/core/runner"
	"github.com/abdul-hamid-achik/statusprobe/packages/http"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when the run fails
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when the run passes
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends notifications on failure and when a run passes
	// after a failed one
	NotifyRecovery NotifyOn = "recovery"
)

// ParseNotifyOn validates a policy name. The empty string means failure.
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch NotifyOn(strings.ToLower(s)) {
	case "":
		return NotifyFailure, nil
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery:
		return NotifyOn(strings.ToLower(s)), nil
	}
	return "", fmt.Errorf("unknown notify policy %q (use always, failure, success or recovery)", s)
}

// RunSummary is what a notifier reports about one run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	APIBase    string        `json:"api_base,omitempty"`
	Source     string        `json:"source,omitempty"`
	Passed     bool          `json:"passed"`
	State      string        `json:"state"`
	Steps      int           `json:"steps"`
	Warnings   int           `json:"warnings"`
	Duration   time.Duration `json:"duration"`
	Failure    *Failure      `json:"failure,omitempty"`
	IsRecovery bool          `json:"is_recovery,omitempty"`
}

// Failure describes the step that stopped a run.
type Failure struct {
	Step    string `json:"step"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Summarize builds the summary of a finished run.
func Summarize(run *runner.RunResult) *RunSummary {
	s := &RunSummary{
		RunID:    run.RunID,
		APIBase:  run.APIBase,
		Source:   run.EnvFile,
		Passed:   run.Passed,
		State:    run.State.String(),
		Steps:    len(run.Steps),
		Warnings: run.Warnings(),
		Duration: run.Duration,
	}
	if f := run.Failed(); f != nil {
		s.Failure = &Failure{
			Step:    f.Name,
			Kind:    f.Kind.String(),
			Message: f.Message,
			Detail:  f.Detail,
		}
	}
	return s
}

// Notifier is the interface for notification services
type Notifier interface {
	Notify(ctx context.Context, summary *RunSummary) error
	Name() string
}

// Manager sends run summaries to its notifiers according to a policy. It
// remembers the previous outcome so watch mode can report recoveries.
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
	lastState bool
}

func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastState: true,
	}
}

func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Len returns the number of notifiers.
func (m *Manager) Len() int {
	return len(m.notifiers)
}

// Notify reports run if the policy asks for it. Every notifier is tried; the
// errors of those that failed are joined.
func (m *Manager) Notify(ctx context.Context, run *runner.RunResult) error {
	summary := Summarize(run)

	shouldNotify := false
	switch m.notifyOn {
	case NotifyAlways:
		shouldNotify = true
	case NotifyFailure:
		shouldNotify = !summary.Passed
	case NotifySuccess:
		shouldNotify = summary.Passed
	case NotifyRecovery:
		if !m.lastState && summary.Passed {
			shouldNotify = true
			summary.IsRecovery = true
		}
		if !summary.Passed {
			shouldNotify = true
		}
	}
	m.lastState = summary.Passed

	if !shouldNotify {
		return nil
	}

	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// headline returns the one-line verdict shared by every notifier.
func (s *RunSummary) headline() string {
	switch {
	case s.Failure != nil:
		return fmt.Sprintf("Backend tests FAILED at %s", s.Failure.Step)
	case s.IsRecovery:
		return "Backend tests recovered"
	case s.Warnings > 0:
		return fmt.Sprintf("Backend tests passed with %d warning(s)", s.Warnings)
	}
	return "All backend tests passed"
}

func (s *RunSummary) target() string {
	if s.APIBase != "" {
		return s.APIBase
	}
	return s.Source
}

// postJSON sends a webhook payload and accepts any of the given statuses.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, accept ...int) error {
	req, err := http.NewRequest("POST", url).SetJSON(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	resp, err := client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	for _, code := range accept {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, resp.Excerpt(200))
}
