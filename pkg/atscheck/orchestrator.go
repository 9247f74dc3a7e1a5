package atscheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const (
	pdfMIME = "application/pdf"

	// DefaultAnalysisTimeout covers file upload plus AI inference
	DefaultAnalysisTimeout = 30 * time.Second
)

// SubmissionState is the orchestrator's position in the submission cycle
type SubmissionState string

const (
	SubmissionIdle          SubmissionState = "idle"
	SubmissionCheckingLimit SubmissionState = "checking_limit"
	SubmissionSubmitting    SubmissionState = "submitting"
)

// SessionView is the read-only view of the session the orchestrator needs
type SessionView interface {
	Current() Session
}

// OrchestratorConfig holds Orchestrator configuration
type OrchestratorConfig struct {
	// Timeout bounds a whole submission, limit check included (default: 30s)
	Timeout time.Duration

	// Prompter receives login/upgrade prompts (optional)
	Prompter Prompter

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking submissions (default: NoopMetrics)
	Metrics Metrics
}

// Result is a rendered analysis
type Result struct {
	Action   Action
	Raw      string
	HTML     string
	Usage    UsageInfo
	Finished time.Time
}

// Orchestrator coordinates file selection, limit checking and submission
type Orchestrator struct {
	backend  AnalysisBackend
	tracker  *UsageTracker
	sessions SessionView
	prompter Prompter
	timeout  time.Duration
	logger   Logger
	metrics  Metrics

	mu      sync.Mutex
	pending PendingUpload
	hasFile bool
	state   SubmissionState
	cancel  context.CancelFunc
	result  *Result
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(backend AnalysisBackend, tracker *UsageTracker, sessions SessionView, config OrchestratorConfig) (*Orchestrator, error) {
	if backend == nil {
		return nil, fmt.Errorf("analysis backend is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("usage tracker is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session view is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultAnalysisTimeout
	}
	prompter := config.Prompter
	if prompter == nil {
		prompter = PrompterFuncs{}
	}

	return &Orchestrator{
		backend:  backend,
		tracker:  tracker,
		sessions: sessions,
		prompter: prompter,
		timeout:  config.Timeout,
		logger:   orNoopLogger(config.Logger),
		metrics:  orNoopMetrics(config.Metrics),
		pending:  PendingUpload{Mode: ModeWithJobDescription},
		state:    SubmissionIdle,
	}, nil
}

// SetPrompter replaces the prompt receiver
func (o *Orchestrator) SetPrompter(p Prompter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p == nil {
		p = PrompterFuncs{}
	}
	o.prompter = p
}

// SelectFiles sets the resume to analyze. Exactly one PDF is accepted;
// a rejected selection leaves the current pending upload unchanged.
func (o *Orchestrator) SelectFiles(files ...File) error {
	switch {
	case len(files) == 0:
		return invalid("file", ErrNoFile, "Please upload a resume before submitting.")
	case len(files) > 1:
		return invalid("file", ErrTooManyFiles, "Please upload a single PDF file.")
	}
	f := files[0]
	if !IsPDF(f) {
		return invalid("file", ErrInvalidFileType, "Please upload a PDF file only.")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending.File = f
	o.hasFile = true
	o.logger.Debug("resume selected", F("file", f.Name), F("bytes", len(f.Content)))
	return nil
}

// IsPDF reports whether f is declared as a PDF and its content is one
func IsPDF(f File) bool {
	declared := strings.ToLower(strings.TrimSpace(f.ContentType))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != pdfMIME {
		return false
	}
	if len(f.Content) == 0 {
		return false
	}
	return mimetype.Detect(f.Content).Is(pdfMIME)
}

// SetMode switches between job-description and general analysis
func (o *Orchestrator) SetMode(m Mode) error {
	if m != ModeWithJobDescription && m != ModeWithoutJobDescription {
		return invalid("mode", ErrInvalidMode, fmt.Sprintf("unknown mode %q", m))
	}
	o.mu.Lock()
	o.pending.Mode = m
	o.mu.Unlock()
	return nil
}

// SetJobDescription sets the text used in ModeWithJobDescription
func (o *Orchestrator) SetJobDescription(s string) {
	o.mu.Lock()
	o.pending.JobDescription = s
	o.mu.Unlock()
}

// SetCompanyName sets the position/company text used in ModeWithoutJobDescription
func (o *Orchestrator) SetCompanyName(s string) {
	o.mu.Lock()
	o.pending.CompanyName = s
	o.mu.Unlock()
}

// Pending returns the pending upload and whether a file is selected
func (o *Orchestrator) Pending() (PendingUpload, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending, o.hasFile
}

// Busy reports whether a submission is running; trigger controls stay disabled meanwhile
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state != SubmissionIdle
}

// State returns the current submission state
func (o *Orchestrator) State() SubmissionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Result returns the last successful analysis, if any
func (o *Orchestrator) Result() *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		return nil
	}
	r := *o.result
	return &r
}

// Cancel aborts the in-flight limit check or submission.
// A late response is then discarded.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Clear abandons the pending upload
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	mode := o.pending.Mode
	o.pending = PendingUpload{Mode: mode}
	o.hasFile = false
	o.mu.Unlock()
}

// Submit validates the pending upload, checks the quota against a fresh usage
// read and, when allowed, sends the analysis request.
func (o *Orchestrator) Submit(ctx context.Context, action Action) (*Result, error) {
	if action != ActionScore && action != ActionReview {
		return nil, invalid("action", ErrInvalidAction, fmt.Sprintf("unknown action %q", action))
	}

	o.mu.Lock()
	if o.state != SubmissionIdle {
		o.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	pending, hasFile := o.pending, o.hasFile
	req, err := buildRequest(pending, hasFile, action)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	o.cancel = cancel
	o.state = SubmissionCheckingLimit
	prompter := o.prompter
	o.mu.Unlock()

	start := time.Now()
	defer func() {
		cancel()
		o.mu.Lock()
		o.cancel = nil
		o.state = SubmissionIdle
		o.mu.Unlock()
	}()

	session := o.sessions.Current()

	usage, err := o.tracker.Refresh(ctx, session.Credential)
	if err != nil {
		err = o.contextError(ctx, err)
		o.metrics.RecordSubmission(string(action), string(Classify(err)), time.Since(start))
		return nil, fmt.Errorf("checking usage limits: %w", err)
	}

	decision := CanProceed(session.Authenticated(), usage.UploadsUsed, usage.Limit)
	o.metrics.RecordGateDecision(decision.String())
	switch decision {
	case RequireLogin:
		o.logger.Info("upload blocked, login required", F("used", usage.UploadsUsed), F("limit", usage.Limit))
		prompter.LoginRequired()
		o.metrics.RecordSubmission(string(action), decision.String(), time.Since(start))
		return nil, ErrLoginRequired
	case RequireUpgrade:
		o.logger.Info("upload blocked, upgrade required",
			F("username", session.Username), F("used", usage.UploadsUsed), F("limit", usage.Limit))
		prompter.UpgradeRequired()
		o.metrics.RecordSubmission(string(action), decision.String(), time.Since(start))
		return nil, ErrUpgradeRequired
	}

	o.mu.Lock()
	o.state = SubmissionSubmitting
	o.mu.Unlock()

	res, err := o.backend.Analyze(ctx, session.Credential, req)
	if err == nil {
		// A dismissed submission must not touch the view
		err = ctx.Err()
	}
	if err != nil {
		err = o.contextError(ctx, err)
		o.metrics.RecordSubmission(string(action), string(Classify(err)), time.Since(start))
		o.logger.Warn("analysis failed", F("action", string(action)), F("error", err))
		return nil, fmt.Errorf("analyzing resume: %w", err)
	}

	o.tracker.Apply(res.Usage)

	result := &Result{
		Action:   action,
		Raw:      res.Response,
		HTML:     RenderMarkdown(res.Response),
		Usage:    res.Usage,
		Finished: time.Now(),
	}

	o.mu.Lock()
	o.result = result
	o.pending = PendingUpload{Mode: pending.Mode}
	o.hasFile = false
	o.mu.Unlock()

	o.metrics.RecordSubmission(string(action), "success", time.Since(start))
	o.logger.Info("analysis complete", F("action", string(action)),
		F("used", res.Usage.UploadsUsed), F("limit", res.Usage.Limit))

	r := *result
	return &r, nil
}

// contextError maps context failures onto ErrTimeout / ErrCancelled
func (o *Orchestrator) contextError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrCancelled):
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	default:
		return err
	}
}

func buildRequest(p PendingUpload, hasFile bool, action Action) (AnalyzeRequest, error) {
	if !hasFile {
		return AnalyzeRequest{}, invalid("file", ErrNoFile, "Please upload a resume before submitting.")
	}

	req := AnalyzeRequest{File: p.File, Action: action}
	switch p.Mode {
	case ModeWithJobDescription:
		if strings.TrimSpace(p.JobDescription) == "" {
			return AnalyzeRequest{}, invalid("job_description", ErrMissingJobDescription,
				"Please paste the job description before submitting.")
		}
		req.JobDescription = p.JobDescription
	case ModeWithoutJobDescription:
		if strings.TrimSpace(p.CompanyName) == "" {
			return AnalyzeRequest{}, invalid("company_name", ErrMissingCompanyName,
				"Please enter the post/job details before submitting.")
		}
		req.CompanyName = p.CompanyName
	default:
		return AnalyzeRequest{}, invalid("mode", ErrInvalidMode, fmt.Sprintf("unknown mode %q", p.Mode))
	}
	return req, nil
}
