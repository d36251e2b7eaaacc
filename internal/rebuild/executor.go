package rebuild

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CCSDForge/episciences-front-next-sub002/internal/tenant"
	"github.com/CCSDForge/episciences-front-next-sub002/pkg/config"
)

// Process exit codes of the rebuild CLI.
const (
	ExitOK         = 0
	ExitBuildError = 1
	ExitAPIError   = 2 // reserved for API-data errors
	ExitUsage      = 3
)

// connectivitySubstrings are scanned in build output; a match is
// re-emitted as an api_error diagnostic without changing the terminal
// classification.
var connectivitySubstrings = []string{"ECONNREFUSED", "ETIMEDOUT", "fetch failed"}

// Result is the terminal report of one executor run.
type Result struct {
	JobID      string
	Descriptor Descriptor
	Phase      Phase
	ExitCode   int
	OutputPath string
	Output     []string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Executor drives the external site-generation build for one resource:
// validate, load tenant env, derive the scoped targeting variable,
// spawn the build subprocess, classify its outcome.
type Executor struct {
	cfg     config.RebuildConfig
	tenants *tenant.ConfigLoader
	logger  *slog.Logger
}

// New constructs an Executor.
func New(cfg config.RebuildConfig, tenants *tenant.ConfigLoader, logger *slog.Logger) *Executor {
	if tenants == nil {
		tenants = tenant.NewConfigLoader(cfg.TenantEnvDir)
	}
	return &Executor{cfg: cfg, tenants: tenants, logger: logger}
}

// Run executes the full lifecycle for one descriptor. It always
// returns a Result; Err is set for any terminal failure.
func (e *Executor) Run(ctx context.Context, d Descriptor, emit Emitter) Result {
	if emit == nil {
		emit = EmitterFunc(func(Event) {})
	}
	res := Result{
		JobID:      uuid.NewString(),
		Descriptor: d,
		StartedAt:  time.Now().UTC(),
	}

	// Validating.
	e.transition(emit, &res, PhaseValidating, "validating rebuild request")
	if err := d.Validate(); err != nil {
		return e.fail(emit, &res, ExitUsage, err)
	}
	if !e.tenants.Exists(d.Journal) {
		return e.fail(emit, &res, ExitUsage,
			fmt.Errorf("tenant config not found for journal %q at %s", d.Journal, e.tenants.Path(d.Journal)))
	}

	// EnvLoading.
	e.transition(emit, &res, PhaseEnvLoading, "loading tenant environment")
	env, err := e.composeEnv(d)
	if err != nil {
		return e.fail(emit, &res, ExitUsage, err)
	}

	// Configuring.
	e.transition(emit, &res, PhaseConfigure, "deriving build scope")
	if key, value, ok := d.TargetEnv(); ok {
		env = append(env, key+"="+value)
	}

	// Executing.
	e.transition(emit, &res, PhaseExecuting, "spawning build process")
	return e.execute(ctx, d, env, emit, &res)
}

// composeEnv merges the tenant env file over the ambient process
// environment, then forces the journal identity keys.
func (e *Executor) composeEnv(d Descriptor) ([]string, error) {
	overrides, err := e.tenants.Load(d.Journal)
	if err != nil {
		return nil, err
	}
	env := os.Environ()
	for key, value := range overrides {
		env = append(env, key+"="+value)
	}
	env = append(env,
		EnvJournalCode+"="+d.Journal,
		EnvJournalRVCode+"="+d.Journal,
	)
	return env, nil
}

func (e *Executor) execute(ctx context.Context, d Descriptor, env []string, emit Emitter, res *Result) Result {
	name, args, err := splitCommand(e.cfg.BuildCommand)
	if err != nil {
		return e.processError(emit, res, err)
	}
	if e.cfg.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.BuildTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	cmd.Dir = e.cfg.SiteDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return e.processError(emit, res, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return e.processError(emit, res, err)
	}
	if err := cmd.Start(); err != nil {
		return e.processError(emit, res, err)
	}

	capture := newLineBuffer(e.cfg.CaptureLines)
	var wg sync.WaitGroup
	wg.Add(2)
	go e.scanOutput(stdout, emit, res, capture, true, &wg)
	go e.scanOutput(stderr, emit, res, capture, false, &wg)
	wg.Wait()

	waitErr := cmd.Wait()
	res.Output = capture.Lines()
	res.FinishedAt = time.Now().UTC()

	if waitErr == nil {
		res.Phase = PhaseSucceeded
		res.ExitCode = ExitOK
		res.OutputPath = d.OutputPath(e.cfg.OutputRoot)
		code := 0
		emit.Emit(Event{
			Type:       TypeBuildSuccess,
			Phase:      PhaseSucceeded,
			JobID:      res.JobID,
			Journal:    d.Journal,
			Message:    "build completed for " + d.Label(),
			OutputPath: res.OutputPath,
			ExitCode:   &code,
			Timestamp:  time.Now().UTC(),
		})
		if e.logger != nil {
			e.logger.Info("build succeeded", "job_id", res.JobID, "resource", d.Label(), "output", res.OutputPath)
		}
		return *res
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code := -1
		if exitErr != nil {
			code = exitErr.ExitCode()
		}
		res.Phase = PhaseFailed
		res.ExitCode = ExitBuildError
		res.Err = fmt.Errorf("build failed for %s: %w", d.Label(), waitErr)
		emit.Emit(Event{
			Type:      TypeBuildFailed,
			Phase:     PhaseFailed,
			JobID:     res.JobID,
			Journal:   d.Journal,
			Message:   res.Err.Error(),
			ExitCode:  &code,
			Timestamp: time.Now().UTC(),
		})
		if e.logger != nil {
			e.logger.Error("build failed", "job_id", res.JobID, "resource", d.Label(), "exit_code", code)
		}
		return *res
	}
	return e.processError(emit, res, waitErr)
}

func (e *Executor) scanOutput(r io.Reader, emit Emitter, res *Result, capture *lineBuffer, isStdout bool, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		capture.Append(line)
		emit.Emit(Event{
			Type:      TypeLog,
			Phase:     PhaseExecuting,
			JobID:     res.JobID,
			Journal:   res.Descriptor.Journal,
			Line:      line,
			Timestamp: time.Now().UTC(),
		})
		if isStdout && isConnectivityFailure(line) {
			emit.Emit(Event{
				Type:      TypeAPIError,
				Phase:     PhaseExecuting,
				JobID:     res.JobID,
				Journal:   res.Descriptor.Journal,
				Message:   "connectivity failure detected in build output",
				Line:      line,
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

func (e *Executor) transition(emit Emitter, res *Result, phase Phase, msg string) {
	res.Phase = phase
	emit.Emit(Event{
		Type:      TypePhase,
		Phase:     phase,
		JobID:     res.JobID,
		Journal:   res.Descriptor.Journal,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	})
}

func (e *Executor) fail(emit Emitter, res *Result, exitCode int, err error) Result {
	res.Phase = PhaseFailed
	res.ExitCode = exitCode
	res.Err = err
	res.FinishedAt = time.Now().UTC()
	emit.Emit(Event{
		Type:      TypePhase,
		Phase:     PhaseFailed,
		JobID:     res.JobID,
		Journal:   res.Descriptor.Journal,
		Message:   err.Error(),
		ExitCode:  &exitCode,
		Timestamp: time.Now().UTC(),
	})
	if e.logger != nil {
		e.logger.Error("rebuild rejected", "job_id", res.JobID, "resource", res.Descriptor.Label(), "error", err)
	}
	return *res
}

// processError reports a failure of the spawn mechanism itself,
// distinct from a nonzero build exit.
func (e *Executor) processError(emit Emitter, res *Result, err error) Result {
	res.Phase = PhaseFailed
	res.ExitCode = ExitBuildError
	res.Err = fmt.Errorf("build process error: %w", err)
	res.FinishedAt = time.Now().UTC()
	code := ExitBuildError
	emit.Emit(Event{
		Type:      TypeProcessError,
		Phase:     PhaseFailed,
		JobID:     res.JobID,
		Journal:   res.Descriptor.Journal,
		Message:   res.Err.Error(),
		ExitCode:  &code,
		Timestamp: time.Now().UTC(),
	})
	if e.logger != nil {
		e.logger.Error("build process error", "job_id", res.JobID, "error", err)
	}
	return *res
}

func isConnectivityFailure(line string) bool {
	for _, s := range connectivitySubstrings {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func splitCommand(command string) (string, []string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil, errors.New("build command is empty")
	}
	return fields[0], fields[1:], nil
}

// lineBuffer keeps the last n lines of build output.
type lineBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newLineBuffer(max int) *lineBuffer {
	if max <= 0 {
		max = 200
	}
	return &lineBuffer{max: max}
}

func (b *lineBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *lineBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
