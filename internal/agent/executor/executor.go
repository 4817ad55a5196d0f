// Package executor owns the lifecycle of agent CLI processes.
//
// One process runs per active (app, chat) execution. The executor resolves
// the conversation workspace, projects credentials, builds the command line,
// spawns the agent in its own process group, streams output, and keeps a live
// handle so approval responses can be injected into the process's stdin while
// it runs.
//
// Autonomous runs request resumption of the latest session. When the agent
// reports that no resumable session exists, the run is retried exactly once
// without the resume arguments.
package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentsocial/agentsocial/internal/agent/invocation"
	"github.com/agentsocial/agentsocial/internal/agent/registry"
	apperrors "github.com/agentsocial/agentsocial/internal/common/errors"
	"github.com/agentsocial/agentsocial/internal/common/logger"
	"github.com/agentsocial/agentsocial/internal/workspace"
	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

const (
	// bufferMaxBytes bounds captured output per stream.
	bufferMaxBytes = 2 * 1024 * 1024

	// killGracePeriod is how long a terminated process group gets to exit
	// after SIGTERM before SIGKILL.
	killGracePeriod = 2 * time.Second
)

// RunRequest describes one supervised agent run.
type RunRequest struct {
	AppID       string
	ChatID      string
	Mode        v1.RunMode
	Command     string
	ProjectRoot string

	// OnOutput receives raw output chunks as they arrive. stream is
	// "stdout" or "stderr".
	OnOutput func(stream, data string)

	// OnNotify receives proactive notification payloads extracted from
	// marked stdout lines.
	OnNotify func(message string)

	// OnApprovalPrompt receives sensitive-operation approval requests
	// extracted from marked stdout lines. The answer comes back through
	// Respond.
	OnApprovalPrompt func(prompt string)
}

// ExecutionResult is the in-band outcome of a finished run. A non-zero exit
// code is a result, not an error; errors are reserved for failures to run at
// all.
type ExecutionResult struct {
	Output   string
	Stderr   string
	ExitCode int
	Retried  bool
	Duration time.Duration
}

// Success reports whether the run exited cleanly.
func (r *ExecutionResult) Success() bool {
	return r.ExitCode == 0
}

// processHandle tracks one live agent process.
type processHandle struct {
	appID     string
	chatID    string
	mode      v1.RunMode
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	startedAt time.Time

	// exited closes once cmd.Wait has returned.
	exited chan struct{}

	mu sync.Mutex // serializes stdin writes
}

// EnvCredentials supplies API credentials for the spawned environment.
type EnvCredentials interface {
	Collect() map[string]string
}

// Executor spawns and supervises agent CLI processes.
type Executor struct {
	profile        *registry.Profile
	workspaces     *workspace.Resolver
	credentials    *workspace.Projector
	envCredentials EnvCredentials
	maxRunDuration time.Duration
	logger         *logger.Logger

	mu      sync.RWMutex
	handles map[string]*processHandle
}

// New creates an Executor for one agent profile.
//
// credentials may be nil, in which case no artifacts are projected.
// maxRunDuration bounds each run; zero disables the bound.
func New(profile *registry.Profile, workspaces *workspace.Resolver, credentials *workspace.Projector, maxRunDuration time.Duration, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.Default()
	}
	return &Executor{
		profile:        profile,
		workspaces:     workspaces,
		credentials:    credentials,
		maxRunDuration: maxRunDuration,
		logger:         log.WithFields(zap.String("component", "executor")),
		handles:        make(map[string]*processHandle),
	}
}

// UseEnvCredentials registers a credential source merged into every spawned
// process environment. Call before the first Run.
func (e *Executor) UseEnvCredentials(src EnvCredentials) {
	e.envCredentials = src
}

func handleKey(appID, chatID string) string {
	return appID + ":" + chatID
}

// Run executes one agent invocation to completion and returns its result.
// It blocks for the duration of the run; serialization per conversation is
// the queue's job, not the executor's.
func (e *Executor) Run(ctx context.Context, req RunRequest) (*ExecutionResult, error) {
	if req.AppID == "" || req.ChatID == "" {
		return nil, apperrors.BadRequest("app and chat identifiers are required")
	}

	ws, err := e.workspaces.Resolve(req.AppID, req.ChatID)
	if err != nil {
		return nil, err
	}
	if e.credentials != nil {
		if err := e.credentials.Project(ws); err != nil {
			// Best effort: the agent surfaces its own auth errors.
			e.logger.Warn("credential projection failed",
				zap.String("workspace", ws), zap.Error(err))
		}
	}

	resume := req.Mode == v1.RunModeAuto
	buildReq := invocation.Request{
		Profile:      e.profile,
		Mode:         req.Mode,
		Command:      req.Command,
		WorkspaceDir: ws,
		ProjectRoot:  req.ProjectRoot,
		Resume:       resume,
	}

	result, err := e.runOnce(ctx, req, buildReq)
	if err != nil {
		return nil, err
	}

	// A resume miss is a failed exit whose stderr names the miss; a clean run
	// mentioning a signature must not be executed twice.
	if resume && !result.Success() && containsAny(result.Stderr, e.profile.ResumeMissSignatures) {
		e.logger.Info("session resume missed, retrying without resume",
			zap.String("app_id", req.AppID),
			zap.String("chat_id", req.ChatID))
		retried, err := e.runOnce(ctx, req, buildReq.WithoutResume())
		if err != nil {
			return nil, err
		}
		retried.Retried = true
		return retried, nil
	}

	return result, nil
}

func (e *Executor) runOnce(ctx context.Context, req RunRequest, buildReq invocation.Request) (*ExecutionResult, error) {
	inv, err := invocation.Build(buildReq)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if e.maxRunDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.maxRunDuration)
		defer cancel()
	}

	cmd := exec.Command(inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = e.buildEnv(req, buildReq.WorkspaceDir)
	// New process group so termination reaches the agent's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, apperrors.SpawnError(inv.Path, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.SpawnError(inv.Path, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, apperrors.SpawnError(inv.Path, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, apperrors.SpawnError(inv.Path, err)
	}

	handle := &processHandle{
		appID:     req.AppID,
		chatID:    req.ChatID,
		mode:      buildReq.Mode,
		cmd:       cmd,
		stdin:     stdin,
		startedAt: time.Now().UTC(),
		exited:    make(chan struct{}),
	}

	// Register before streaming starts so an approval response arriving on
	// the first output chunk already finds the handle.
	key := handleKey(req.AppID, req.ChatID)
	e.mu.Lock()
	e.handles[key] = handle
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.handles[key] == handle {
			delete(e.handles, key)
		}
		e.mu.Unlock()
	}()

	e.logger.Info("agent process started",
		zap.String("app_id", req.AppID),
		zap.String("chat_id", req.ChatID),
		zap.String("mode", string(buildReq.Mode)),
		zap.Int("pid", cmd.Process.Pid),
		zap.Bool("resume", buildReq.Resume))

	stdoutBuf := newBoundedBuffer(bufferMaxBytes)
	stderrBuf := newBoundedBuffer(bufferMaxBytes)

	scanner := newLineScanner(func(line string) {
		if payload, ok := extractMarker(line, e.profile.NotifyMarker); ok {
			if req.OnNotify != nil {
				req.OnNotify(payload)
			}
			return
		}
		if payload, ok := extractMarker(line, e.profile.ApprovalMarker); ok {
			if req.OnApprovalPrompt != nil {
				req.OnApprovalPrompt(payload)
			}
		}
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.readStream(stdout, "stdout", stdoutBuf, req.OnOutput, scanner)
	}()
	go func() {
		defer wg.Done()
		e.readStream(stderr, "stderr", stderrBuf, req.OnOutput, nil)
	}()

	// Watchdog terminates the process group on context expiry.
	go func() {
		select {
		case <-runCtx.Done():
			e.terminate(handle)
		case <-handle.exited:
		}
	}()

	wg.Wait()
	scanner.Flush()
	waitErr := cmd.Wait()
	close(handle.exited)

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				exitCode = status.ExitStatus()
			} else {
				exitCode = 1
			}
		} else {
			exitCode = 1
		}
	}

	result := &ExecutionResult{
		Output:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode,
		Duration: time.Since(handle.startedAt),
	}

	e.logger.Info("agent process exited",
		zap.String("app_id", req.AppID),
		zap.String("chat_id", req.ChatID),
		zap.String("mode", string(buildReq.Mode)),
		zap.Int("exit_code", exitCode),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Respond writes an approval token to the stdin of the live process for a
// conversation. It reports whether the input was delivered. A missing handle
// is a normal race with process completion, not an error.
func (e *Executor) Respond(appID, chatID, input string) bool {
	e.mu.RLock()
	handle, ok := e.handles[handleKey(appID, chatID)]
	e.mu.RUnlock()
	if !ok {
		e.logger.Debug("approval response dropped, no live process",
			zap.String("app_id", appID), zap.String("chat_id", chatID))
		return false
	}

	handle.mu.Lock()
	defer handle.mu.Unlock()
	if _, err := io.WriteString(handle.stdin, input+"\n"); err != nil {
		e.logger.Debug("approval response write failed",
			zap.String("app_id", appID), zap.String("chat_id", chatID), zap.Error(err))
		return false
	}
	return true
}

// Active reports whether a process is currently live for the conversation.
func (e *Executor) Active(appID, chatID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.handles[handleKey(appID, chatID)]
	return ok
}

// Snapshot returns the live executions for the status API.
func (e *Executor) Snapshot() []v1.ExecutionSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]v1.ExecutionSnapshot, 0, len(e.handles))
	for _, h := range e.handles {
		pid := 0
		if h.cmd.Process != nil {
			pid = h.cmd.Process.Pid
		}
		result = append(result, v1.ExecutionSnapshot{
			AppID:     h.appID,
			ChatID:    h.chatID,
			Mode:      h.mode,
			PID:       pid,
			StartedAt: h.startedAt,
		})
	}
	return result
}

// Dispose terminates every live process. Used on shutdown.
func (e *Executor) Dispose(ctx context.Context) {
	e.mu.RLock()
	handles := make([]*processHandle, 0, len(e.handles))
	for _, h := range e.handles {
		handles = append(handles, h)
	}
	e.mu.RUnlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		select {
		case <-ctx.Done():
			return
		default:
		}
		wg.Add(1)
		go func(h *processHandle) {
			defer wg.Done()
			e.terminate(h)
		}(h)
	}
	wg.Wait()
}

// terminate sends SIGTERM to the process group and escalates to SIGKILL
// after the grace period.
func (e *Executor) terminate(h *processHandle) {
	proc := h.cmd.Process
	if proc == nil {
		return
	}

	pgid, perr := syscall.Getpgid(proc.Pid)
	if perr == nil {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		_ = proc.Signal(syscall.SIGTERM)
	}

	select {
	case <-h.exited:
		return
	case <-time.After(killGracePeriod):
	}

	if perr == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	} else {
		_ = proc.Kill()
	}
}

func (e *Executor) readStream(reader io.ReadCloser, stream string, buf *boundedBuffer, onOutput func(string, string), scanner *lineScanner) {
	defer func() { _ = reader.Close() }()

	data := make([]byte, 4096)
	for {
		n, err := reader.Read(data)
		if n > 0 {
			chunk := string(data[:n])
			buf.append(chunk)
			if onOutput != nil {
				onOutput(stream, chunk)
			}
			if scanner != nil {
				scanner.Write(chunk)
			}
		}
		if err != nil {
			if err != io.EOF {
				e.logger.Debug("output read error",
					zap.String("stream", stream), zap.Error(err))
			}
			return
		}
	}
}

// buildEnv merges the parent environment with the profile's extras, the
// state-home redirection, and the conversation identity for the agent.
func (e *Executor) buildEnv(req RunRequest, workspaceDir string) []string {
	base := make(map[string]string)
	for _, entry := range os.Environ() {
		if eq := strings.IndexByte(entry, '='); eq >= 0 {
			base[entry[:eq]] = entry[eq+1:]
		}
	}

	if e.envCredentials != nil {
		for k, v := range e.envCredentials.Collect() {
			base[k] = v
		}
	}
	for k, v := range e.profile.ExtraEnv {
		base[k] = v
	}
	if e.profile.StateHomeEnv != "" {
		base[e.profile.StateHomeEnv] = workspaceDir
	}
	base["FEISHU_APP_ID"] = req.AppID
	base["FEISHU_CHAT_ID"] = req.ChatID

	merged := make([]string, 0, len(base))
	for k, v := range base {
		merged = append(merged, fmt.Sprintf("%s=%s", k, v))
	}
	return merged
}

// boundedBuffer accumulates stream output with a byte cap, evicting the
// oldest chunks once the cap is exceeded.
type boundedBuffer struct {
	mu       sync.Mutex
	maxBytes int
	size     int
	chunks   []string
}

func newBoundedBuffer(maxBytes int) *boundedBuffer {
	if maxBytes <= 0 {
		maxBytes = bufferMaxBytes
	}
	return &boundedBuffer{maxBytes: maxBytes}
}

func (b *boundedBuffer) append(chunk string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
	for b.size > b.maxBytes && len(b.chunks) > 0 {
		b.size -= len(b.chunks[0])
		b.chunks = b.chunks[1:]
	}
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.chunks, "")
}
