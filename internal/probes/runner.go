package probes

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/prakashgbid/confledger/internal/pkg/logger"
	"github.com/prakashgbid/confledger/internal/pkg/metrics"
)

// Scenario is one externally-supplied probe: a command to execute with a
// timeout. The runner measures it; it does not decide what to run.
type Scenario struct {
	Name    string        `json:"name"`
	Command string        `json:"command"`
	Timeout time.Duration `json:"timeout"`
}

// Measurement holds what one probe run reported
type Measurement struct {
	Name           string        `json:"name"`
	Duration       time.Duration `json:"duration"`
	ResponseTimeMs float64       `json:"response_time_ms"`
	MemoryMB       float64       `json:"memory_mb"`
	CPUPercent     float64       `json:"cpu_percent"`
	Throughput     float64       `json:"throughput"` // output bytes per second
	ExitCode       int           `json:"exit_code"`
	TimedOut       bool          `json:"timed_out"`
	Err            error         `json:"-"`
}

// Runner executes scenario probes inside a workspace with a hard timeout.
// A probe that exceeds its timeout is killed and reported as an error.
type Runner struct {
	defaultTimeout time.Duration
	logger         *logger.Logger
}

// NewRunner creates a new probe runner
func NewRunner(defaultTimeout time.Duration, log *logger.Logger) *Runner {
	return &Runner{
		defaultTimeout: defaultTimeout,
		logger:         log,
	}
}

// Run executes a single scenario in dir with extra environment overrides.
// The overrides are scoped to the probe process and vanish with it.
func (r *Runner) Run(ctx context.Context, scenario Scenario, dir string, env []string) Measurement {
	timeout := scenario.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", scenario.Command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)

	// The probe runs in its own process group and the whole group is killed
	// on timeout. Killing only the shell would leave children holding the
	// output pipe, and Wait would block until they exit on their own.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	m := Measurement{
		Name:           scenario.Name,
		Duration:       elapsed,
		ResponseTimeMs: float64(elapsed.Milliseconds()),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		m.TimedOut = true
		m.ExitCode = -1
		m.Err = fmt.Errorf("probe %s timed out after %s", scenario.Name, timeout)
		metrics.RecordProbe(scenario.Name, "timeout", elapsed.Seconds())
		r.logger.WithFields(map[string]interface{}{
			"probe":   scenario.Name,
			"timeout": timeout.String(),
		}).Warn("Probe killed on timeout")
		return m
	}

	if cmd.ProcessState != nil {
		m.ExitCode = cmd.ProcessState.ExitCode()
		m.CPUPercent = cpuPercent(cmd.ProcessState, elapsed)
		m.MemoryMB = maxRSSMegabytes(cmd.ProcessState)
	}
	if elapsed > 0 {
		m.Throughput = float64(output.Len()) / elapsed.Seconds()
	}

	if err != nil {
		m.Err = fmt.Errorf("probe %s exited non-zero: %w", scenario.Name, err)
		metrics.RecordProbe(scenario.Name, "error", elapsed.Seconds())
		return m
	}

	metrics.RecordProbe(scenario.Name, "ok", elapsed.Seconds())
	return m
}

func cpuPercent(state *os.ProcessState, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	cpu := state.UserTime() + state.SystemTime()
	return float64(cpu) / float64(elapsed) * 100
}

func maxRSSMegabytes(state *os.ProcessState) float64 {
	rusage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	// Maxrss is kilobytes on Linux
	return float64(rusage.Maxrss) / 1024
}
