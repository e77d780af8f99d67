// Package procexec invokes strategies as bounded-duration subprocesses.
package procexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/automaton/internal/ports/secondary"
)

const (
	// DefaultTimeout bounds one strategy invocation.
	DefaultTimeout = 120 * time.Second

	outputTailBytes = 2000
)

// Invoker implements secondary.StrategyInvoker by running the strategy
// entrypoint as a subprocess in its own directory.
type Invoker struct {
	Timeout time.Duration
	Python  string // interpreter for .py entrypoints, default "python3"
	Log     *logrus.Logger
}

// NewInvoker creates an invoker with the given per-invocation timeout.
func NewInvoker(timeout time.Duration, log *logrus.Logger) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.New()
	}
	return &Invoker{Timeout: timeout, Python: "python3", Log: log}
}

// report is the structured result a strategy may print as its last
// JSON stdout line. Absent or unparseable reports mean zero cost.
type report struct {
	CostUSD float64 `json:"cost_usd"`
	Detail  string  `json:"detail"`
}

// Invoke runs one strategy. A timeout or a non-zero exit is a failed
// play with zero cost; it never propagates as an error, keeping
// per-strategy failures isolated from siblings in the same cycle.
func (iv *Invoker) Invoke(ctx context.Context, m secondary.StrategyManifest, mode secondary.InvokeMode, quiet bool) secondary.InvocationResult {
	ctx, cancel := context.WithTimeout(ctx, iv.Timeout)
	defer cancel()

	name, args := iv.command(m)
	if mode == secondary.ModeLive {
		args = append(args, "--live")
	}
	if quiet {
		args = append(args, "--quiet")
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = m.Dir
	cmd.Env = append(os.Environ(), "AUTOMATON_MANAGED=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Round(time.Millisecond)

	if ctx.Err() == context.DeadlineExceeded {
		iv.Log.WithFields(logrus.Fields{"strategy": m.ID, "elapsed": elapsed}).Warn("strategy invocation timed out")
		return secondary.InvocationResult{
			Succeeded: false,
			Detail:    fmt.Sprintf("timeout after %s", iv.Timeout),
		}
	}

	rep := parseReport(stdout.Bytes())

	if err != nil {
		detail := firstLine(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		iv.Log.WithFields(logrus.Fields{"strategy": m.ID, "elapsed": elapsed, "error": detail}).Warn("strategy invocation failed")
		return secondary.InvocationResult{Succeeded: false, Detail: detail}
	}

	detail := rep.Detail
	if detail == "" {
		detail = tail(stdout.String(), outputTailBytes)
	}
	iv.Log.WithFields(logrus.Fields{
		"strategy": m.ID,
		"mode":     mode,
		"cost_usd": rep.CostUSD,
		"elapsed":  elapsed,
	}).Info("strategy invocation complete")

	return secondary.InvocationResult{CostUSD: rep.CostUSD, Succeeded: true, Detail: detail}
}

// command maps the entrypoint to an executable invocation: .py files run
// under the Python interpreter, anything else executes directly.
func (iv *Invoker) command(m secondary.StrategyManifest) (string, []string) {
	if strings.HasSuffix(m.Entrypoint, ".py") {
		return iv.Python, []string{m.Entrypoint}
	}
	return filepath.Join(m.Dir, m.Entrypoint), nil
}

// parseReport scans stdout bottom-up for the last line that parses as a
// strategy report.
func parseReport(out []byte) report {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var rep report
		if json.Unmarshal(line, &rep) == nil {
			return rep
		}
	}
	return report{}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

// Ensure Invoker implements the interface
var _ secondary.StrategyInvoker = (*Invoker)(nil)
