package secondary

import "context"

// InvokeMode selects between effecting and non-effecting execution.
type InvokeMode string

const (
	ModeLive   InvokeMode = "live"
	ModeDryRun InvokeMode = "dry_run"
)

// InvocationResult is what a strategy reports back from one invocation.
// A failed or timed-out invocation still counts as a play; its cost
// defaults to zero.
type InvocationResult struct {
	CostUSD   float64
	Succeeded bool
	Detail    string
}

// StrategyInvoker defines the secondary port for executing a strategy.
// Strategies are polymorphic over this single capability; the
// orchestrator never depends on any strategy's internal behavior.
// Invoke never returns an error: every failure mode is expressed in the
// result so per-strategy failures stay isolated from sibling strategies.
type StrategyInvoker interface {
	Invoke(ctx context.Context, m StrategyManifest, mode InvokeMode, quiet bool) InvocationResult
}
