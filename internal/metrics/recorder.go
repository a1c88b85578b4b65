package metrics

import "time"

// ResultLabel enumerates plugin result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// BuildOutcomeLabel enumerates final build outcomes.
type BuildOutcomeLabel string

const (
	BuildOutcomeSuccess BuildOutcomeLabel = "success"
	BuildOutcomeFailed  BuildOutcomeLabel = "failed"
)

// TargetResultLabel enumerates per-target render results.
type TargetResultLabel string

const (
	TargetRendered TargetResultLabel = "rendered"
	TargetSkipped  TargetResultLabel = "skipped"
	TargetFailed   TargetResultLabel = "failed"
)

// Recorder defines observability hooks for build, plugin, target and cache metrics.
type Recorder interface {
	ObservePluginDuration(plugin string, d time.Duration)
	IncPluginResult(plugin string, result ResultLabel)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome BuildOutcomeLabel)
	IncTargetResult(result TargetResultLabel)
	IncCacheResult(key, state string) // state: hit|miss|expired|bypass|corrupt
	IncRebuild(trigger string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePluginDuration(string, time.Duration) {}
func (NoopRecorder) IncPluginResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)          {}
func (NoopRecorder) IncBuildOutcome(BuildOutcomeLabel)           {}
func (NoopRecorder) IncTargetResult(TargetResultLabel)           {}
func (NoopRecorder) IncCacheResult(string, string)               {}
func (NoopRecorder) IncRebuild(string)                           {}
