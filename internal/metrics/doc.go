// Package metrics provides build observability for SiteBuilder.
//
// Components receive a Recorder through injection and default to NoopRecorder,
// so metrics never need nil checks at call sites:
//
//	runner := pipeline.NewRunner().WithRecorder(recorder)
//
// When `watch.metrics_addr` is configured the CLI installs a PrometheusRecorder
// on a private registry and serves it with HTTPHandler.
package metrics
