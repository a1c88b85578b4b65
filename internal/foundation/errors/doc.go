// Package errors provides the classified error primitives used across SiteBuilder.
//
// Every failure that aborts a build cycle is a ClassifiedError carrying one of
// the build categories:
//   - CategoryPlugin: a data-source or computation failure inside a plugin
//   - CategoryRender: the template engine (or a target generator) failed
//   - CategoryWrite: a filesystem failure while writing output or cache state
//   - CategoryCacheCorrupt: a stored cache payload could not be decoded
//
// Example usage:
//
//	err := errors.PluginError("fetch entries failed").
//		WithContext("plugin", "contentful").
//		WithCause(httpErr).
//		Build()
package errors
