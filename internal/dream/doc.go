// Package dream adapts the external deep-learning transformation to the
// Transformer interface consumed by the ingest loop.
//
// CommandTransformer shells out to a configurable program, exchanging PNG
// files through a private temp directory; Passthrough returns its input
// unchanged for dry runs and tests. FromConfig picks one based on
// transform.mode.
package dream
