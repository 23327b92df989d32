// Package metrics exposes prometheus collectors for the ingest loop and the
// frame server on a private registry. Collectors satisfies both the ingest and
// frames observer interfaces.
package metrics
