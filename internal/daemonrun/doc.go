// Package daemonrun wires configuration, logging, and the runtime packages
// into the two long-running dreamloop processes: the ingest daemon and the
// frame server.
package daemonrun
