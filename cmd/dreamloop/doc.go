// Command dreamloop runs the deepdream ingest daemon and the looping frame
// server, and offers inspection commands for their shared state directory.
//
// Usage:
//
//	dreamloop ingest [--metrics-bind addr]
//	dreamloop serve [--bind addr] [--fps n]
//	dreamloop status
//	dreamloop history [--limit n]
//	dreamloop check
//	dreamloop config init|validate
package main
