// Package frames implements the consumer side of dreamloop: a ping-pong
// player over the images currently in the output directory.
//
// A Cycle walks a frame snapshot forward and then backward (A B C C B A) and
// repeats. Server owns one Cycle, rescans the directory after a full pass once
// the refresh interval has elapsed, and hands out one frame per call. Server
// is not safe for concurrent use; callers serialize access.
package frames
