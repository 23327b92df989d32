// Package stream publishes frame server output over HTTP.
//
// A Broadcaster is the only caller of the frame server: it pulls one frame per
// tick and fans it out to MJPEG subscribers and a latest-frame slot. The chi
// router serves the stream, single snapshots, a JSON status document, a health
// probe and prometheus metrics.
package stream
