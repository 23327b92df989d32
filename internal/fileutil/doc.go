// Package fileutil holds the small filesystem helpers shared by the ingest
// loop and the frame server: marker-filtered directory listing in
// enumeration order and atomic write-then-rename.
package fileutil
