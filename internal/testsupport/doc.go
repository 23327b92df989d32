// Package testsupport provides fixtures shared by package tests: isolated
// configs rooted in t.TempDir, image files, and an opened journal.
package testsupport
