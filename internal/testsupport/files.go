package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"dreamloop/internal/imaging"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// EncodeImage returns a solid-colour image of the given size encoded in the
// format implied by name.
func EncodeImage(t testing.TB, name string, width, height int, r, g, b float32) []byte {
	t.Helper()

	pixels := imaging.NewPixels(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pixels.Set(x, y, r, g, b)
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, pixels, imaging.FormatForName(name), 95); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	return buf.Bytes()
}

// WriteImage writes a small solid-colour image to dir/name and returns its path.
func WriteImage(t testing.TB, dir, name string, r, g, b float32) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, EncodeImage(t, name, 4, 4, r, g, b), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
