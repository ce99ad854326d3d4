package video

import (
	"path/filepath"
	"testing"
)

func TestOpenFileMissing(t *testing.T) {

	path := filepath.Join(t.TempDir(), "missing.mp4")

	if src, err := OpenFile(path, true); err == nil {
		src.Close()
		t.Errorf("OpenFile succeeded for a missing file")
	}
}
