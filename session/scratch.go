package session

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Scratch names the temp files of one pipeline run. Names are keyed by the
// session id so concurrent sessions never collide.
type Scratch struct {
	dir string
	id  string
}

func NewScratch(dir, id string) *Scratch {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Scratch{dir: dir, id: id}
}

func (s *Scratch) RawPath() string {
	return filepath.Join(s.dir, "relay-"+s.id+"-capture.webm")
}

func (s *Scratch) ConvertedPath() string {
	return filepath.Join(s.dir, "relay-"+s.id+"-converted.wav")
}

// WriteRaw stores the captured container bytes and returns their path.
func (s *Scratch) WriteRaw(data []byte) (string, error) {
	path := s.RawPath()
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", errors.Wrap(err, "create scratch dir")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", errors.Wrap(err, "write capture")
	}
	return path, nil
}

// Remove deletes every artifact. Missing files are not an error.
func (s *Scratch) Remove() error {
	var first error
	for _, path := range []string{s.RawPath(), s.ConvertedPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && first == nil {
			first = errors.Wrapf(err, "remove %s", path)
		}
	}
	return first
}
