package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/veriface/veriface/internal/core"
	"github.com/veriface/veriface/internal/domain"
)

// FileSource loads the identity document from disk exactly once, before the
// session starts. An empty path reports ErrMissingDocument so the session
// fails before any media is acquired.
type FileSource struct {
	path string

	once sync.Once
	doc  domain.IdentityDocument
	err  error
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Document() (domain.IdentityDocument, error) {
	s.once.Do(func() {
		if s.path == "" {
			s.err = core.ErrMissingDocument
			return
		}
		data, err := os.ReadFile(s.path)
		if err != nil {
			s.err = fmt.Errorf("%w: %v", core.ErrMissingDocument, err)
			return
		}
		s.doc = domain.IdentityDocument{
			Name: filepath.Base(s.path),
			Data: data,
		}
	})
	return s.doc, s.err
}
