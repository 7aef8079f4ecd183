package vectordb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSource reads snapshots from <Root>/<jurisdiction>/<index>.json.
type FileSource struct {
	Root string
}

func (s *FileSource) Jurisdictions(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("read snapshot root %s: %w", s.Root, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && e.Name()[0] != '.' {
			out = append(out, e.Name())
		}
	}
	return sortedUnique(out), nil
}

func (s *FileSource) Indexes(_ context.Context, jurisdiction string) ([]string, error) {
	if jurisdiction == "" || filepath.Base(jurisdiction) != jurisdiction {
		return nil, fmt.Errorf("%w %q", ErrUnknownJurisdiction, jurisdiction)
	}
	entries, err := os.ReadDir(s.dir(jurisdiction))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w %q", ErrUnknownJurisdiction, jurisdiction)
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := indexNameFromFile(e.Name()); ok {
			out = append(out, name)
		}
	}
	return sortedUnique(out), nil
}

func (s *FileSource) Open(_ context.Context, jurisdiction, index string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.dir(jurisdiction), index+".json"))
}

func (s *FileSource) dir(jurisdiction string) string {
	return filepath.Join(s.Root, jurisdiction)
}
