// Package naming derives output file paths for recordings.
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TimestampLayout formats recording start times as yyyy-MM-dd_HH-mm-ss
const TimestampLayout = "2006-01-02_15-04-05"

const (
	DefaultPrefix    = "MiniDV"
	DefaultExtension = "mov"
)

// FileName returns <prefix>-<timestamp>.<ext>
func FileName(prefix string, ts time.Time, ext string) string {
	return fmt.Sprintf("%s-%s.%s", prefix, ts.Format(TimestampLayout), strings.TrimPrefix(ext, "."))
}

// Generator hands out recording paths that never repeat.
//
// Names have whole-second resolution. A second start within the same second,
// or a name already present on disk, gets a -2, -3, ... suffix.
type Generator struct {
	mu        sync.Mutex
	prefix    string
	extension string
	issued    map[string]struct{}
	exists    func(path string) bool
}

// NewGenerator creates a generator; empty values fall back to the defaults
func NewGenerator(prefix, extension string) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if extension == "" {
		extension = DefaultExtension
	}
	return &Generator{
		prefix:    prefix,
		extension: strings.TrimPrefix(extension, "."),
		issued:    make(map[string]struct{}),
		exists:    fileExists,
	}
}

// NextPath returns a fresh path under dir for a recording started at ts
func (g *Generator) NextPath(dir string, ts time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	base := g.prefix + "-" + ts.Format(TimestampLayout)
	path := filepath.Join(dir, base+"."+g.extension)
	for n := 2; g.taken(path); n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s-%d.%s", base, n, g.extension))
	}

	g.issued[path] = struct{}{}
	return path
}

func (g *Generator) taken(path string) bool {
	if _, ok := g.issued[path]; ok {
		return true
	}
	return g.exists(path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
