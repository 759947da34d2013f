package source

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"fortio.org/safecast"
)

// FileSet owns the files referenced by spans of one compilation unit.
type FileSet struct {
	files []File
	index map[string]FileID // path -> id
}

// NewFileSet creates an empty FileSet.
func NewFileSet() *FileSet {
	return &FileSet{
		files: make([]File, 0, 4),
		index: make(map[string]FileID),
	}
}

// Add stores content under path and returns its id. Re-adding a path
// replaces the index entry but keeps older ids valid.
func (fs *FileSet) Add(path string, content []byte, flags FileFlags) FileID {
	n, err := safecast.Conv[uint32](len(fs.files))
	if err != nil {
		panic(fmt.Errorf("source: file count overflow: %w", err))
	}
	id := FileID(n)
	clean := filepath.ToSlash(filepath.Clean(path))
	fs.files = append(fs.files, File{
		ID:      id,
		Path:    clean,
		Content: content,
		LineIdx: buildLineIndex(content),
		Hash:    sha256.Sum256(content),
		Flags:   flags,
	})
	fs.index[clean] = id
	return id
}

// AddVirtual registers in-memory content.
func (fs *FileSet) AddVirtual(path string, content []byte) FileID {
	return fs.Add(path, content, FileVirtual)
}

// Load reads path from disk. A missing file is registered with FileMissing
// so spans into it still resolve to a path.
func (fs *FileSet) Load(path string) (FileID, error) {
	// #nosec G304 -- path comes from the syntax tree header
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs.Add(path, nil, FileMissing), nil
		}
		return 0, fmt.Errorf("source: read %s: %w", path, err)
	}
	return fs.Add(path, content, 0), nil
}

// Get returns the file for id, or nil when id is unknown.
func (fs *FileSet) Get(id FileID) *File {
	if fs == nil || int(id) >= len(fs.files) {
		return nil
	}
	return &fs.files[id]
}

// Lookup finds the latest file registered under path.
func (fs *FileSet) Lookup(path string) (FileID, bool) {
	id, ok := fs.index[filepath.ToSlash(filepath.Clean(path))]
	return id, ok
}

// Len returns the number of registered files.
func (fs *FileSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.files)
}

// Resolve converts a span into start and end line/column positions.
func (fs *FileSet) Resolve(span Span) (start, end LineCol) {
	f := fs.Get(span.File)
	if f == nil {
		return LineCol{Line: 1, Col: 1}, LineCol{Line: 1, Col: 1}
	}
	return toLineCol(f.LineIdx, span.Start), toLineCol(f.LineIdx, span.End)
}

// Line returns the 1-based line of f without its trailing newline.
func (f *File) Line(line uint32) string {
	if f == nil || line == 0 || len(f.Content) == 0 {
		return ""
	}
	start := 0
	if line > 1 {
		idx := int(line) - 2
		if idx >= len(f.LineIdx) {
			return ""
		}
		start = int(f.LineIdx[idx]) + 1
	}
	end := len(f.Content)
	if int(line)-1 < len(f.LineIdx) {
		end = int(f.LineIdx[line-1])
	}
	if start > end || start > len(f.Content) {
		return ""
	}
	return string(f.Content[start:end])
}

func buildLineIndex(content []byte) []uint32 {
	out := make([]uint32, 0, len(content)/32+1)
	for i, b := range content {
		if b == '\n' {
			out = append(out, uint32(i)) // #nosec G115 -- file sizes are bounded by uint32 spans
		}
	}
	return out
}

func toLineCol(lineIdx []uint32, off uint32) LineCol {
	// Первая позиция перевода строки, стоящая не раньше off, даёт номер строки.
	i := sort.Search(len(lineIdx), func(i int) bool { return lineIdx[i] >= off })
	lineStart := uint32(0)
	if i > 0 {
		lineStart = lineIdx[i-1] + 1
	}
	line, err := safecast.Conv[uint32](i + 1)
	if err != nil {
		line = ^uint32(0)
	}
	return LineCol{Line: line, Col: off - lineStart + 1}
}
