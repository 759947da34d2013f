// Package artifact stores a lowered module on disk. The file is a single
// msgpack document carrying a header and the module tables.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"kiln/internal/lir"
	"kiln/internal/version"
)

// Schema is bumped whenever the encoded layout changes.
const Schema uint16 = 1

// Ext is the conventional file extension.
const Ext = ".klir"

var (
	ErrSchema  = errors.New("artifact: unsupported schema")
	ErrCorrupt = errors.New("artifact: corrupt module")
)

// Header describes an artifact without its body.
type Header struct {
	Schema   uint16
	BuildID  uuid.UUID
	Compiler string
	Module   string
	// Source is a digest of the tree the module was lowered from.
	Source string
}

type file struct {
	Header  Header
	Types   []lir.Type
	Funcs   []*lir.Func
	Strings []lir.StringConst
}

// NewHeader stamps a fresh build id for module m.
func NewHeader(m *lir.Module, sourceDigest string) Header {
	return Header{
		Schema:   Schema,
		BuildID:  uuid.New(),
		Compiler: version.Fingerprint(),
		Module:   m.Name,
		Source:   sourceDigest,
	}
}

// Encode writes m with header h.
func Encode(w io.Writer, m *lir.Module, h Header) error {
	h.Schema = Schema
	h.Module = m.Name
	enc := msgpack.NewEncoder(w)
	enc.SetOmitEmpty(true)
	enc.UseCompactInts(true)
	return enc.Encode(&file{Header: h, Types: m.Types.All(), Funcs: m.Funcs, Strings: m.Strings})
}

// Marshal is Encode into a byte slice.
func Marshal(m *lir.Module, h Header) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads an artifact and rebuilds its module.
func Decode(r io.Reader) (*lir.Module, Header, error) {
	var f file
	if err := msgpack.NewDecoder(r).Decode(&f); err != nil {
		return nil, Header{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if f.Header.Schema != Schema {
		return nil, f.Header, fmt.Errorf("%w %d (want %d)", ErrSchema, f.Header.Schema, Schema)
	}
	types, err := lir.RestoreTypes(f.Types)
	if err != nil {
		return nil, f.Header, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	for i, fn := range f.Funcs {
		if fn == nil {
			return nil, f.Header, fmt.Errorf("%w: function %d is empty", ErrCorrupt, i)
		}
		for j, b := range fn.Blocks {
			if b == nil {
				return nil, f.Header, fmt.Errorf("%w: %s: block %d is empty", ErrCorrupt, fn.Name, j)
			}
		}
	}
	m := lir.RestoreModule(f.Header.Module, types, f.Funcs, f.Strings)
	if err := lir.Validate(m); err != nil {
		return nil, f.Header, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return m, f.Header, nil
}

// Unmarshal is Decode from a byte slice.
func Unmarshal(data []byte) (*lir.Module, Header, error) {
	return Decode(bytes.NewReader(data))
}

// WriteFile writes the artifact through a temporary file in the same
// directory and renames it into place.
func WriteFile(path string, m *lir.Module, h Header) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()
	if err = Encode(f, m, h); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// ReadFile loads an artifact from path.
func ReadFile(path string) (*lir.Module, Header, error) {
	// #nosec G304 -- the artifact path is given by the caller
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}
