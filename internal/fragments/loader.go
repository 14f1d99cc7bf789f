package fragments

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"
	"github.com/hack-pad/hackpadfs"

	"github.com/roach88/crate/internal/entity"
)

//go:embed schema.cue
var schemaSource string

// Fragment is one entity read from a fragment file.
type Fragment struct {
	Label  string
	Entity entity.Entity
	Pos    token.Pos
}

// LoadMode controls how errors are handled.
type LoadMode int

const (
	// FailFast stops at the first invalid file.
	FailFast LoadMode = iota
	// CollectAll loads every valid file and reports all errors.
	CollectAll
)

// Loader validates and decodes fragment files.
//
// Thread-safety: a Loader is not safe for concurrent use; CUE contexts
// are single-threaded.
type Loader struct {
	ctx      *cue.Context
	fragment cue.Value
}

// NewLoader compiles the embedded schema.
func NewLoader() (*Loader, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile fragment schema: %w", err)
	}
	return &Loader{ctx: ctx, fragment: schema.LookupPath(cue.ParsePath("#Fragment"))}, nil
}

// Parse validates one file and returns its entities ordered by kind and
// label.
func (l *Loader) Parse(name string, data []byte) ([]Fragment, []error) {
	v := l.ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, cueErrors(CodeParse, err)
	}
	v = l.fragment.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueErrors(CodeInvalid, err)
	}

	var out []Fragment
	var errs []error
	for _, kind := range entity.Kinds() {
		group := v.LookupPath(cue.MakePath(cue.Str(string(kind))))
		if !group.Exists() {
			continue
		}
		iter, err := group.Fields()
		if err != nil {
			errs = append(errs, cueErrors(CodeInvalid, err)...)
			continue
		}
		var frags []Fragment
		for iter.Next() {
			raw, err := iter.Value().MarshalJSON()
			if err != nil {
				errs = append(errs, cueErrors(CodeUndecoded, err)...)
				continue
			}
			e, err := entity.Decode(kind, raw)
			if err != nil {
				errs = append(errs, &Error{
					Code:    CodeUndecoded,
					Message: fmt.Sprintf("%s.%s: %v", kind, iter.Label(), err),
					Pos:     iter.Value().Pos(),
				})
				continue
			}
			frags = append(frags, Fragment{Label: iter.Label(), Entity: e, Pos: iter.Value().Pos()})
		}
		slices.SortFunc(frags, func(a, b Fragment) int {
			return strings.Compare(a.Label, b.Label)
		})
		out = append(out, frags...)
	}
	return out, errs
}

// LoadDir parses every .cue file under dir, in path order.
func (l *Loader) LoadDir(fsys hackpadfs.FS, dir string, mode LoadMode) ([]Fragment, []error) {
	info, err := hackpadfs.Stat(fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, []error{&Error{Code: CodeNotFound, Message: fmt.Sprintf("fragments directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&Error{Code: CodeNotFound, Message: fmt.Sprintf("error accessing fragments directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&Error{Code: CodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(fsys, dir)
	if err != nil {
		return nil, []error{&Error{Code: CodeScan, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&Error{Code: CodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	var out []Fragment
	var errs []error
	for _, file := range files {
		data, err := hackpadfs.ReadFile(fsys, file)
		if err != nil {
			errs = append(errs, &Error{Code: CodeScan, Message: fmt.Sprintf("read %s: %v", file, err)})
		} else {
			frags, ferrs := l.Parse(file, data)
			out = append(out, frags...)
			errs = append(errs, ferrs...)
		}
		if len(errs) > 0 && mode == FailFast {
			return out, errs
		}
	}
	return out, errs
}

// FindCUEFiles walks dir and returns every .cue file, sorted.
func FindCUEFiles(fsys hackpadfs.FS, dir string) ([]string, error) {
	var files []string
	entries, err := hackpadfs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		p := path.Join(dir, e.Name())
		if e.IsDir() {
			sub, err := FindCUEFiles(fsys, p)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
			continue
		}
		if path.Ext(p) == ".cue" {
			files = append(files, p)
		}
	}
	slices.Sort(files)
	return files, nil
}
