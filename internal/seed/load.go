package seed

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/saga/internal/event"
)

//go:embed schema.cue
var schemaSource string

// Format is a seed file encoding.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Error codes reported in LoadError.
const (
	ErrCodeNotFound = "S001" // seed file missing or unreadable
	ErrCodeFormat   = "S002" // unsupported extension
	ErrCodeParse    = "S003" // syntax error
	ErrCodeSchema   = "S004" // schema violation
	ErrCodeInvalid  = "S005" // cross-field rule violation
)

// LoadError describes why a seed could not be loaded.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported seed file %s", path)}
	}
}

// Load reads and validates a seed file.
func Load(path string) (Seed, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Seed{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	}
	return Parse(data, format, path)
}

// Parse validates data against the seed schema and decodes it. name is
// used in error positions.
func Parse(data []byte, format Format, name string) (Seed, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Seed{}, fmt.Errorf("compile seed schema: %w", err)
	}

	var value cue.Value
	switch format {
	case FormatCUE, FormatJSON:
		// JSON is a subset of CUE.
		value = ctx.CompileBytes(data, cue.Filename(name))
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Seed{}, &LoadError{Code: ErrCodeParse, Message: err.Error()}
		}
		value = ctx.Encode(doc)
	default:
		return Seed{}, &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported seed format %q", format)}
	}
	if err := value.Err(); err != nil {
		return Seed{}, cueError(ErrCodeParse, err)
	}

	value = schema.LookupPath(cue.ParsePath("#Seed")).Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return Seed{}, cueError(ErrCodeSchema, err)
	}

	raw, err := value.MarshalJSON()
	if err != nil {
		return Seed{}, cueError(ErrCodeSchema, err)
	}
	var s Seed
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&s); err != nil {
		return Seed{}, &LoadError{Code: ErrCodeSchema, Message: err.Error()}
	}
	for k, v := range s.Flags {
		s.Flags[k] = event.NormalizeValue(v)
	}

	if err := s.check(); err != nil {
		return Seed{}, &LoadError{Code: ErrCodeInvalid, Message: err.Error()}
	}
	return s, nil
}

func cueError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: cueerrors.Details(err, nil)}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Message = errs[0].Error()
		le.Pos = errs[0].Position()
	}
	return le
}
