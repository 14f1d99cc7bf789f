package fragments

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes reported by the loader.
const (
	CodeGeneric   = "E001"
	CodeScan      = "E002"
	CodeNoFiles   = "E003"
	CodeParse     = "E004"
	CodeNotFound  = "E005"
	CodeInvalid   = "E006"
	CodeUndecoded = "E007"
)

// Error is a fragment that could not be loaded, with its CUE position
// when one is known.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// cueErrors converts a CUE error into one Error per underlying problem.
func cueErrors(code string, err error) []error {
	var out []error
	for _, e := range errors.Errors(err) {
		fe := &Error{Code: code, Message: e.Error()}
		if pos := errors.Positions(e); len(pos) > 0 {
			fe.Pos = pos[0]
		}
		out = append(out, fe)
	}
	if len(out) == 0 {
		out = append(out, &Error{Code: code, Message: err.Error()})
	}
	return out
}
