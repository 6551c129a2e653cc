package infra

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/shellmon/shellmon/internal/domain"
)

// PyCompileValidator implements domain.PayloadValidator by byte-compiling
// the payload with the worker's interpreter. Validation is best-effort:
// when the interpreter is not resolvable on this host, the check is
// skipped rather than failed.
type PyCompileValidator struct {
	interpreter string
}

// NewPyCompileValidator creates a validator using the given interpreter.
func NewPyCompileValidator(interpreter string) *PyCompileValidator {
	return &PyCompileValidator{interpreter: interpreter}
}

// Validate compiles path with `<interpreter> -m py_compile`.
func (v *PyCompileValidator) Validate(path string) error {
	bin, err := exec.LookPath(v.interpreter)
	if err != nil {
		return nil // No checker available; skip
	}

	cmd := exec.Command(bin, "-m", "py_compile", path)
	cmd.Env = append(cmd.Environ(), "PYTHONDONTWRITEBYTECODE=1")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("payload failed syntax check: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// Ensure PyCompileValidator implements domain.PayloadValidator.
var _ domain.PayloadValidator = (*PyCompileValidator)(nil)
