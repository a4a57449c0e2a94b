package api

import (
	"errors"
	"fmt"
)

// ServerNotFoundError indicates that no registry entry matched the
// requested identity. The zero Cwd means the lookup was by name only.
type ServerNotFoundError struct {
	Name string
	Cwd  string
}

func (e *ServerNotFoundError) Error() string {
	if e.Cwd != "" {
		return fmt.Sprintf("server %s not found in %s", e.Name, e.Cwd)
	}
	return fmt.Sprintf("server %s not found", e.Name)
}

// NewServerNotFoundError creates a ServerNotFoundError for the given
// identity.
func NewServerNotFoundError(name, cwd string) *ServerNotFoundError {
	return &ServerNotFoundError{Name: name, Cwd: cwd}
}

// IsServerNotFound checks if an error is a ServerNotFoundError using
// error unwrapping.
func IsServerNotFound(err error) bool {
	var notFound *ServerNotFoundError
	return errors.As(err, &notFound)
}

// PortOutOfRangeError indicates an explicitly requested port lies
// outside the configured port range.
type PortOutOfRangeError struct {
	Port int
	Min  int
	Max  int
}

func (e *PortOutOfRangeError) Error() string {
	return fmt.Sprintf("port %d is outside the configured range %d-%d", e.Port, e.Min, e.Max)
}

func NewPortOutOfRangeError(port, min, max int) *PortOutOfRangeError {
	return &PortOutOfRangeError{Port: port, Min: min, Max: max}
}

func IsPortOutOfRange(err error) bool {
	var outOfRange *PortOutOfRangeError
	return errors.As(err, &outOfRange)
}

// PortAllocationFailedError indicates the entire configured port range
// was probed and no port was available. This is terminal for the
// invocation; retrying without freeing ports cannot succeed.
type PortAllocationFailedError struct {
	Min int
	Max int
}

func (e *PortAllocationFailedError) Error() string {
	return fmt.Sprintf("no available port in range %d-%d", e.Min, e.Max)
}

func NewPortAllocationFailedError(min, max int) *PortAllocationFailedError {
	return &PortAllocationFailedError{Min: min, Max: max}
}

func IsPortAllocationFailed(err error) bool {
	var failed *PortAllocationFailedError
	return errors.As(err, &failed)
}

// MissingVariableError indicates a template placeholder could not be
// resolved. Rendering is all-or-nothing, so the presence of this error
// means no substitution was applied at all.
type MissingVariableError struct {
	// Variables lists every unresolvable placeholder found in the
	// template, not just the first one.
	Variables []string
	Template  string
}

func (e *MissingVariableError) Error() string {
	if len(e.Variables) == 1 {
		return fmt.Sprintf("template references undefined variable {{%s}}", e.Variables[0])
	}
	return fmt.Sprintf("template references %d undefined variables: %v", len(e.Variables), e.Variables)
}

func NewMissingVariableError(template string, variables []string) *MissingVariableError {
	return &MissingVariableError{Template: template, Variables: variables}
}

func IsMissingVariable(err error) bool {
	var missing *MissingVariableError
	return errors.As(err, &missing)
}

// RegistryCorruptError indicates the persisted registry file could not
// be parsed or failed schema validation. Callers recover locally by
// treating the registry as empty; this error is logged, never fatal.
type RegistryCorruptError struct {
	Path string
	Err  error
}

func (e *RegistryCorruptError) Error() string {
	return fmt.Sprintf("registry file %s is corrupt: %v", e.Path, e.Err)
}

func (e *RegistryCorruptError) Unwrap() error {
	return e.Err
}

func NewRegistryCorruptError(path string, err error) *RegistryCorruptError {
	return &RegistryCorruptError{Path: path, Err: err}
}

func IsRegistryCorrupt(err error) bool {
	var corrupt *RegistryCorruptError
	return errors.As(err, &corrupt)
}

// ConfigValidationError indicates a required configurable variable has
// no value and the invocation context cannot prompt for one (for
// example a non-interactive CI run).
type ConfigValidationError struct {
	Variable  string
	ConfigKey string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("variable {{%s}} has no value; set it with: devfleet config set %s <value>", e.Variable, e.ConfigKey)
}

func NewConfigValidationError(variable, configKey string) *ConfigValidationError {
	return &ConfigValidationError{Variable: variable, ConfigKey: configKey}
}

func IsConfigValidation(err error) bool {
	var invalid *ConfigValidationError
	return errors.As(err, &invalid)
}

// DuplicateServerError indicates an attempt to register an entry whose
// (cwd, name) identity is already taken.
type DuplicateServerError struct {
	Name string
	Cwd  string
}

func (e *DuplicateServerError) Error() string {
	return fmt.Sprintf("server %s already exists in %s", e.Name, e.Cwd)
}

func NewDuplicateServerError(name, cwd string) *DuplicateServerError {
	return &DuplicateServerError{Name: name, Cwd: cwd}
}

func IsDuplicateServer(err error) bool {
	var dup *DuplicateServerError
	return errors.As(err, &dup)
}
