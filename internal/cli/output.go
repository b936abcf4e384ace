package cli

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/kimhsiao/mastofy/internal/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The server or storage rejected the operation
	ExitCommandError = 2 // Bad arguments, missing login, invalid config
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// exitCodeFor maps an application error code to a process exit code.
func exitCodeFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrValidation, errors.ErrNotFound, errors.ErrAuthRequired,
		errors.ErrCredentialsMissing, errors.ErrConfig:
		return ExitCommandError
	default:
		return ExitFailure
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Prompts and verbose output, kept off the JSON stream
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`    // AppError code, e.g. "AUTH_REQUIRED"
	Message string `json:"message"` // human-readable message
}

// JSON reports whether output is machine-readable.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success outputs a successful result. text is printed in text mode and
// data is encoded in JSON mode.
func (f *OutputFormatter) Success(text string, data interface{}) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	if text != "" {
		fmt.Fprintln(f.Writer, text)
	}
	return nil
}

// Fail reports err in the configured format and returns the ExitError the
// command should exit with.
func (f *OutputFormatter) Fail(err error) error {
	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		f.writeError("COMMAND_ERROR", exitErr.Error())
		return exitErr
	}

	code := errors.CodeOf(err)
	message := errors.MessageOf(err)
	f.writeError(string(code), message)
	return WrapExitError(exitCodeFor(code), message, err)
}

func (f *OutputFormatter) writeError(code, message string) {
	if f.JSON() {
		_ = json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message},
		})
		return
	}
	fmt.Fprintf(f.errWriter(), "Error [%s]: %s\n", code, message)
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

// Prompt writes an interactive message to the diagnostic stream.
func (f *OutputFormatter) Prompt(format string, args ...interface{}) {
	fmt.Fprintf(f.errWriter(), format, args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
