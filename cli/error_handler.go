package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/grovetools/rex/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints a message for err based on its code and returns err.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	out := h.Out
	if out == nil {
		out = os.Stderr
	}
	t := NewTheme(out)
	fail := func(format string, args ...interface{}) {
		fmt.Fprintf(out, "%s %s\n", t.Error.Render("❌"), fmt.Sprintf(format, args...))
	}
	hint := func(format string, args ...interface{}) {
		fmt.Fprintln(out, t.Muted.Render(fmt.Sprintf(format, args...)))
	}

	var rexErr *errors.RexError
	stderrors.As(err, &rexErr)
	detail := func(key string) interface{} {
		if rexErr == nil {
			return nil
		}
		return rexErr.Details[key]
	}
	var cause error = err
	if rexErr != nil && rexErr.Cause != nil {
		cause = rexErr.Cause
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fail("Configuration not found at %v", detail("path"))
		hint("Run 'rex conf' to write a sample configuration.")

	case errors.ErrCodeConfigInvalid:
		fail("Invalid configuration: %v", err)

	case errors.ErrCodeNoSession:
		fail("No rex session in this directory")
		hint("Run 'rex init' to create one.")

	case errors.ErrCodeInstanceNotFound:
		fail("Instance %v not found (%v configured)", detail("index"), detail("available"))
		hint("Run 'rex instance list' to see configured instances.")

	case errors.ErrCodeInstanceInactive:
		fail("Instance %v did not answer", detail("instance"))
		hint("Check the host address and the credentials.")

	case errors.ErrCodeInstanceDuplicate:
		fail("Instance %v is already configured", detail("instance"))

	case errors.ErrCodeTransport:
		fail("Could not %v on the host: %v", detail("op"), cause)
		hint("Session state was not modified.")

	case errors.ErrCodeLaunchFailed:
		fail("Could not launch %v: %v", detail("name"), cause)
		hint("Session state was not modified.")

	case errors.ErrCodeStateLocked:
		fail("Another rex command is using this session")
		hint("Wait for it to finish and try again.")

	case errors.ErrCodeReconciliationMismatch:
		fail("Could not parse the remote process listing near %q", detail("line"))
		hint("Set 'tolerant_reconcile: true' to treat an unparsable listing as empty.")

	default:
		fail("Error: %v", err)
	}

	if h.Verbose && rexErr != nil {
		fmt.Fprintf(out, "\nError details:\n%s\n", rexErr.ToJSON())
	}
	return err
}
