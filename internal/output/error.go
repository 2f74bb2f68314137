package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// ErrorOutput represents a structured error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Cause      string            `json:"cause,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// NewErrorDetail flattens err for display. Errors that are not AgroErrors are
// reported as GENERAL_ERROR.
func NewErrorDetail(err error) ErrorDetail {
	var ae *agroerr.AgroError
	if !errors.As(err, &ae) {
		return ErrorDetail{
			Code:     "GENERAL_ERROR",
			Message:  err.Error(),
			ExitCode: agroerr.ExitGeneral,
		}
	}
	d := ErrorDetail{
		Code:       ae.Code,
		Message:    ae.Message,
		Details:    ae.Details,
		Suggestion: ae.Suggestion,
		ExitCode:   ae.ExitCode,
	}
	if ae.Cause != nil {
		d.Cause = ae.Cause.Error()
	}
	return d
}

// FormatError formats an error for display.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}

	if format == FormatJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(ErrorOutput{Error: NewErrorDetail(err)})
	}
	return formatErrorText(w, NewErrorDetail(err))
}

// formatErrorText renders the error with details in key order.
func formatErrorText(w io.Writer, d ErrorDetail) error {
	var sb strings.Builder

	sb.WriteString("Error: " + d.Message + "\n")
	if d.Cause != "" && !strings.Contains(d.Message, d.Cause) {
		sb.WriteString("Cause: " + d.Cause + "\n")
	}

	if len(d.Details) > 0 {
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, d.Details[k])
		}
	}

	if d.Suggestion != "" {
		sb.WriteString("\nSuggestion: " + d.Suggestion + "\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// FormatSuccess formats a success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
