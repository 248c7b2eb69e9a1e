package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
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

// NewErrorDetail extracts the structured fields of err.
func NewErrorDetail(err error) ErrorDetail {
	var we *fwerr.WalletError
	if fwerr.As(err, &we) {
		d := ErrorDetail{
			Code:       we.Code,
			Message:    we.Message,
			Details:    we.Details,
			Suggestion: we.Suggestion,
			ExitCode:   we.ExitCode,
		}
		if we.Cause != nil {
			d.Cause = we.Cause.Error()
		}
		return d
	}
	return ErrorDetail{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		ExitCode: fwerr.ExitGeneral,
	}
}

// FormatError writes err for display in the given format.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}
	detail := NewErrorDetail(err)
	if format == FormatJSON {
		return WriteJSON(w, ErrorOutput{Error: detail})
	}

	var sb strings.Builder
	sb.WriteString("Error: " + detail.Message)
	if detail.Cause != "" {
		sb.WriteString(": " + detail.Cause)
	}
	sb.WriteString("\n")

	if len(detail.Details) > 0 {
		keys := make([]string, 0, len(detail.Details))
		for k := range detail.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, detail.Details[k]))
		}
	}
	if detail.Suggestion != "" {
		sb.WriteString("\nSuggestion: " + detail.Suggestion + "\n")
	}

	_, werr := io.WriteString(w, sb.String())
	return werr
}

// FormatSuccess writes a success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return WriteJSON(w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
