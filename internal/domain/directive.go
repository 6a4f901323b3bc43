package domain

import (
	"context"
	"fmt"
	"strings"
)

// DirectiveKind identifies a tool invocation requested by the chair.
type DirectiveKind string

const (
	KindRunCommand     DirectiveKind = "run-command"
	KindWriteFile      DirectiveKind = "write-file"
	KindEditFile       DirectiveKind = "edit-file"
	KindReadFile       DirectiveKind = "read-file"
	KindListTree       DirectiveKind = "list-tree"
	KindSearchText     DirectiveKind = "search-text"
	KindOpenURL        DirectiveKind = "open-url"
	KindWebSearch      DirectiveKind = "web-search"
	KindPageAction     DirectiveKind = "page-action"
	KindScreenCapture  DirectiveKind = "screen-capture"
	KindInputAction    DirectiveKind = "input-action"
	KindRunDiagnostics DirectiveKind = "run-diagnostics"
	KindProjectConfig  DirectiveKind = "project-config"
)

// AllDirectiveKinds lists every kind in grammar order.
var AllDirectiveKinds = []DirectiveKind{
	KindRunCommand, KindWriteFile, KindEditFile, KindReadFile, KindListTree,
	KindSearchText, KindOpenURL, KindWebSearch, KindPageAction,
	KindScreenCapture, KindInputAction, KindRunDiagnostics, KindProjectConfig,
}

// ToolDirective is one parsed tool invocation. The meaning of Primary and
// Secondary depends on Kind (path and content for write-file, command for
// run-command, and so on). Position is the byte offset of the opening fence
// in the chair's reply.
type ToolDirective struct {
	Kind      DirectiveKind `json:"kind"`
	Primary   string        `json:"primary,omitempty"`
	Secondary string        `json:"secondary,omitempty"`
	Position  int           `json:"position"`
}

// Label is a short human-readable description used in events and in the
// tool-output message.
func (d ToolDirective) Label() string {
	arg := strings.TrimSpace(d.Primary)
	if i := strings.IndexByte(arg, '\n'); i >= 0 {
		arg = arg[:i] + " ..."
	}
	if len(arg) > 120 {
		arg = arg[:117] + "..."
	}
	if arg == "" {
		return string(d.Kind)
	}
	return string(d.Kind) + " " + arg
}

// Edit markers delimiting the SEARCH/REPLACE pair of an edit-file body.
const (
	EditSearchMarker  = "<<<<<<< SEARCH"
	EditDividerMarker = "======="
	EditReplaceMarker = ">>>>>>> REPLACE"
)

// ParseEditBody splits an edit-file body into its search and replace halves.
// The markers must appear on their own lines, in order.
func ParseEditBody(body string) (search, replace string, err error) {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	start, mid, end := -1, -1, -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case start < 0 && trimmed == EditSearchMarker:
			start = i
		case start >= 0 && mid < 0 && trimmed == EditDividerMarker:
			mid = i
		case mid >= 0 && end < 0 && trimmed == EditReplaceMarker:
			end = i
		}
	}
	if start < 0 || mid < 0 || end < 0 {
		return "", "", NewDomainError("ParseEditBody", ErrInvalidInput,
			fmt.Sprintf("expected %q, %q and %q markers", EditSearchMarker, EditDividerMarker, EditReplaceMarker))
	}
	search = strings.Join(lines[start+1:mid], "\n")
	replace = strings.Join(lines[mid+1:end], "\n")
	if search == "" {
		return "", "", NewDomainError("ParseEditBody", ErrInvalidInput, "empty SEARCH block")
	}
	return search, replace, nil
}

// ToolOutput is what a tool returns to the chair. Image is a base64 payload
// attached to the next turn when the tool captured one.
type ToolOutput struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	Image  string `json:"image,omitempty"`
}

// Failed reports whether the tool reported an error.
func (o ToolOutput) Failed() bool { return o.Error != "" }

// ToolRunner performs the side effect of a directive. Permission checks have
// already happened by the time Run is called. Run reports tool failures in
// ToolOutput.Error; it never panics on bad input.
type ToolRunner interface {
	Run(ctx context.Context, d ToolDirective) ToolOutput
}
