package domain

import "fmt"

// Permission names a tool category gate.
type Permission string

const (
	PermCommand   Permission = "command"
	PermFileRead  Permission = "file_read"
	PermFileWrite Permission = "file_write"
	PermFileEdit  Permission = "file_edit"
	PermBrowser   Permission = "browser"
	PermDesktop   Permission = "desktop"
)

// AllPermissions lists the gates in display order.
var AllPermissions = []Permission{
	PermCommand, PermFileRead, PermFileWrite, PermFileEdit, PermBrowser, PermDesktop,
}

// kindPermission maps each directive kind to the gate it needs.
var kindPermission = map[DirectiveKind]Permission{
	KindRunCommand:     PermCommand,
	KindRunDiagnostics: PermCommand,
	KindReadFile:       PermFileRead,
	KindListTree:       PermFileRead,
	KindSearchText:     PermFileRead,
	KindWriteFile:      PermFileWrite,
	KindProjectConfig:  PermFileWrite,
	KindEditFile:       PermFileEdit,
	KindOpenURL:        PermBrowser,
	KindWebSearch:      PermBrowser,
	KindPageAction:     PermBrowser,
	KindScreenCapture:  PermDesktop,
	KindInputAction:    PermDesktop,
}

// PermissionFor returns the gate for a directive kind.
func PermissionFor(kind DirectiveKind) (Permission, bool) {
	p, ok := kindPermission[kind]
	return p, ok
}

// PermissionSet holds the boolean gates for each tool category.
type PermissionSet struct {
	Command   bool `json:"command"    yaml:"command"`
	FileRead  bool `json:"file_read"  yaml:"file_read"`
	FileWrite bool `json:"file_write" yaml:"file_write"`
	FileEdit  bool `json:"file_edit"  yaml:"file_edit"`
	Browser   bool `json:"browser"    yaml:"browser"`
	Desktop   bool `json:"desktop"    yaml:"desktop"`
}

// DefaultPermissions allows read-only access.
func DefaultPermissions() PermissionSet {
	return PermissionSet{FileRead: true}
}

// Has reports whether the gate is open.
func (s PermissionSet) Has(p Permission) bool {
	switch p {
	case PermCommand:
		return s.Command
	case PermFileRead:
		return s.FileRead
	case PermFileWrite:
		return s.FileWrite
	case PermFileEdit:
		return s.FileEdit
	case PermBrowser:
		return s.Browser
	case PermDesktop:
		return s.Desktop
	}
	return false
}

// With returns a copy with the gate set to on.
func (s PermissionSet) With(p Permission, on bool) (PermissionSet, error) {
	switch p {
	case PermCommand:
		s.Command = on
	case PermFileRead:
		s.FileRead = on
	case PermFileWrite:
		s.FileWrite = on
	case PermFileEdit:
		s.FileEdit = on
	case PermBrowser:
		s.Browser = on
	case PermDesktop:
		s.Desktop = on
	default:
		return s, NewDomainError("PermissionSet.With", ErrInvalidInput, string(p))
	}
	return s, nil
}

// Allows reports whether a directive may run. Unknown kinds are denied.
func (s PermissionSet) Allows(kind DirectiveKind) bool {
	p, ok := PermissionFor(kind)
	return ok && s.Has(p)
}

// Enabled returns the open gates in display order.
func (s PermissionSet) Enabled() []Permission {
	var out []Permission
	for _, p := range AllPermissions {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// DenialText is the tool output recorded for a denied directive.
func DenialText(d ToolDirective) string {
	p, ok := PermissionFor(d.Kind)
	if !ok {
		return fmt.Sprintf("Permission denied: %s is not a known tool; it was not executed.", d.Kind)
	}
	return fmt.Sprintf("Permission denied: %s is disabled; %s was not executed.", p, d.Kind)
}
