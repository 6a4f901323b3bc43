package domain

import "context"

// ProjectSettings are the per-workspace notes the chair records with the
// project-config directive. They are read back into the chair's system
// prompt on later asks.
type ProjectSettings struct {
	Name               string   `yaml:"name,omitempty"                mapstructure:"name"`
	Language           string   `yaml:"language,omitempty"            mapstructure:"language"`
	Instructions       string   `yaml:"instructions,omitempty"        mapstructure:"instructions"`
	TestCommand        string   `yaml:"test_command,omitempty"        mapstructure:"test_command"`
	DiagnosticsCommand string   `yaml:"diagnostics_command,omitempty" mapstructure:"diagnostics_command"`
	Ignore             []string `yaml:"ignore,omitempty"              mapstructure:"ignore"`
}

// Empty reports whether no setting is present.
func (p ProjectSettings) Empty() bool {
	return p.Name == "" && p.Language == "" && p.Instructions == "" &&
		p.TestCommand == "" && p.DiagnosticsCommand == "" && len(p.Ignore) == 0
}

// ProjectStore persists ProjectSettings. Load returns the zero value when
// nothing has been saved.
type ProjectStore interface {
	Load(ctx context.Context) (ProjectSettings, error)
	Save(ctx context.Context, p ProjectSettings) error
}
