package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council-ai/internal/domain"
)

func TestProjectConfig_Merges(t *testing.T) {
	projects := &memProjects{settings: domain.ProjectSettings{Name: "old", Language: "go"}}
	e, _ := newTestExecutor(t, func(d *ExecutorDeps) { d.Projects = projects })

	body := "name: council\nTest-Command: go test ./...\nignore: '*.log'\ncolour: blue\n"
	out := run(e, domain.KindProjectConfig, "", body)
	require.False(t, out.Failed(), out.Error)

	assert.Equal(t, domain.ProjectSettings{
		Name:        "council",
		Language:    "go",
		TestCommand: "go test ./...",
		Ignore:      []string{"*.log"},
	}, projects.settings)
	assert.Equal(t, 1, projects.saves)
	assert.Contains(t, out.Output, "Saved project settings: ignore, name, test_command")
	assert.Contains(t, out.Output, "Ignored unknown keys: colour")
}

func TestProjectConfig_Rejects(t *testing.T) {
	projects := &memProjects{}
	e, _ := newTestExecutor(t, func(d *ExecutorDeps) { d.Projects = projects })

	assert.Contains(t, run(e, domain.KindProjectConfig, "", "name: [unclosed").Error, "not YAML")
	assert.Contains(t, run(e, domain.KindProjectConfig, "", "- a\n- b\n").Error, "not YAML")
	assert.Contains(t, run(e, domain.KindProjectConfig, "", "colour: blue\n").Error, "no known settings")
	assert.Contains(t, run(e, domain.KindProjectConfig, "", "").Error, "no settings given")
	assert.Zero(t, projects.saves)
}

func TestProjectConfig_NoStore(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	assert.Contains(t, run(e, domain.KindProjectConfig, "", "name: x\n").Error, "no project store")
}
