package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council-ai/internal/domain"
)

func writeTestFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func run(e *Executor, kind domain.DirectiveKind, primary, secondary string) domain.ToolOutput {
	return e.Run(context.Background(), domain.ToolDirective{Kind: kind, Primary: primary, Secondary: secondary})
}

func TestReadFile_Whole(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	writeTestFile(t, root, "notes.txt", "alpha\nbeta\n")

	out := run(e, domain.KindReadFile, "notes.txt", "")
	require.False(t, out.Failed(), out.Error)
	assert.Equal(t, "alpha\nbeta\n", out.Output)
}

func TestReadFile_LineRange(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	var lines []string
	for i := 1; i <= 12; i++ {
		lines = append(lines, "line"+strings.Repeat("x", i))
	}
	writeTestFile(t, root, "a.go", strings.Join(lines, "\n"))

	out := run(e, domain.KindReadFile, "a.go", "9-10")
	require.False(t, out.Failed(), out.Error)
	assert.Equal(t, " 9 | linexxxxxxxxx\n10 | linexxxxxxxxxx\n", out.Output)

	out = run(e, domain.KindReadFile, "a.go", "11-99")
	require.False(t, out.Failed(), out.Error)
	assert.Equal(t, 2, strings.Count(out.Output, "\n"))
}

func TestReadFile_Errors(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	writeTestFile(t, root, "a.txt", "one\n")

	tests := []struct {
		name, primary, secondary, want string
	}{
		{"missing", "nope.txt", "", "no such file"},
		{"outside", "../../etc/passwd", "", "outside sandbox"},
		{"bad range", "a.txt", "5-2", "line range"},
		{"past end", "a.txt", "40-50", "past the end"},
		{"directory", ".", "", "directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := run(e, domain.KindReadFile, tt.primary, tt.secondary)
			require.True(t, out.Failed())
			assert.Contains(t, out.Error, tt.want)
		})
	}
}

func TestReadFile_TooLarge(t *testing.T) {
	e, root := newTestExecutor(t, func(d *ExecutorDeps) { d.Config.MaxFileSize = 4 })
	writeTestFile(t, root, "big.txt", "0123456789")

	out := run(e, domain.KindReadFile, "big.txt", "")
	assert.Contains(t, out.Error, "over the 4 byte limit")
}

func TestWriteFile_CreatesParents(t *testing.T) {
	e, root := newTestExecutor(t, nil)

	out := run(e, domain.KindWriteFile, "pkg/deep/x.go", "package deep\n")
	require.False(t, out.Failed(), out.Error)
	assert.Equal(t, "Wrote 13 bytes to pkg/deep/x.go", out.Output)

	data, err := os.ReadFile(filepath.Join(root, "pkg", "deep", "x.go"))
	require.NoError(t, err)
	assert.Equal(t, "package deep\n", string(data))
}

func TestWriteFile_KeepsMode(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	p := writeTestFile(t, root, "run.sh", "#!/bin/sh\n")
	require.NoError(t, os.Chmod(p, 0o755))

	out := run(e, domain.KindWriteFile, "run.sh", "#!/bin/sh\necho hi\n")
	require.False(t, out.Failed(), out.Error)
	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestWriteFile_Rejected(t *testing.T) {
	e, _ := newTestExecutor(t, nil)

	assert.Contains(t, run(e, domain.KindWriteFile, "../escape.txt", "x").Error, "outside sandbox")
	assert.Contains(t, run(e, domain.KindWriteFile, ".", "x").Error, "workspace root")
}

func editBody(search, replace string) string {
	return domain.EditSearchMarker + "\n" + search + "\n" + domain.EditDividerMarker + "\n" + replace + "\n" + domain.EditReplaceMarker + "\n"
}

func TestEditFile_SingleOccurrence(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	p := writeTestFile(t, root, "main.go", "package main\n\nfunc main() {\n\tfoo()\n}\n")

	out := run(e, domain.KindEditFile, "main.go", editBody("\tfoo()", "\tbar()"))
	require.False(t, out.Failed(), out.Error)
	assert.Equal(t, "Edited main.go at line 4", out.Output)

	data, _ := os.ReadFile(p)
	assert.Equal(t, "package main\n\nfunc main() {\n\tbar()\n}\n", string(data))
}

func TestEditFile_PreservesCRLF(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	p := writeTestFile(t, root, "win.txt", "one\r\ntwo\r\nthree\r\n")

	out := run(e, domain.KindEditFile, "win.txt", editBody("one\ntwo", "uno\ndos"))
	require.False(t, out.Failed(), out.Error)
	data, _ := os.ReadFile(p)
	assert.Equal(t, "uno\r\ndos\r\nthree\r\n", string(data))
}

func TestEditFile_Failures(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	p := writeTestFile(t, root, "dup.txt", "x = 1\nx = 1\n")

	out := run(e, domain.KindEditFile, "dup.txt", editBody("x = 1", "x = 2"))
	assert.Contains(t, out.Error, "matches 2 places")

	out = run(e, domain.KindEditFile, "dup.txt", editBody("y = 1", "y = 2"))
	assert.Contains(t, out.Error, "not found")

	out = run(e, domain.KindEditFile, "dup.txt", "no markers here")
	assert.Contains(t, out.Error, "markers")

	data, _ := os.ReadFile(p)
	assert.Equal(t, "x = 1\nx = 1\n", string(data), "failed edits must not touch the file")
}

func TestListTree(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	writeTestFile(t, root, "go.mod", "module x\n")
	writeTestFile(t, root, "cmd/app/main.go", "package main\n")
	writeTestFile(t, root, "cmd/app/deep/more/x.go", "package more\n")
	writeTestFile(t, root, ".git/HEAD", "ref\n")
	writeTestFile(t, root, "node_modules/lib/index.js", "")

	out := run(e, domain.KindListTree, ".", "2")
	require.False(t, out.Failed(), out.Error)
	assert.Equal(t, "./\n  cmd/\n    app/\n  go.mod\n", out.Output)

	out = run(e, domain.KindListTree, "cmd", "")
	require.False(t, out.Failed(), out.Error)
	assert.Contains(t, out.Output, "main.go")
	assert.Contains(t, out.Output, "more/")
	assert.NotContains(t, out.Output, "x.go", "default depth is 3")
}

func TestListTree_ProjectIgnore(t *testing.T) {
	projects := &memProjects{settings: domain.ProjectSettings{Ignore: []string{"*.log", "build/**"}}}
	e, root := newTestExecutor(t, func(d *ExecutorDeps) { d.Projects = projects })
	writeTestFile(t, root, "app.log", "")
	writeTestFile(t, root, "build/out.bin", "")
	writeTestFile(t, root, "src/a.go", "")

	out := run(e, domain.KindListTree, ".", "")
	require.False(t, out.Failed(), out.Error)
	assert.NotContains(t, out.Output, "app.log")
	assert.NotContains(t, out.Output, "out.bin")
	assert.Contains(t, out.Output, "a.go")
}

func TestListTree_BadDepth(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	assert.Contains(t, run(e, domain.KindListTree, ".", "zero").Error, "positive integer")
}

func TestParseLineRange(t *testing.T) {
	s, end, err := parseLineRange(" 3 - 7 ")
	require.NoError(t, err)
	assert.Equal(t, 3, s)
	assert.Equal(t, 7, end)

	for _, bad := range []string{"", "3", "0-2", "a-b", "7-3"} {
		_, _, err := parseLineRange(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, bad)
	}
}
