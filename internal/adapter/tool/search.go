package tool

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
)

const (
	defaultSearchGlob = "**/*"
	maxSearchMatches  = 200
	maxMatchLineLen   = 300
)

// skippedDirs are never listed or searched.
var skippedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	".council":     true,
}

// ignoreMatcher combines skippedDirs with the project's ignore globs. Globs
// are matched against the slash-separated path relative to the root and
// against the base name.
func (e *Executor) ignoreMatcher(ctx context.Context) func(rel string, isDir bool) bool {
	var patterns []string
	if e.projects != nil {
		if p, err := e.projects.Load(ctx); err == nil {
			patterns = p.Ignore
		} else {
			e.logger.Debug("tool: project settings unavailable", "error", err)
		}
	}
	return func(rel string, isDir bool) bool {
		base := path.Base(rel)
		if isDir && skippedDirs[base] {
			return true
		}
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, rel); ok {
				return true
			}
			if ok, _ := doublestar.Match(p, base); ok {
				return true
			}
		}
		return false
	}
}

// searchText greps files under the root whose relative path matches the
// glob. Binary files and files over the size limit are skipped.
func (e *Executor) searchText(ctx context.Context, span trace.Span, d domain.ToolDirective) (domain.ToolOutput, error) {
	re, err := regexp.Compile(d.Primary)
	if err != nil {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.searchText", domain.ErrInvalidInput,
			fmt.Sprintf("bad pattern: %v", err))
	}
	glob := strings.TrimSpace(d.Secondary)
	if glob == "" {
		glob = defaultSearchGlob
	}
	if !doublestar.ValidatePattern(glob) {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.searchText", domain.ErrInvalidInput,
			fmt.Sprintf("bad glob %q", glob))
	}

	root := e.sandbox.Root()
	ignore := e.ignoreMatcher(ctx)
	var sb strings.Builder
	matches, files := 0, 0
	truncated := false

	walkErr := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p == root {
			return nil
		}
		rel := e.sandbox.Rel(p)
		if ignore(rel, entry.IsDir()) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}
		if ok, _ := doublestar.Match(glob, rel); !ok {
			return nil
		}
		if info, err := entry.Info(); err != nil || (e.cfg.MaxFileSize > 0 && info.Size() > e.cfg.MaxFileSize) {
			return nil
		}

		data, err := e.files.ReadFile(p)
		if err != nil || isBinary(data) {
			return nil
		}
		files++
		for i, line := range strings.Split(string(data), "\n") {
			if !re.MatchString(line) {
				continue
			}
			if matches >= maxSearchMatches {
				truncated = true
				return filepath.SkipAll
			}
			matches++
			line = strings.TrimRight(line, "\r")
			if len(line) > maxMatchLineLen {
				line = line[:maxMatchLineLen] + "..."
			}
			fmt.Fprintf(&sb, "%s:%d: %s\n", rel, i+1, line)
		}
		return nil
	})
	if walkErr != nil {
		return domain.ToolOutput{}, domain.Aborted("Executor.searchText", walkErr)
	}

	span.SetAttributes(tracer.IntAttr("search.matches", matches), tracer.IntAttr("search.files", files))
	if matches == 0 {
		return text(fmt.Sprintf("No matches for %q in %d files matching %s", d.Primary, files, glob)), nil
	}
	if truncated {
		fmt.Fprintf(&sb, "[...stopped after %d matches]\n", maxSearchMatches)
	}
	return text(sb.String()), nil
}

// isBinary reports whether data looks like a binary file: a NUL byte in the
// first 8000 bytes, as git does.
func isBinary(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}
