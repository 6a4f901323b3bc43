package tool

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
)

const (
	defaultTreeDepth = 3
	maxTreeDepth     = 10
	maxTreeEntries   = 500
)

func (e *Executor) resolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "." {
		return e.sandbox.Root(), nil
	}
	return e.sandbox.ValidatePath(path)
}

func (e *Executor) readFile(_ context.Context, span trace.Span, d domain.ToolDirective) (domain.ToolOutput, error) {
	resolved, err := e.resolvePath(d.Primary)
	if err != nil {
		return domain.ToolOutput{}, err
	}
	if err := e.checkSize(resolved); err != nil {
		return domain.ToolOutput{}, err
	}

	data, err := e.files.ReadFile(resolved)
	if err != nil {
		return domain.ToolOutput{}, fmt.Errorf("read file: %w", err)
	}
	span.SetAttributes(tracer.IntAttr("file.size", len(data)))

	if d.Secondary == "" {
		return text(string(data)), nil
	}

	start, end, err := parseLineRange(d.Secondary)
	if err != nil {
		return domain.ToolOutput{}, err
	}
	lines := strings.Split(string(data), "\n")
	if start > len(lines) {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.readFile", domain.ErrInvalidInput,
			fmt.Sprintf("line %d is past the end of %s (%d lines)", start, d.Primary, len(lines)))
	}
	end = min(end, len(lines))

	var sb strings.Builder
	width := len(strconv.Itoa(end))
	for i := start; i <= end; i++ {
		fmt.Fprintf(&sb, "%*d | %s\n", width, i, lines[i-1])
	}
	return text(sb.String()), nil
}

func (e *Executor) writeFile(_ context.Context, span trace.Span, d domain.ToolDirective) (domain.ToolOutput, error) {
	resolved, err := e.resolvePath(d.Primary)
	if err != nil {
		return domain.ToolOutput{}, err
	}
	if resolved == e.sandbox.Root() {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.writeFile", domain.ErrInvalidInput, "path is the workspace root")
	}

	if err := e.files.WriteFile(resolved, []byte(d.Secondary), 0o644); err != nil {
		return domain.ToolOutput{}, fmt.Errorf("write file: %w", err)
	}
	span.SetAttributes(tracer.IntAttr("file.size", len(d.Secondary)))
	e.logger.Info("tool: file written", "path", e.sandbox.Rel(resolved), "bytes", len(d.Secondary))
	return text(fmt.Sprintf("Wrote %d bytes to %s", len(d.Secondary), e.sandbox.Rel(resolved))), nil
}

// editFile replaces exactly one occurrence of the SEARCH text.
func (e *Executor) editFile(_ context.Context, _ trace.Span, d domain.ToolDirective) (domain.ToolOutput, error) {
	search, replace, err := domain.ParseEditBody(d.Secondary)
	if err != nil {
		return domain.ToolOutput{}, err
	}
	resolved, err := e.resolvePath(d.Primary)
	if err != nil {
		return domain.ToolOutput{}, err
	}
	if err := e.checkSize(resolved); err != nil {
		return domain.ToolOutput{}, err
	}

	data, err := e.files.ReadFile(resolved)
	if err != nil {
		return domain.ToolOutput{}, fmt.Errorf("read file: %w", err)
	}
	content := string(data)

	crlf := strings.Contains(content, "\r\n")
	if crlf {
		content = strings.ReplaceAll(content, "\r\n", "\n")
	}

	switch n := strings.Count(content, search); n {
	case 0:
		return domain.ToolOutput{}, domain.NewDomainError("Executor.editFile", domain.ErrNotFound,
			fmt.Sprintf("SEARCH text not found in %s; read the file and copy the text exactly", d.Primary))
	case 1:
	default:
		return domain.ToolOutput{}, domain.NewDomainError("Executor.editFile", domain.ErrInvalidInput,
			fmt.Sprintf("SEARCH text matches %d places in %s; include more surrounding lines", n, d.Primary))
	}

	updated := strings.Replace(content, search, replace, 1)
	if crlf {
		updated = strings.ReplaceAll(updated, "\n", "\r\n")
	}
	if err := e.files.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return domain.ToolOutput{}, fmt.Errorf("write file: %w", err)
	}

	line := strings.Count(content[:strings.Index(content, search)], "\n") + 1
	e.logger.Info("tool: file edited", "path", e.sandbox.Rel(resolved), "line", line)
	return text(fmt.Sprintf("Edited %s at line %d", e.sandbox.Rel(resolved), line)), nil
}

func (e *Executor) listTree(ctx context.Context, _ trace.Span, d domain.ToolDirective) (domain.ToolOutput, error) {
	resolved, err := e.resolvePath(d.Primary)
	if err != nil {
		return domain.ToolOutput{}, err
	}

	depth := defaultTreeDepth
	if d.Secondary != "" {
		n, err := strconv.Atoi(d.Secondary)
		if err != nil || n < 1 {
			return domain.ToolOutput{}, domain.NewDomainError("Executor.listTree", domain.ErrInvalidInput,
				fmt.Sprintf("depth %q must be a positive integer", d.Secondary))
		}
		depth = min(n, maxTreeDepth)
	}

	ignore := e.ignoreMatcher(ctx)
	var sb strings.Builder
	sb.WriteString(e.sandbox.Rel(resolved) + "/\n")
	count := 0
	var walk func(dir, indent string, level int) error
	walk = func(dir, indent string, level int) error {
		entries, err := e.files.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("list dir: %w", err)
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].IsDir() != entries[j].IsDir() {
				return entries[i].IsDir()
			}
			return entries[i].Name() < entries[j].Name()
		})
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if ignore(e.sandbox.Rel(full), entry.IsDir()) {
				continue
			}
			if count >= maxTreeEntries {
				sb.WriteString(indent + "[...truncated]\n")
				return nil
			}
			count++
			if entry.IsDir() {
				sb.WriteString(indent + entry.Name() + "/\n")
				if level < depth {
					if err := walk(full, indent+"  ", level+1); err != nil {
						return err
					}
				}
				continue
			}
			sb.WriteString(indent + entry.Name() + "\n")
		}
		return nil
	}
	if err := walk(resolved, "  ", 1); err != nil {
		return domain.ToolOutput{}, err
	}
	return text(sb.String()), nil
}

func (e *Executor) checkSize(path string) error {
	if e.cfg.MaxFileSize <= 0 {
		return nil
	}
	info, err := e.files.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		return domain.NewDomainError("Executor.checkSize", domain.ErrInvalidInput,
			fmt.Sprintf("%s is a directory; use tree", e.sandbox.Rel(path)))
	}
	if info.Size() > e.cfg.MaxFileSize {
		return domain.NewDomainError("Executor.checkSize", domain.ErrInvalidInput,
			fmt.Sprintf("%s is %d bytes, over the %d byte limit", e.sandbox.Rel(path), info.Size(), e.cfg.MaxFileSize))
	}
	return nil
}

// parseLineRange parses "start-end" into 1-based inclusive bounds.
func parseLineRange(s string) (start, end int, err error) {
	a, b, ok := strings.Cut(s, "-")
	if ok {
		start, err = strconv.Atoi(strings.TrimSpace(a))
		if err == nil {
			end, err = strconv.Atoi(strings.TrimSpace(b))
		}
	}
	if !ok || err != nil || start < 1 || end < start {
		return 0, 0, domain.NewDomainError("parseLineRange", domain.ErrInvalidInput,
			fmt.Sprintf("line range %q must be <start>-<end> with 1 <= start <= end", s))
	}
	return start, end, nil
}
