// Package directive extracts tool directives from the chair's free-text
// replies.
//
// A directive is a fenced block whose tag names a tool:
//
//	```read:/etc/hosts:1-20```
//
//	```file:cmd/main.go
//	package main
//	```
//
// Tags are matched case-insensitively and surrounding blanks are ignored.
// Blocks with any other tag (```go, ```json) are skipped whole.
package directive

import (
	"regexp"
	"sort"
	"strings"

	"council-ai/internal/domain"
)

const fence = "```"

// argMode says where a rule takes its primary argument from.
type argMode int

const (
	argNone     argMode = iota // tag only, e.g. screenshot
	argRequired                // tag:<arg>, or the first body line
	argOptional                // tag[:<arg>]
	argBody                    // the body itself, e.g. run blocks
)

// Rule describes one directive form of the grammar.
type Rule struct {
	Kind  domain.DirectiveKind
	Tags  []string
	Usage string
	Help  string

	mode  argMode
	build func(arg, body string) (primary, secondary string, ok bool)
}

var (
	lineRange = regexp.MustCompile(`^(.*?)\s*:\s*(\d+)\s*-\s*(\d+)$`)
	treeDepth = regexp.MustCompile(`^(.*?)\s*:\s*(\d+)$`)
)

var rules = []Rule{
	{
		Kind: domain.KindRunCommand, Tags: []string{"run", "bash", "sh", "shell", "cmd"},
		Usage: "```bash\n<command>\n```",
		Help:  "run a shell command in the workspace",
		mode:  argBody,
		build: func(arg, body string) (string, string, bool) {
			cmd := strings.TrimSpace(body)
			if cmd == "" {
				cmd = strings.TrimSpace(arg)
			}
			return cmd, "", cmd != ""
		},
	},
	{
		Kind: domain.KindWriteFile, Tags: []string{"file", "write"},
		Usage: "```file:<path>\n<full file content>\n```",
		Help:  "create or overwrite a file",
		mode:  argRequired,
		build: func(arg, body string) (string, string, bool) {
			return arg, body, arg != ""
		},
	},
	{
		Kind: domain.KindEditFile, Tags: []string{"edit"},
		Usage: "```edit:<path>\n" + domain.EditSearchMarker + "\n<exact text>\n" +
			domain.EditDividerMarker + "\n<replacement>\n" + domain.EditReplaceMarker + "\n```",
		Help: "replace one exact occurrence of text in a file",
		mode: argRequired,
		build: func(arg, body string) (string, string, bool) {
			if _, _, err := domain.ParseEditBody(body); err != nil {
				return "", "", false
			}
			return arg, body, arg != ""
		},
	},
	{
		Kind: domain.KindReadFile, Tags: []string{"read"},
		Usage: "```read:<path>[:<start>-<end>]```",
		Help:  "read a file, optionally a line range",
		mode:  argRequired,
		build: func(arg, _ string) (string, string, bool) {
			if m := lineRange.FindStringSubmatch(arg); m != nil {
				return strings.TrimSpace(m[1]), m[2] + "-" + m[3], m[1] != ""
			}
			return arg, "", arg != ""
		},
	},
	{
		Kind: domain.KindListTree, Tags: []string{"tree"},
		Usage: "```tree:<path>[:<depth>]```",
		Help:  "list a directory tree",
		mode:  argOptional,
		build: func(arg, _ string) (string, string, bool) {
			if m := treeDepth.FindStringSubmatch(arg); m != nil {
				return defaultPath(m[1]), m[2], true
			}
			return defaultPath(arg), "", true
		},
	},
	{
		Kind: domain.KindSearchText, Tags: []string{"search"},
		Usage: "```search:<regexp>\n[<glob>]\n```",
		Help:  "search file contents; the optional body narrows files by glob",
		mode:  argRequired,
		build: func(arg, body string) (string, string, bool) {
			return arg, firstLine(body), arg != ""
		},
	},
	{
		Kind: domain.KindOpenURL, Tags: []string{"browse", "url"},
		Usage: "```browse:<url>```",
		Help:  "open a page in the browser and return its text",
		mode:  argRequired,
		build: func(arg, _ string) (string, string, bool) {
			return arg, "", arg != ""
		},
	},
	{
		Kind: domain.KindWebSearch, Tags: []string{"websearch", "web-search", "web_search"},
		Usage: "```websearch:<query>```",
		Help:  "search the web",
		mode:  argRequired,
		build: func(arg, _ string) (string, string, bool) {
			return arg, "", arg != ""
		},
	},
	{
		Kind: domain.KindPageAction, Tags: []string{"page"},
		Usage: "```page:<click|type|eval|wait|content|screenshot>\n<selector or script>\n```",
		Help:  "act on the open browser page",
		mode:  argRequired,
		build: func(arg, body string) (string, string, bool) {
			return strings.ToLower(arg), strings.TrimSpace(body), arg != ""
		},
	},
	{
		Kind: domain.KindScreenCapture, Tags: []string{"screenshot"},
		Usage: "```screenshot```",
		Help:  "capture the desktop; the image is attached to the next turn",
		mode:  argNone,
		build: func(_, _ string) (string, string, bool) {
			return "", "", true
		},
	},
	{
		Kind: domain.KindInputAction, Tags: []string{"input"},
		Usage: "```input:<click|move|type|key>\n<x y | text | key combo>\n```",
		Help:  "drive the desktop mouse or keyboard",
		mode:  argRequired,
		build: func(arg, body string) (string, string, bool) {
			return strings.ToLower(arg), strings.TrimSpace(body), arg != ""
		},
	},
	{
		Kind: domain.KindRunDiagnostics, Tags: []string{"diagnostics", "diagnose", "lint"},
		Usage: "```diagnostics[:<path>]```",
		Help:  "run the project's checker (go vet, tsc, cargo check, ...)",
		mode:  argOptional,
		build: func(arg, _ string) (string, string, bool) {
			return defaultPath(arg), "", true
		},
	},
	{
		Kind: domain.KindProjectConfig, Tags: []string{"project-config", "project_config"},
		Usage: "```project-config\n<yaml: name, language, instructions, test_command, diagnostics_command>\n```",
		Help:  "record project settings for later turns",
		mode:  argNone,
		build: func(_, body string) (string, string, bool) {
			body = strings.TrimSpace(body)
			return "", body, body != ""
		},
	},
}

// tagIndex maps a lower-case tag to its rule.
var tagIndex = func() map[string]*Rule {
	idx := make(map[string]*Rule)
	for i := range rules {
		for _, tag := range rules[i].Tags {
			idx[tag] = &rules[i]
		}
	}
	return idx
}()

// Rules returns the grammar, one entry per directive kind.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Parse returns the directives in text ordered by their source offset.
// Placeholder examples are dropped. Parse is pure.
func Parse(text string) []domain.ToolDirective {
	var out []domain.ToolDirective
	for _, b := range scanBlocks(text) {
		d, ok := match(b)
		if !ok || isPlaceholder(d, b.body) {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func match(b block) (domain.ToolDirective, bool) {
	tag, arg := splitHeader(b.header)
	rule, ok := tagIndex[tag]
	if !ok {
		return domain.ToolDirective{}, false
	}

	body := b.body
	if rule.mode == argRequired && arg == "" && rule.Kind != domain.KindWriteFile && rule.Kind != domain.KindEditFile {
		arg, body = firstLine(body), restLines(body)
	}

	primary, secondary, ok := rule.build(arg, body)
	if !ok {
		return domain.ToolDirective{}, false
	}
	return domain.ToolDirective{
		Kind:      rule.Kind,
		Primary:   primary,
		Secondary: secondary,
		Position:  b.offset,
	}, true
}

// splitHeader separates "tag:arg". Without a colon the first word is the
// tag and the rest of the line is the argument.
func splitHeader(header string) (tag, arg string) {
	header = strings.TrimSpace(header)
	if i := strings.IndexByte(header, ':'); i >= 0 {
		head := strings.TrimSpace(header[:i])
		if !strings.ContainsAny(head, " \t") {
			return strings.ToLower(head), strings.TrimSpace(header[i+1:])
		}
	}
	if i := strings.IndexAny(header, " \t"); i >= 0 {
		return strings.ToLower(header[:i]), strings.TrimSpace(header[i+1:])
	}
	return strings.ToLower(header), ""
}

func defaultPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "."
	}
	return p
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func restLines(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return ""
}
