package tool

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
)

// maxJSExpressionLen bounds page:eval scripts.
const maxJSExpressionLen = 10240

// maxListedLinks is how many links follow the page text in open-url output.
const maxListedLinks = 40

// browserBackend returns the browser, starting it on first use.
func (e *Executor) browserBackend() (BrowserBackend, error) {
	e.browserMu.Lock()
	defer e.browserMu.Unlock()
	if e.browser != nil {
		return e.browser, nil
	}
	if e.browserFactory == nil {
		return nil, domain.NewDomainError("Executor.browserBackend", domain.ErrBackendUnavailable, "no browser configured")
	}
	b, err := e.browserFactory()
	if err != nil {
		return nil, err
	}
	e.browser = b
	return b, nil
}

func (e *Executor) openURL(ctx context.Context, span trace.Span, d domain.ToolDirective) (domain.ToolOutput, error) {
	target, err := normalizeURL(d.Primary)
	if err != nil {
		return domain.ToolOutput{}, err
	}
	span.SetAttributes(tracer.StringAttr("browser.url", target))

	b, err := e.browserBackend()
	if err != nil {
		return domain.ToolOutput{}, err
	}
	if err := b.Navigate(ctx, target); err != nil {
		return domain.ToolOutput{}, domain.WrapOp("navigate", err)
	}
	pc, err := b.GetContent(ctx, "")
	if err != nil {
		return domain.ToolOutput{}, err
	}
	return text(formatPage(pc)), nil
}

// pageAction acts on the page left open by the last open-url. The body
// carries the arguments: a selector for click, wait and content; a selector
// line followed by the text for type; the script for eval; "full" for a
// whole-page screenshot.
func (e *Executor) pageAction(ctx context.Context, span trace.Span, d domain.ToolDirective) (domain.ToolOutput, error) {
	action := strings.ToLower(strings.TrimSpace(d.Primary))
	args := strings.TrimSpace(d.Secondary)
	span.SetAttributes(tracer.StringAttr("browser.action", action))

	b, err := e.browserBackend()
	if err != nil {
		return domain.ToolOutput{}, err
	}

	switch action {
	case "click":
		if err := requireArg("selector", args); err != nil {
			return domain.ToolOutput{}, err
		}
		if err := b.Click(ctx, args); err != nil {
			return domain.ToolOutput{}, domain.WrapOp("click", err)
		}
		return text("Clicked " + args), nil

	case "type":
		selector, input, _ := strings.Cut(args, "\n")
		selector = strings.TrimSpace(selector)
		if err := requireArg("selector", selector); err != nil {
			return domain.ToolOutput{}, err
		}
		if err := b.Type(ctx, selector, input); err != nil {
			return domain.ToolOutput{}, domain.WrapOp("type", err)
		}
		return text(fmt.Sprintf("Typed %d characters into %s", len(input), selector)), nil

	case "eval":
		if err := requireArg("script", args); err != nil {
			return domain.ToolOutput{}, err
		}
		if len(args) > maxJSExpressionLen {
			return domain.ToolOutput{}, domain.NewDomainError("Executor.pageAction", domain.ErrInvalidInput,
				fmt.Sprintf("script is %d bytes, over the %d byte limit", len(args), maxJSExpressionLen))
		}
		result, err := b.Evaluate(ctx, args)
		if err != nil {
			return domain.ToolOutput{}, err
		}
		return text(result), nil

	case "wait":
		if err := requireArg("selector", args); err != nil {
			return domain.ToolOutput{}, err
		}
		if err := b.WaitVisible(ctx, args); err != nil {
			return domain.ToolOutput{}, domain.WrapOp("wait", err)
		}
		return text(args + " is visible"), nil

	case "content":
		pc, err := b.GetContent(ctx, args)
		if err != nil {
			return domain.ToolOutput{}, err
		}
		return text(formatPage(pc)), nil

	case "screenshot":
		img, err := b.Screenshot(ctx, strings.EqualFold(args, "full"))
		if err != nil {
			return domain.ToolOutput{}, err
		}
		return domain.ToolOutput{Output: "Page screenshot attached.", Image: img}, nil
	}

	return domain.ToolOutput{}, domain.NewDomainError("Executor.pageAction", domain.ErrInvalidInput,
		fmt.Sprintf("unknown page action %q (want click, type, eval, wait, content or screenshot)", action))
}

func formatPage(pc *PageContent) string {
	var sb strings.Builder
	if pc.Title != "" {
		sb.WriteString("Title: " + pc.Title + "\n")
	}
	if pc.URL != "" {
		sb.WriteString("URL: " + pc.URL + "\n")
	}
	sb.WriteString("\n" + pc.Text + "\n")
	if len(pc.Links) > 0 {
		sb.WriteString("\nLinks:\n")
		for i, l := range pc.Links {
			if i == maxListedLinks {
				fmt.Fprintf(&sb, "... %d more\n", len(pc.Links)-maxListedLinks)
				break
			}
			fmt.Fprintf(&sb, "- %s %s (%s)\n", l.Text, l.Href, l.Selector)
		}
	}
	return sb.String()
}

// normalizeURL accepts absolute http(s) URLs and bare hosts, which are
// given an https scheme.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.NewDomainError("normalizeURL", domain.ErrInvalidInput, "url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", domain.NewDomainError("normalizeURL", domain.ErrInvalidInput, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", domain.NewDomainError("normalizeURL", domain.ErrInvalidInput,
			fmt.Sprintf("scheme %q not allowed, only http/https", u.Scheme))
	}
	if u.Host == "" {
		return "", domain.NewDomainError("normalizeURL", domain.ErrInvalidInput, "url has no host")
	}
	return u.String(), nil
}

func requireArg(name, value string) error {
	if value == "" {
		return domain.NewDomainError("requireArg", domain.ErrInvalidInput, fmt.Sprintf("'%s' is required", name))
	}
	return nil
}
