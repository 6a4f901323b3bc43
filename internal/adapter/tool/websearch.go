package tool

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
)

func (e *Executor) webSearch(ctx context.Context, span trace.Span, d domain.ToolDirective) (domain.ToolOutput, error) {
	query := strings.TrimSpace(d.Primary)
	if err := requireArg("query", query); err != nil {
		return domain.ToolOutput{}, err
	}
	if e.search == nil {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.webSearch", domain.ErrBackendUnavailable, "no search backend configured")
	}

	results, err := e.search.Search(ctx, query, e.cfg.Search.MaxResults)
	if err != nil {
		return domain.ToolOutput{}, err
	}
	span.SetAttributes(tracer.IntAttr("search.results", len(results)))
	if len(results) == 0 {
		return text(fmt.Sprintf("No web results for %q", query)), nil
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Content != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Content)
		}
	}
	return text(sb.String()), nil
}
