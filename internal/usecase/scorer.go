package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
)

const (
	verdictsSchemaJSON = `{"type": "object", "propertyNames": {"minLength": 1}}`
	verdictSchemaJSON  = `{"type": "string", "enum": ["accepted", "partial", "rejected"]}`
)

// ScorerConfig controls the secretary call.
type ScorerConfig struct {
	AdviceCharLimit int           // per contributor, in the scoring prompt
	Timeout         time.Duration // bound on a detached scoring task
}

// ScorerDeps holds the dependencies of a Scorer.
type ScorerDeps struct {
	Sender domain.Sender
	Stats  domain.StatsStore
	Bus    domain.EventBus // optional
	Logger *slog.Logger
	Config ScorerConfig
}

// ScoreInput is everything the secretary needs to judge one ask.
type ScoreInput struct {
	Question    string
	Opinions    []domain.ProviderResponse
	Chair       domain.Agent
	ChairAnswer string
	Secretary   domain.Agent
}

// scoredIDs lists the agents the secretary classifies: members that
// answered, in member order, then the chair.
func (in ScoreInput) scoredIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, op := range in.Opinions {
		if op.Failed() || op.AgentID == "" || seen[op.AgentID] {
			continue
		}
		seen[op.AgentID] = true
		ids = append(ids, op.AgentID)
	}
	if in.Chair.ID != "" && !seen[in.Chair.ID] {
		ids = append(ids, in.Chair.ID)
	}
	return ids
}

// ScoreReport is the outcome of one scoring round.
type ScoreReport struct {
	Verdicts map[string]domain.Verdict
	Stats    []domain.AgentStats // updated counters, sorted by agent id
	Ignored  []string            // keys that were unknown ids or invalid verdicts
}

// Scorer asks the secretary how much of each contributor's advice was used
// and updates the per-agent counters.
type Scorer struct {
	deps     ScorerDeps
	verdicts *jsonschema.Schema
	verdict  *jsonschema.Schema
}

// NewScorer compiles the verdict schemas and applies defaults.
func NewScorer(deps ScorerDeps) (*Scorer, error) {
	if deps.Config.AdviceCharLimit <= 0 {
		deps.Config.AdviceCharLimit = 1500
	}
	if deps.Config.Timeout <= 0 {
		deps.Config.Timeout = 5 * time.Minute
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	verdicts, err := compileSchema("verdicts.json", verdictsSchemaJSON)
	if err != nil {
		return nil, err
	}
	verdict, err := compileSchema("verdict.json", verdictSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &Scorer{deps: deps, verdicts: verdicts, verdict: verdict}, nil
}

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return compiled, nil
}

// Score runs one scoring round synchronously. Nothing is recorded when the
// secretary fails or its reply holds no usable JSON.
func (s *Scorer) Score(ctx context.Context, in ScoreInput) (ScoreReport, error) {
	ctx, span := tracer.StartSpan(ctx, "scorer.score",
		trace.WithAttributes(tracer.StringAttr("secretary", in.Secretary.ID)),
	)
	defer span.End()

	prompt := ScorerPrompt(in, s.deps.Config.AdviceCharLimit)
	resp := s.deps.Sender.Send(ctx, in.Secretary, domain.TextPrompt(prompt), nil, ScorerSystemPrompt)
	if resp.Failed() {
		err := domain.NewDomainError("Scorer.Score", domain.ErrProviderError, resp.Error)
		tracer.RecordError(span, err)
		return ScoreReport{}, err
	}

	verdicts, ignored, err := s.parseVerdicts(resp.Text, in.scoredIDs())
	if err != nil {
		tracer.RecordError(span, err)
		return ScoreReport{}, err
	}

	report := ScoreReport{Verdicts: verdicts, Ignored: ignored}
	ids := make([]string, 0, len(verdicts))
	for id := range verdicts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		st, err := s.deps.Stats.Record(ctx, id, verdicts[id])
		if err != nil {
			err = domain.WrapOp("Scorer.Score", err)
			tracer.RecordError(span, err)
			return report, err
		}
		report.Stats = append(report.Stats, st)
	}

	span.SetAttributes(tracer.IntAttr("verdicts", len(verdicts)))
	tracer.SetOK(span)
	return report, nil
}

// parseVerdicts maps the reply onto known agent ids. Unknown ids and
// invalid verdicts are skipped one by one.
func (s *Scorer) parseVerdicts(reply string, known []string) (map[string]domain.Verdict, []string, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, nil, err
	}
	var obj interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, nil, domain.NewDomainError("Scorer.parseVerdicts", domain.ErrUnparseableVerdict, err.Error())
	}
	if err := s.verdicts.Validate(obj); err != nil {
		return nil, nil, domain.NewDomainError("Scorer.parseVerdicts", domain.ErrUnparseableVerdict, err.Error())
	}

	byID := make(map[string]string, len(known))
	for _, id := range known {
		byID[strings.ToLower(id)] = id
	}

	verdicts := make(map[string]domain.Verdict)
	var ignored []string
	for key, val := range obj.(map[string]interface{}) {
		id, ok := byID[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			ignored = append(ignored, key)
			continue
		}
		str, _ := val.(string)
		str = strings.ToLower(strings.TrimSpace(str))
		if err := s.verdict.Validate(str); err != nil {
			ignored = append(ignored, key)
			continue
		}
		v, err := domain.ParseVerdict(str)
		if err != nil {
			ignored = append(ignored, key)
			continue
		}
		verdicts[id] = v
	}
	sort.Strings(ignored)

	if len(verdicts) == 0 {
		return nil, ignored, domain.NewDomainError("Scorer.parseVerdicts", domain.ErrUnparseableVerdict, "no recognized verdicts")
	}
	return verdicts, ignored, nil
}

// ScoreTask is a scoring round running off the critical path. Its outcome
// is only observable through Wait and the event stream.
type ScoreTask struct {
	done   chan struct{}
	report ScoreReport
	err    error
}

// Done is closed when the task finishes.
func (t *ScoreTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes and returns its outcome.
func (t *ScoreTask) Wait() (ScoreReport, error) {
	<-t.done
	return t.report, t.err
}

// Start launches Score detached from ctx's cancellation, bounded by the
// configured timeout. Failures are logged and published, never returned to
// the asker.
func (s *Scorer) Start(ctx context.Context, in ScoreInput) *ScoreTask {
	task := &ScoreTask{done: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.Config.Timeout)

	go func() {
		defer close(task.done)
		defer cancel()

		publishEvent(s.deps.Bus, ctx, domain.EventAgentThinking, in.Secretary.ID, "Secretary is scoring the council", nil)
		task.report, task.err = s.Score(ctx, in)
		if task.err != nil {
			s.deps.Logger.Warn("scorer: scoring skipped", "secretary", in.Secretary.ID, "error", task.err)
			publishEvent(s.deps.Bus, ctx, domain.EventError, in.Secretary.ID, "Scoring failed: "+task.err.Error(), nil)
			return
		}
		s.deps.Logger.Info("scorer: stats updated", "secretary", in.Secretary.ID, "verdicts", len(task.report.Verdicts))
		publishEvent(s.deps.Bus, ctx, domain.EventInfo, in.Secretary.ID, summarizeVerdicts(task.report), task.report.Verdicts)
	}()
	return task
}

func summarizeVerdicts(r ScoreReport) string {
	parts := make([]string, 0, len(r.Stats))
	for _, st := range r.Stats {
		parts = append(parts, fmt.Sprintf("%s %s (%.0f%%)", st.AgentID, r.Verdicts[st.AgentID], st.Efficiency()))
	}
	return "Scoring: " + strings.Join(parts, ", ")
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// stripCodeFences removes markdown code fences if the model wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ExtractJSON returns the JSON object embedded in a model reply. The reply
// may be fenced or surrounded by prose. A balanced-brace scan from the first
// "{" is tried first, string-aware and then brace-only; the whole trimmed
// reply is the last resort.
func ExtractJSON(text string) (string, error) {
	s := stripCodeFences(text)
	if s == "" {
		return "", domain.NewDomainError("ExtractJSON", domain.ErrUnparseableVerdict, "empty reply")
	}

	for _, stringAware := range []bool{true, false} {
		if obj, ok := scanObject(s, stringAware); ok && json.Valid([]byte(obj)) {
			return obj, nil
		}
	}
	if json.Valid([]byte(s)) {
		return s, nil
	}
	return "", domain.NewDomainError("ExtractJSON", domain.ErrUnparseableVerdict, "no JSON object found")
}

// scanObject returns the first balanced {...} span of s.
func scanObject(s string, stringAware bool) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = stringAware
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
