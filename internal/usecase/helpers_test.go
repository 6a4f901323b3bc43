package usecase

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"

	"council-ai/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Sender ---

type sendCall struct {
	Agent   domain.Agent
	Prompt  domain.Prompt
	History []domain.Message
	System  string
}

type sendFunc func(ctx context.Context, call sendCall) domain.ProviderResponse

// fakeSender records every call and answers through fn.
type fakeSender struct {
	mu    sync.Mutex
	calls []sendCall
	fn    sendFunc
}

func newFakeSender(fn sendFunc) *fakeSender {
	return &fakeSender{fn: fn}
}

func (f *fakeSender) Send(ctx context.Context, agent domain.Agent, prompt domain.Prompt, history []domain.Message, systemPrompt string) domain.ProviderResponse {
	call := sendCall{
		Agent:   agent,
		Prompt:  prompt,
		History: append([]domain.Message(nil), history...),
		System:  systemPrompt,
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	resp := f.fn(ctx, call)
	if resp.AgentID == "" {
		resp.AgentID = agent.ID
	}
	if resp.AgentName == "" {
		resp.AgentName = agent.DisplayName()
	}
	if resp.Model == "" {
		resp.Model = agent.Model
	}
	return resp
}

func (f *fakeSender) Calls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

func (f *fakeSender) CallsFor(agentID string) []sendCall {
	var out []sendCall
	for _, c := range f.Calls() {
		if c.Agent.ID == agentID {
			out = append(out, c)
		}
	}
	return out
}

func reply(text string) domain.ProviderResponse {
	return domain.ProviderResponse{Text: text}
}

func failure(msg string) domain.ProviderResponse {
	return domain.ProviderResponse{Error: msg}
}

// --- ToolRunner ---

type fakeRunner struct {
	mu   sync.Mutex
	runs []domain.ToolDirective
	fn   func(d domain.ToolDirective) domain.ToolOutput
}

func (r *fakeRunner) Run(_ context.Context, d domain.ToolDirective) domain.ToolOutput {
	r.mu.Lock()
	r.runs = append(r.runs, d)
	r.mu.Unlock()
	if r.fn == nil {
		return domain.ToolOutput{Output: "ok: " + d.Primary}
	}
	return r.fn(d)
}

func (r *fakeRunner) Runs() []domain.ToolDirective {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ToolDirective(nil), r.runs...)
}

// --- HistoryStore ---

type memHistory struct {
	mu   sync.Mutex
	msgs []domain.Message
	err  error
}

func (h *memHistory) Load(context.Context) ([]domain.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Message(nil), h.msgs...), nil
}

func (h *memHistory) Append(_ context.Context, msgs ...domain.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.msgs = append(h.msgs, msgs...)
	return nil
}

func (h *memHistory) DropOldest(_ context.Context, n int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > len(h.msgs) {
		n = len(h.msgs)
	}
	h.msgs = append([]domain.Message(nil), h.msgs[n:]...)
	return nil
}

func (h *memHistory) Clear(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = nil
	return nil
}

func (h *memHistory) Messages() []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Message(nil), h.msgs...)
}

// --- StatsStore ---

type memStats struct {
	mu    sync.Mutex
	stats map[string]domain.AgentStats
}

func newMemStats() *memStats {
	return &memStats{stats: make(map[string]domain.AgentStats)}
}

func (s *memStats) Get(_ context.Context, id string) (domain.AgentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[id]
	if !ok {
		return domain.AgentStats{AgentID: id}, nil
	}
	return st, nil
}

func (s *memStats) All(context.Context) ([]domain.AgentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AgentStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (s *memStats) Record(_ context.Context, id string, v domain.Verdict) (domain.AgentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[id]
	st.AgentID = id
	st.Apply(v)
	s.stats[id] = st
	return st, nil
}

func (s *memStats) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = make(map[string]domain.AgentStats)
	return nil
}

// --- AgentStore ---

type memAgents struct {
	agents []domain.Agent
	roles  domain.Roles
	perms  domain.PermissionSet
}

func (m *memAgents) Agents(context.Context) ([]domain.Agent, error) {
	return append([]domain.Agent(nil), m.agents...), nil
}

func (m *memAgents) Agent(_ context.Context, id string) (domain.Agent, error) {
	for _, a := range m.agents {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Agent{}, domain.ErrAgentNotFound
}

func (m *memAgents) SaveAgent(_ context.Context, a domain.Agent) error {
	m.agents = append(m.agents, a)
	return nil
}

func (m *memAgents) RemoveAgent(context.Context, string) error { return nil }

func (m *memAgents) Roles(context.Context) (domain.Roles, error) { return m.roles, nil }

func (m *memAgents) SetRole(context.Context, string, string) error { return nil }

func (m *memAgents) Permissions(context.Context) (domain.PermissionSet, error) { return m.perms, nil }

func (m *memAgents) SetPermissions(_ context.Context, p domain.PermissionSet) error {
	m.perms = p
	return nil
}

// --- EventBus ---

// recordingBus delivers synchronously and keeps every event.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }

func (b *recordingBus) SubscribeAll(domain.EventHandler) func() { return func() {} }

func (b *recordingBus) Close() {}

func (b *recordingBus) OfType(t domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testAgent(id, model string) domain.Agent {
	return domain.Agent{ID: id, Name: id, Provider: "fake", Model: model, Enabled: true}
}
