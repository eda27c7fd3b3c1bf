// Package recall assembles memory fragments relevant to a free-text prompt.
//
// Recall is a recency plus substring heuristic, not semantic search. The
// most recent conversation turns are always returned; decisions and
// patterns are added when a prompt token occurs in their text.
package recall

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/trace"

	"github.com/HendryAvila/devmem/internal/memory"
	"github.com/HendryAvila/devmem/internal/telemetry"
)

// Defaults for the recall limits.
const (
	DefaultRecentTurns   = 20
	DefaultPerTokenLimit = 5
	DefaultMaxFragments  = 15
	dedupePrefixLen      = 50
)

// Kind tags the origin of a fragment.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindDecision     Kind = "decision"
	KindPattern      Kind = "pattern"
)

// Fragment is one recalled memory item.
type Fragment struct {
	Kind      Kind          `json:"kind"`
	SourceID  string        `json:"source_id"`
	Content   string        `json:"content"`
	Rationale string        `json:"rationale,omitempty"`
	Context   string        `json:"context,omitempty"`
	Language  string        `json:"language,omitempty"`
	Success   *bool         `json:"success,omitempty"`
	Frequency int           `json:"frequency,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Turns     []memory.Turn `json:"turns,omitempty"`
}

// Source is the read side of the project memory store.
type Source interface {
	RecentTurns(ctx context.Context, n int) ([]memory.Turn, error)
	ListDecisions(ctx context.Context) ([]memory.ArchitecturalDecision, error)
	ListPatterns(ctx context.Context) ([]memory.CodePattern, error)
}

// Engine answers recall queries against a Source.
type Engine struct {
	src          Source
	recentTurns  int
	perToken     int
	maxFragments int
	logger       *slog.Logger
	metrics      *telemetry.Metrics
	tracer       trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimits overrides the recent-turn window, the per-token match limit
// and the fragment cap. Non-positive values keep the defaults.
func WithLimits(recentTurns, perToken, maxFragments int) Option {
	return func(e *Engine) {
		if recentTurns > 0 {
			e.recentTurns = recentTurns
		}
		if perToken > 0 {
			e.perToken = perToken
		}
		if maxFragments > 0 {
			e.maxFragments = maxFragments
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTelemetry attaches metrics instruments and a tracer.
func WithTelemetry(m *telemetry.Metrics, tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.metrics = m
		e.tracer = tracer
	}
}

// New creates an Engine reading from src.
func New(src Source, opts ...Option) *Engine {
	e := &Engine{
		src:          src,
		recentTurns:  DefaultRecentTurns,
		perToken:     DefaultPerTokenLimit,
		maxFragments: DefaultMaxFragments,
		logger:       telemetry.Discard(),
		metrics:      telemetry.NoopMetrics(),
		tracer:       telemetry.Noop().Tracer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recall returns the fragments relevant to prompt: one fragment per
// conversation covering the most recent turns (newest conversation
// first), then per-token decision matches, then per-token pattern
// matches. Decisions and patterns are deduplicated on kind and content
// prefix and fill the remaining slots up to the fragment cap. The
// conversation block is never cut.
func (e *Engine) Recall(ctx context.Context, prompt string) ([]Fragment, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, e.tracer, "recall")
	defer span.End()

	tokens := Tokenize(prompt)

	turns, err := e.src.RecentTurns(ctx, e.recentTurns)
	if err != nil {
		return nil, fmt.Errorf("recall: recent turns: %w", err)
	}
	out := groupTurns(turns)

	var decisions []memory.ArchitecturalDecision
	var patterns []memory.CodePattern
	if len(tokens) > 0 {
		if decisions, err = e.src.ListDecisions(ctx); err != nil {
			return nil, fmt.Errorf("recall: decisions: %w", err)
		}
		if patterns, err = e.src.ListPatterns(ctx); err != nil {
			return nil, fmt.Errorf("recall: patterns: %w", err)
		}
	}

	var candidates []Fragment
	for _, tok := range tokens {
		candidates = append(candidates, e.matchDecisions(decisions, tok)...)
	}
	for _, tok := range tokens {
		candidates = append(candidates, e.matchPatterns(patterns, tok)...)
	}

	seen := map[string]bool{}
	for _, f := range candidates {
		if len(out) >= e.maxFragments {
			break
		}
		key := dedupeKey(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}

	span.SetAttributes(telemetry.AttrFragments.Int(len(out)))
	e.metrics.RecallCalls.Add(ctx, 1)
	e.metrics.RecallDuration.Record(ctx, time.Since(start).Seconds())
	e.logger.Debug("recall served",
		"terms", len(tokens), "fragments", len(out), "recent_turns", len(turns))
	return out, nil
}

// groupTurns folds newest-first turns into one fragment per conversation.
// Fragments keep newest-conversation-first order; turns inside a fragment
// are chronological.
func groupTurns(turns []memory.Turn) []Fragment {
	var out []Fragment
	index := map[string]int{}
	for _, t := range turns {
		i, ok := index[t.ConversationID]
		if !ok {
			i = len(out)
			index[t.ConversationID] = i
			out = append(out, Fragment{
				Kind:      KindConversation,
				SourceID:  t.ConversationID,
				Timestamp: t.Timestamp,
			})
		}
		out[i].Turns = append(out[i].Turns, t)
	}
	for i := range out {
		ts := out[i].Turns
		for a, b := 0, len(ts)-1; a < b; a, b = a+1, b-1 {
			ts[a], ts[b] = ts[b], ts[a]
		}
		var b strings.Builder
		for j, t := range ts {
			if j > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%s: %s", t.Role, t.Content)
		}
		out[i].Content = b.String()
	}
	return out
}

// matchDecisions returns up to perToken decisions whose text or rationale
// contains tok. decisions arrive newest first.
func (e *Engine) matchDecisions(decisions []memory.ArchitecturalDecision, tok string) []Fragment {
	var out []Fragment
	for _, d := range decisions {
		if len(out) >= e.perToken {
			break
		}
		if !memory.ContainsFold(d.Decision, tok) && !memory.ContainsFold(d.Rationale, tok) {
			continue
		}
		out = append(out, Fragment{
			Kind:      KindDecision,
			SourceID:  d.ID,
			Content:   d.Decision,
			Rationale: d.Rationale,
			Timestamp: d.Timestamp,
		})
	}
	return out
}

// matchPatterns returns up to perToken patterns whose text or context
// contains tok. patterns arrive by frequency, then recency.
func (e *Engine) matchPatterns(patterns []memory.CodePattern, tok string) []Fragment {
	var out []Fragment
	for _, p := range patterns {
		if len(out) >= e.perToken {
			break
		}
		d := p.Details()
		if !memory.ContainsFold(p.Pattern, tok) && !memory.ContainsFold(d.Context, tok) {
			continue
		}
		success := d.Success
		out = append(out, Fragment{
			Kind:      KindPattern,
			SourceID:  p.ID,
			Content:   p.Pattern,
			Context:   d.Context,
			Language:  d.Language,
			Success:   &success,
			Frequency: p.Frequency,
			Timestamp: p.CreatedAt,
		})
	}
	return out
}

func dedupeKey(f Fragment) string {
	r := []rune(f.Content)
	if len(r) > dedupePrefixLen {
		r = r[:dedupePrefixLen]
	}
	return string(f.Kind) + "\x00" + string(r)
}

// ─── Tokenizer ───────────────────────────────────────────────────────────────

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		the and for are but not you all any can had her was one our out has
		have this that with from they will would there their what about which
		when make like how why where does into just some than then them these
		those been were your its also only over such very should could may
		might must shall who whom whose here each both more most other same
		too did doing being having because while until after before above
		below again further once get got let use using`) {
		stopWords[w] = true
	}
}

// Tokenize strips punctuation, lowercases, splits on whitespace and drops
// tokens of two characters or fewer and stop words. Tokens keep prompt
// order and appear once.
func Tokenize(prompt string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, prompt)

	var out []string
	seen := map[string]bool{}
	for _, tok := range strings.Fields(cleaned) {
		if len([]rune(tok)) <= 2 || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}
