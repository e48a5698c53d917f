// Package reason turns retrieved clause text into structured output via a
// generative model: entity extraction from the user query and decision
// synthesis over retrieved clauses. Model output is untrusted free text;
// every operation returns a well-typed value under every failure mode, so
// downstream consumers never special-case a missing result.
package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clausemind/clausemind/engine/domain"
)

// Generator is a single request/response call to a generative model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Reasoner runs entity extraction and decision synthesis, one model round
// trip each.
type Reasoner struct {
	gen    Generator
	logger *slog.Logger
}

// New creates a Reasoner. A nil logger falls back to slog.Default().
func New(gen Generator, logger *slog.Logger) *Reasoner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reasoner{gen: gen, logger: logger}
}

const decisionPrompt = `You are a claims analyst assistant. A user has asked a question related to an insurance policy.
You are provided:
- A query from the user.
- Retrieved clauses from the policy document.

You must:
1. Understand the context from the user's query.
2. Analyze relevant clauses.
3. Return a structured JSON in the format:

{
  "decision": "approved/rejected",
  "amount": "if applicable",
  "justification": "why this decision was made",
  "referenced_clauses": ["exact text"]
}

---

User Query: %s

Retrieved Clauses:
%s

Please analyze the query and retrieved clauses to provide a decision. Be specific about which clauses support your decision.`

const entityPrompt = `Extract key entities from the following insurance query. Return as JSON:

Query: %s

Return JSON with these fields:
{
  "age": "extracted age or age range",
  "procedure": "medical procedure or treatment",
  "location": "geographic location",
  "policy_type": "type of insurance policy",
  "duration": "policy duration if mentioned"
}

If any field is not found, use "N/A".`

// ExtractEntities pulls the fixed entity fields out of a query. It never
// fails: a model error yields all-unknown entities with an error marker,
// and unparsable output yields all-unknown entities.
func (r *Reasoner) ExtractEntities(ctx context.Context, query string) domain.QueryEntities {
	reply, err := r.gen.Generate(ctx, fmt.Sprintf(entityPrompt, query))
	if err != nil {
		r.logger.Warn("entity extraction model call failed", "err", err)
		e := domain.UnknownEntities()
		e.Error = err.Error()
		return e
	}

	raw, ok := extractJSON(reply)
	if !ok {
		r.logger.Warn("entity extraction reply had no JSON object", "reply_len", len(reply))
		return domain.UnknownEntities()
	}

	var e domain.QueryEntities
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		r.logger.Warn("entity extraction reply unparsable", "err", err)
		return domain.UnknownEntities()
	}
	fillUnknown(&e.Age)
	fillUnknown(&e.Procedure)
	fillUnknown(&e.Location)
	fillUnknown(&e.PolicyType)
	fillUnknown(&e.Duration)
	return e
}

// Reason synthesizes a decision from the query and retrieved clause
// texts. Parse failures yield DecisionError with the raw model reply kept
// in Justification for diagnosis; fields absent from parsed output are
// backfilled with their defaults. Model-call failures are absorbed the
// same way and never propagate.
func (r *Reasoner) Reason(ctx context.Context, query string, retrievedTexts []string) domain.DecisionResult {
	var clauses strings.Builder
	for i, t := range retrievedTexts {
		fmt.Fprintf(&clauses, "Clause %d: %s\n\n", i+1, t)
	}

	reply, err := r.gen.Generate(ctx, fmt.Sprintf(decisionPrompt, query, clauses.String()))
	if err != nil {
		r.logger.Warn("decision model call failed", "err", err)
		return domain.DecisionResult{
			Decision:          domain.DecisionError,
			Amount:            domain.Unknown,
			Justification:     fmt.Sprintf("reasoning failed: %v", err),
			ReferencedClauses: []string{},
		}
	}

	raw, ok := extractJSON(reply)
	if !ok {
		return fallbackDecision(reply)
	}
	var res domain.DecisionResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		r.logger.Warn("decision reply unparsable", "err", err)
		return fallbackDecision(reply)
	}

	if res.Decision == "" {
		res.Decision = domain.DecisionError
	}
	if res.Amount == "" {
		res.Amount = domain.Unknown
	}
	if res.Justification == "" {
		res.Justification = domain.Unknown
	}
	if res.ReferencedClauses == nil {
		res.ReferencedClauses = []string{}
	}
	return res
}

// fallbackDecision is the deterministic result for an unparsable reply;
// the raw text rides along in Justification.
func fallbackDecision(reply string) domain.DecisionResult {
	return domain.DecisionResult{
		Decision:          domain.DecisionError,
		Amount:            domain.Unknown,
		Justification:     "failed to parse model response: " + reply,
		ReferencedClauses: []string{},
	}
}

// extractJSON returns the substring between the first '{' and the last
// '}' of s, tolerating prose around the object.
func extractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

func fillUnknown(field *string) {
	if strings.TrimSpace(*field) == "" {
		*field = domain.Unknown
	}
}
