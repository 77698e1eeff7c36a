// Package query answers building-maintenance questions: it retrieves a
// graph-grounded evidence set, renders it under the token budget, and asks
// the chat model for an answer citing element global ids. When retrieval
// finds nothing it returns an explicit no-data response instead of letting
// the model hallucinate.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/bimrag/pkg/ai"
	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/evidence"
	"github.com/OFFIS-RIT/bimrag/pkg/logger"
	"github.com/OFFIS-RIT/bimrag/pkg/retrieval"
)

// Client wires retrieval, evidence rendering, and answer generation.
type Client struct {
	aiClient  ai.GraphAIClient
	engine    *retrieval.Engine
	assembler *evidence.Assembler

	model         string
	systemPrompts []string
}

// NewClientParams configures a Client. Model empty selects the AI
// client's default chat model.
type NewClientParams struct {
	AIClient  ai.GraphAIClient
	Engine    *retrieval.Engine
	Assembler *evidence.Assembler

	Model         string
	SystemPrompts []string
}

// NewClient creates a query client.
func NewClient(params NewClientParams) *Client {
	c := &Client{
		aiClient:      params.AIClient,
		engine:        params.Engine,
		assembler:     params.Assembler,
		model:         params.Model,
		systemPrompts: params.SystemPrompts,
	}
	if c.assembler == nil {
		c.assembler = evidence.NewAssembler(evidence.NewAssemblerParams{})
	}
	return c
}

// Answer holds the generated response together with the evidence that
// grounded it, so callers can surface citations and staleness.
type Answer struct {
	Text     string             `json:"text"`
	CitedIDs []string           `json:"cited_ids,omitempty"`
	Evidence common.EvidenceSet `json:"evidence"`
	NoData   bool               `json:"no_data"`
}

// answerSchema is the structured response the chat model fills in.
type answerSchema struct {
	Answer   string   `json:"answer" jsonschema_description:"The direct answer in Markdown, in the language of the question."`
	CitedIDs []string `json:"cited_ids" jsonschema_description:"The global id of every evidence element the answer relies on."`
}

// Query answers the last user message in the conversation.
func (c *Client) Query(ctx context.Context, msgs []ai.ChatMessage) (Answer, error) {
	if len(msgs) == 0 {
		return Answer{}, fmt.Errorf("no messages to answer")
	}
	question := msgs[len(msgs)-1].Message

	set, err := c.engine.Retrieve(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	// no relevant evidence: explicit no-data response instead of hallucinating
	if set.Empty() {
		text, err := c.generateNoDataResponse(ctx, question)
		if err != nil {
			return Answer{}, err
		}
		return Answer{Text: text, Evidence: set, NoData: true}, nil
	}

	rendered, count, err := c.assembler.Render(set)
	if err != nil {
		return Answer{}, err
	}
	if count < len(set.Nodes) {
		logger.Warn("Evidence truncated by token budget", "rendered", count, "retrieved", len(set.Nodes))
	}
	if set.Stale {
		rendered += "\n" + ai.StaleIndexNotice
	}

	prompt := fmt.Sprintf(ai.QueryPrompt, rendered)
	systemPrompts := append([]string{prompt}, c.systemPrompts...)
	if len(msgs) > 1 {
		systemPrompts = append(systemPrompts, renderHistory(msgs[:len(msgs)-1]))
	}

	generateOpts := []ai.GenerateOption{
		ai.WithSystemPrompts(systemPrompts...),
	}
	if c.model != "" {
		generateOpts = append(generateOpts, ai.WithModel(c.model))
	}

	var resp answerSchema
	err = c.aiClient.GenerateCompletionWithFormat(
		ctx,
		"maintenance_answer",
		"Answer to a building maintenance question, citing the global ids of the evidence elements it relies on.",
		question,
		&resp,
		generateOpts...,
	)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	return Answer{
		Text:     resp.Answer,
		CitedIDs: filterCitations(resp.CitedIDs, set),
		Evidence: set,
	}, nil
}

// renderHistory folds earlier conversation turns into one system prompt;
// only the last user message is answered against the evidence.
func renderHistory(msgs []ai.ChatMessage) string {
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Message)
	}
	return b.String()
}

// filterCitations keeps only cited ids that actually occur in the evidence
// set, deduplicated in citation order. The model cannot introduce an
// element the retrieval never produced.
func filterCitations(cited []string, set common.EvidenceSet) []string {
	known := make(map[string]struct{}, len(set.Nodes))
	for _, en := range set.Nodes {
		known[en.Node.GlobalID] = struct{}{}
	}

	var out []string
	seen := make(map[string]struct{}, len(cited))
	for _, id := range cited {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Ask answers a single free-standing question.
func (c *Client) Ask(ctx context.Context, question string) (Answer, error) {
	return c.Query(ctx, []ai.ChatMessage{{Role: "user", Message: question}})
}

func (c *Client) generateNoDataResponse(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(ai.NoDataPrompt, question)

	generateOpts := []ai.GenerateOption{}
	if c.model != "" {
		generateOpts = append(generateOpts, ai.WithModel(c.model))
	}

	resp, err := c.aiClient.GenerateCompletion(ctx, prompt, generateOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate no-data response: %w", err)
	}
	return resp, nil
}
