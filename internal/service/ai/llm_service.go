package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/parley-ai/parley/backend/internal/config"
	"github.com/parley-ai/parley/backend/internal/model/coach"
)

var (
	ErrUnknownAction  = errors.New("unknown action type")
	ErrStreamDisabled = errors.New("streaming disabled in configuration")
)

var jsonObject = regexp.MustCompile(`\{[^}]+\}`)

// Service produces live negotiation coaching from a conversation.
type Service struct {
	cfg    config.AIConfig
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *log.Logger
}

// NewService builds the coaching chain on top of the configured Ark model.
func NewService(ctx context.Context, cfg config.AIConfig, logger *log.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newServiceWithModel(ctx, chatModel, cfg, logger)
}

func newServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig, logger *log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("Briefing Context:\n{briefing}\n\n{goals}\n\nCurrent Conversation:\n{conversation}\n\n{instruction}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile coach chain: %w", err)
	}

	return &Service{cfg: cfg, chain: runnable, logger: logger}, nil
}

// StreamingEnabled reports whether SSE output is allowed.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Insights returns 1-3 bullet suggestions for the requested action.
func (s *Service) Insights(ctx context.Context, req coach.AnalyzeRequest) (string, error) {
	input, err := s.insightInput(req)
	if err != nil {
		return "", err
	}

	resp, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run coach chain: %w", err)
	}

	s.logger.Debug("insights generated", "action", req.ActionType, "length", len(resp.Content))
	return strings.TrimSpace(resp.Content), nil
}

// StreamInsights streams the insight text as it is generated.
func (s *Service) StreamInsights(ctx context.Context, req coach.AnalyzeRequest) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, ErrStreamDisabled
	}

	input, err := s.insightInput(req)
	if err != nil {
		return nil, err
	}

	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to stream coach chain: %w", err)
	}
	return stream, nil
}

// Metrics scores the conversation. It falls back to neutral scores when there
// is nothing to analyze or the model answer cannot be parsed.
func (s *Service) Metrics(ctx context.Context, req coach.AnalyzeRequest) (coach.Metrics, error) {
	conversation := formatConversation(req.Messages, metricsHistoryLimit)
	if conversation == "" {
		return coach.NeutralMetrics(), nil
	}

	resp, err := s.chain.Invoke(ctx, map[string]any{
		"system":       metricsPrompt,
		"briefing":     formatBriefing(req.Briefing),
		"goals":        formatGoals(req.Goals),
		"conversation": conversation,
		"instruction":  metricsInstruction,
	})
	if err != nil {
		return coach.NeutralMetrics(), fmt.Errorf("failed to run metrics chain: %w", err)
	}

	metrics, ok := parseMetrics(resp.Content)
	if !ok {
		s.logger.Warn("could not parse metrics JSON", "content", resp.Content)
		return coach.NeutralMetrics(), nil
	}
	return metrics, nil
}

// ActionItems reports which checklist items the conversation has covered.
// Items already completed stay completed; without a conversation, or when the
// model answer cannot be used, the previous state is returned unchanged.
func (s *Service) ActionItems(ctx context.Context, req coach.ActionItemsRequest) (coach.ActionItemsResponse, error) {
	unchanged := coach.UnchangedActionItems(req.AlreadyCompletedIDs)

	conversation := formatConversation(req.Messages, actionItemsHistoryLimit)
	if conversation == "" {
		return unchanged, nil
	}

	done := make(map[int]bool, len(req.AlreadyCompletedIDs)+len(req.ActionItems))
	for _, id := range req.AlreadyCompletedIDs {
		done[id] = true
	}
	open := 0
	for _, item := range req.ActionItems {
		if item.Completed {
			done[item.ID] = true
		}
		if !done[item.ID] {
			open++
		}
	}
	if open == 0 {
		return unchanged, nil
	}

	resp, err := s.chain.Invoke(ctx, map[string]any{
		"system":       actionItemsPrompt,
		"briefing":     formatBriefing(req.Briefing),
		"goals":        "",
		"conversation": conversation,
		"instruction":  formatActionItems(req.ActionItems, done),
	})
	if err != nil {
		return unchanged, fmt.Errorf("failed to run action items chain: %w", err)
	}

	detected, ok := parseCompletedIDs(resp.Content)
	if !ok {
		s.logger.Warn("could not parse action items JSON", "content", resp.Content)
		return unchanged, nil
	}

	result := unchanged
	for _, item := range req.ActionItems {
		if done[item.ID] || !detected[item.ID] {
			continue
		}
		done[item.ID] = true
		result.CompletedIDs = append(result.CompletedIDs, item.ID)
		result.NewlyCompletedIDs = append(result.NewlyCompletedIDs, item.ID)
	}

	s.logger.Debug("action items analyzed", "open", open, "newly_completed", len(result.NewlyCompletedIDs))
	return result, nil
}

func (s *Service) insightInput(req coach.AnalyzeRequest) (map[string]any, error) {
	system, ok := actionPrompts[req.ActionType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.ActionType)
	}

	conversation := formatConversation(req.Messages, insightHistoryLimit)
	if conversation == "" {
		conversation = noConversation
	}

	return map[string]any{
		"system":       system,
		"briefing":     formatBriefing(req.Briefing),
		"goals":        formatGoals(req.Goals),
		"conversation": conversation,
		"instruction":  insightInstruction,
	}, nil
}

func parseMetrics(content string) (coach.Metrics, bool) {
	raw := jsonObject.FindString(strings.TrimSpace(content))
	if raw == "" {
		return coach.Metrics{}, false
	}

	var scores map[string]float64
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return coach.Metrics{}, false
	}

	pick := func(key string) int {
		v, ok := scores[key]
		if !ok {
			return 50
		}
		return clamp(int(v), 0, 100)
	}

	return coach.Metrics{
		Value:   pick("value"),
		Risk:    pick("risk"),
		Outcome: pick("outcome"),
	}, true
}

func parseCompletedIDs(content string) (map[int]bool, bool) {
	raw := jsonObject.FindString(strings.TrimSpace(content))
	if raw == "" {
		return nil, false
	}

	var body struct {
		CompletedIDs []int `json:"completedIds"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, false
	}

	ids := make(map[int]bool, len(body.CompletedIDs))
	for _, id := range body.CompletedIDs {
		ids[id] = true
	}
	return ids, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
