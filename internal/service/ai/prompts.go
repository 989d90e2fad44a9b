package ai

import (
	"fmt"
	"strings"

	"github.com/parley-ai/parley/backend/internal/model/coach"
)

const (
	insightHistoryLimit     = 10
	metricsHistoryLimit     = 15
	actionItemsHistoryLimit = 20

	noBriefing     = "No briefing context available."
	noConversation = "No conversation yet."
)

var actionPrompts = map[string]string{
	coach.ActionArguments: `You are a real-time negotiation coach. Provide 1-3 SHORT argument suggestions.

CRITICAL FORMAT RULES:
• Start each point with a bullet (•)
• Each point must be ONE short sentence (max 10-15 words)
• Use simple, direct language that can be read at a glance
• No explanations, no context, no fluff - just the argument
• Reference specific facts/numbers from the briefing

Example format:
• Point to their 15% market share decline as leverage
• Counter their price claim with competitor's $X offer
• Mention the 90-day payment terms flexibility`,

	coach.ActionOutcome: `You are a real-time negotiation analyst. Provide 1-3 SHORT outcome observations.

CRITICAL FORMAT RULES:
• Start each point with a bullet (•)
• Each point must be ONE short sentence (max 10-15 words)
• Focus on: progress toward goals, risks emerging, opportunities spotted
• No explanations, no context - just the observation
• Be direct and actionable

Example format:
• On track for target price, watch delivery timeline
• Risk: they're pushing for exclusivity clause
• Opportunity: they mentioned budget flexibility`,
}

const metricsPrompt = `You are a real-time negotiation metrics analyzer. Based on the briefing context and conversation, evaluate the current negotiation state.

Return ONLY a JSON object with exactly these three metrics (0-100 scale):
- value: How much value is the user capturing? (0=poor deal, 100=excellent deal based on target position)
- risk: Current risk level for the user (0=very safe, 100=very risky based on briefing risks)
- outcome: Likelihood of achieving stated goals (0=unlikely, 100=very likely based on strategy)

Consider from the briefing:
- Target position vs current discussion points
- Identified risks and whether they're being mitigated
- Leverage points being used or missed
- Progress toward opening/target/walkaway positions

Respond with ONLY valid JSON, no other text:
{"value": <number>, "risk": <number>, "outcome": <number>}`

const actionItemsPrompt = `You are tracking a negotiation checklist during a live call. Decide which checklist items the conversation has clearly addressed.

Rules:
- Mark an item only when the conversation explicitly covers it
- Never guess; when unsure leave the item open
- Only use ids from the checklist

Respond with ONLY valid JSON, no other text:
{"completedIds": [<id>, ...]}`

const (
	insightInstruction = "Provide your insights:"
	metricsInstruction = "Analyze and return metrics JSON:"
)

// formatActionItems renders the open checklist items as the model instruction.
func formatActionItems(items []coach.ActionItem, done map[int]bool) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if done[item.ID] || strings.TrimSpace(item.Text) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s", item.ID, strings.TrimSpace(item.Text)))
	}
	return "Checklist:\n" + strings.Join(lines, "\n") + "\n\nReturn the completed ids JSON:"
}

// formatConversation renders the last limit messages as "User:"/"Other:" lines.
func formatConversation(messages []coach.Message, limit int) string {
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		speaker := "Other"
		if msg.SpeakerID == coach.SpeakerUser {
			speaker = "User"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, text))
	}
	return strings.Join(lines, "\n")
}

func formatGoals(goals []string) string {
	kept := make([]string, 0, len(goals))
	for _, g := range goals {
		if g = strings.TrimSpace(g); g != "" {
			kept = append(kept, "- "+g)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return "User's Goals:\n" + strings.Join(kept, "\n")
}

func formatBriefing(briefing string) string {
	if strings.TrimSpace(briefing) == "" {
		return noBriefing
	}
	return strings.TrimSpace(briefing)
}
