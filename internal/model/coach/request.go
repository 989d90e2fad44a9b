package coach

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action types accepted by the insight endpoints.
const (
	ActionArguments = "arguments"
	ActionOutcome   = "outcome"
)

// Speaker ids; anything other than SpeakerUser is the counterpart.
const SpeakerUser = "user"

// Message is one utterance of the conversation being coached.
type Message struct {
	Text      string `json:"text"`
	SpeakerID string `json:"speakerId"`
}

// AnalyzeRequest asks for coaching on the current conversation. When
// Messages is empty the session transcripts are used instead.
type AnalyzeRequest struct {
	SessionID  string    `json:"sessionId,omitempty"`
	ActionType string    `json:"actionType"`
	Goals      Goals     `json:"goals,omitempty"`
	Briefing   string    `json:"briefing,omitempty"`
	Messages   []Message `json:"messages,omitempty"`
}

// ValidAction reports whether the action type has a prompt.
func (r AnalyzeRequest) ValidAction() bool {
	return r.ActionType == ActionArguments || r.ActionType == ActionOutcome
}

// Goals accepts either a single free-text string or a list of strings.
type Goals []string

func (g *Goals) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		if strings.TrimSpace(text) == "" {
			*g = nil
			return nil
		}
		*g = Goals{text}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("goals must be a string or a list of strings: %w", err)
	}
	*g = list
	return nil
}

// ActionItem is one checklist entry prepared before the call.
type ActionItem struct {
	ID        int    `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// ActionItemsRequest asks which checklist items the conversation has covered.
// Items listed in AlreadyCompletedIDs are never un-completed.
type ActionItemsRequest struct {
	SessionID           string       `json:"sessionId,omitempty"`
	Briefing            string       `json:"briefing,omitempty"`
	Messages            []Message    `json:"messages,omitempty"`
	ActionItems         []ActionItem `json:"actionItems"`
	AlreadyCompletedIDs []int        `json:"alreadyCompletedIds,omitempty"`
}
