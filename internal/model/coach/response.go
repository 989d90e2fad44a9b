package coach

// InsightsResponse is the synchronous analyze result.
type InsightsResponse struct {
	Insights   string `json:"insights"`
	ActionType string `json:"actionType"`
}

// Metrics scores the negotiation on three 0-100 axes.
type Metrics struct {
	Value   int `json:"value"`
	Risk    int `json:"risk"`
	Outcome int `json:"outcome"`
}

// NeutralMetrics is returned when there is nothing to score.
func NeutralMetrics() Metrics {
	return Metrics{Value: 50, Risk: 50, Outcome: 50}
}

// StreamEvent is one SSE payload of the streaming analyze endpoint.
type StreamEvent struct {
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
	ActionType string `json:"actionType,omitempty"`
	Finished   bool   `json:"finished,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ActionItemsResponse lists every completed item and the ones completed by
// this analysis.
type ActionItemsResponse struct {
	CompletedIDs      []int `json:"completedIds"`
	NewlyCompletedIDs []int `json:"newlyCompletedIds"`
}

// UnchangedActionItems keeps the previous completion state.
func UnchangedActionItems(alreadyCompleted []int) ActionItemsResponse {
	completed := make([]int, 0, len(alreadyCompleted))
	completed = append(completed, alreadyCompleted...)
	return ActionItemsResponse{CompletedIDs: completed, NewlyCompletedIDs: []int{}}
}
