package handlers

import (
	"net/http"
	"strconv"

	"github.com/strayline/llm-gateway/internal/gateway/httperr"
	"github.com/strayline/llm-gateway/internal/gateway/usage"
)

const dateLayout = "2006-01-02"

type UsageHandler struct {
	tracker *usage.Tracker
}

func NewUsageHandler(tracker *usage.Tracker) *UsageHandler {
	return &UsageHandler{tracker: tracker}
}

type usagePeriod struct {
	Days  int    `json:"days"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type usageSummary struct {
	TotalRequests       int64   `json:"total_requests"`
	TotalInputTokens    int64   `json:"total_input_tokens"`
	TotalOutputTokens   int64   `json:"total_output_tokens"`
	TotalTokens         int64   `json:"total_tokens"`
	TotalCostUSD        float64 `json:"total_cost_usd"`
	AvgDailyCostUSD     float64 `json:"avg_daily_cost_usd"`
	AvgTokensPerRequest float64 `json:"avg_tokens_per_request"`
}

type usageDay struct {
	Date         string  `json:"date"`
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

type usageModel struct {
	Model    string `json:"model"`
	Requests int64  `json:"requests"`
}

type usageResponse struct {
	TeamID   string       `json:"team_id"`
	TeamName string       `json:"team_name"`
	Period   usagePeriod  `json:"period"`
	Summary  usageSummary `json:"summary"`
	Daily    []usageDay   `json:"daily"`
	ByModel  []usageModel `json:"by_model"`
}

// HandleGetUsage handles GET /v1/usage. The window defaults to the last
// 30 days; a partial window is never an error, it just reports zeros.
func (h *UsageHandler) HandleGetUsage(w http.ResponseWriter, r *http.Request) {
	team, ok := TeamFromContext(r.Context())
	if !ok {
		httperr.Write(w, httperr.AuthInvalid("Missing API key. Include x-api-key header."))
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httperr.Write(w, httperr.Validation("days must be an integer"))
			return
		}
		days = parsed
	}
	if days < 1 || days > 365 {
		httperr.Write(w, httperr.Validation("days must be between 1 and 365"))
		return
	}

	s := h.tracker.Summarize(r.Context(), team.TeamID, days)

	daily := make([]usageDay, 0, len(s.Daily))
	for _, d := range s.Daily {
		daily = append(daily, usageDay(d))
	}
	byModel := make([]usageModel, 0, len(s.ByModel))
	for _, m := range s.ByModel {
		byModel = append(byModel, usageModel{Model: m.Model, Requests: m.Count})
	}

	writeJSON(w, http.StatusOK, usageResponse{
		TeamID:   team.TeamID,
		TeamName: team.TeamName,
		Period: usagePeriod{
			Days:  s.Days,
			Start: s.Start.Format(dateLayout),
			End:   s.End.Format(dateLayout),
		},
		Summary: usageSummary{
			TotalRequests:       s.TotalRequests,
			TotalInputTokens:    s.TotalInputTokens,
			TotalOutputTokens:   s.TotalOutputTokens,
			TotalTokens:         s.TotalInputTokens + s.TotalOutputTokens,
			TotalCostUSD:        s.TotalCostUSD,
			AvgDailyCostUSD:     s.AvgDailyCostUSD,
			AvgTokensPerRequest: s.AvgTokensPerRequest,
		},
		Daily:   daily,
		ByModel: byModel,
	})
}
