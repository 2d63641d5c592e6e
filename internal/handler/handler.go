package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/finsight/backend/internal/model"
	"github.com/finsight/backend/internal/service"
	"github.com/finsight/backend/internal/store"
)

type contextKey string

const userIDKey contextKey = "userID"

// Handler is the thin HTTP surface over the engine. Identity arrives as an
// X-User-ID header set by the auth layer in front of this service.
type Handler struct {
	store        store.Store
	forecaster   *service.Forecaster
	insights     *service.InsightsGenerator
	peers        *service.PeerComparisonService
	log          *logrus.Logger
	defaultModel string
}

// New creates a Handler.
func New(st store.Store, forecaster *service.Forecaster, insights *service.InsightsGenerator, peers *service.PeerComparisonService, defaultModel string, log *logrus.Logger) *Handler {
	return &Handler{
		store:        st,
		forecaster:   forecaster,
		insights:     insights,
		peers:        peers,
		log:          log,
		defaultModel: defaultModel,
	}
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods("GET")

	authed := r.PathPrefix("/").Subrouter()
	authed.Use(h.requireUser)
	authed.HandleFunc("/forecast", h.GetForecast).Methods("GET")
	authed.HandleFunc("/goal", h.GetGoal).Methods("GET")
	authed.HandleFunc("/goal", h.SetGoal).Methods("POST")
	authed.HandleFunc("/transactions", h.CreateTransaction).Methods("POST")
	authed.HandleFunc("/transactions", h.ListTransactions).Methods("GET")
	authed.HandleFunc("/insights", h.ListInsights).Methods("GET")
	authed.HandleFunc("/insights/generate", h.GenerateInsights).Methods("POST")
	authed.HandleFunc("/insights/health-score", h.GetHealthScore).Methods("GET")
	authed.HandleFunc("/insights/what-if", h.WhatIf).Methods("POST")
	authed.HandleFunc("/insights/comparison", h.GetComparison).Methods("GET")
	authed.HandleFunc("/insights/preferences", h.GetPreferences).Methods("GET")
	authed.HandleFunc("/insights/preferences", h.UpdatePreferences).Methods("PUT")
	authed.HandleFunc("/insights/{id}/read", h.MarkInsightRead).Methods("PUT")
	authed.HandleFunc("/insights/{id}/dismiss", h.DismissInsight).Methods("PUT")
	return r
}

// requireUser rejects requests without an X-User-ID header and stores the
// identity on the request context.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "Missing X-User-ID header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetForecast returns the balance projection for ?days= and ?model=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid days parameter")
			return
		}
		days = n
	}
	modelName := r.URL.Query().Get("model")
	if modelName == "" {
		modelName = h.defaultModel
	}

	points, err := h.forecaster.Forecast(r.Context(), userID(r), days, modelName)
	if err != nil {
		var insufficient *service.InsufficientDataError
		var unavailable *service.ModelUnavailableError
		switch {
		case errors.Is(err, service.ErrInvalidHorizon):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &insufficient):
			writeError(w, http.StatusNotFound, "No transactions")
		case errors.As(err, &unavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.log.WithError(err).Error("forecast failed")
			writeError(w, http.StatusInternalServerError, "Forecast failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// GetGoal returns the current month's budget goal and spend so far.
func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	monthStart := model.MonthStart(now)

	amount := 0.0
	goal, err := h.store.GetBudgetGoal(r.Context(), userID(r), monthStart)
	if err == nil {
		amount = goal.Amount
	} else if !errors.Is(err, store.ErrNotFound) {
		h.log.WithError(err).Error("get goal failed")
		writeError(w, http.StatusInternalServerError, "Failed to load goal")
		return
	}

	txs, err := h.store.ListTransactions(r.Context(), userID(r), &monthStart, nil)
	if err != nil {
		h.log.WithError(err).Error("list transactions failed")
		writeError(w, http.StatusInternalServerError, "Failed to load spending")
		return
	}
	var spent float64
	for _, tx := range txs {
		if tx.IsExpense() {
			spent += -tx.Amount
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"month":  monthStart.Format("2006-01-02"),
		"amount": amount,
		"spent":  spent,
	})
}

// SetGoal upserts the current month's budget goal.
func (h *Handler) SetGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	monthStart := model.MonthStart(time.Now().UTC())
	goal := &model.BudgetGoal{UserID: userID(r), Month: monthStart, Amount: req.Amount}
	if err := h.store.UpsertBudgetGoal(r.Context(), goal); err != nil {
		h.log.WithError(err).Error("set goal failed")
		writeError(w, http.StatusInternalServerError, "Failed to save goal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"month":  monthStart.Format("2006-01-02"),
		"amount": req.Amount,
	})
}

// CreateTransaction appends a transaction to the user's feed.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TxDate    string  `json:"tx_date"`
		Amount    float64 `json:"amount"`
		Label     string  `json:"label"`
		Notes     string  `json:"notes"`
		Recurring bool    `json:"recurring"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	txDate, err := time.Parse("2006-01-02", req.TxDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tx_date, expected YYYY-MM-DD")
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "Amount must be non-zero")
		return
	}

	tx := &model.Transaction{
		UserID:    userID(r),
		TxDate:    txDate,
		Amount:    req.Amount,
		Label:     req.Label,
		Notes:     req.Notes,
		Recurring: req.Recurring,
	}
	if err := h.store.CreateTransaction(r.Context(), tx); err != nil {
		h.log.WithError(err).Error("create transaction failed")
		writeError(w, http.StatusInternalServerError, "Failed to save transaction")
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// ListTransactions returns the user's feed, optionally bounded by
// ?start=YYYY-MM-DD and ?end=YYYY-MM-DD.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var start, end *time.Time
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start date")
			return
		}
		start = &t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end date")
			return
		}
		end = &t
	}

	txs, err := h.store.ListTransactions(r.Context(), userID(r), start, end)
	if err != nil {
		h.log.WithError(err).Error("list transactions failed")
		writeError(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}
	if txs == nil {
		txs = []*model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// ListInsights returns the user's insights, filtered by ?type=, ?priority=
// and ?unread_only=, newest and most urgent first.
func (h *Handler) ListInsights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.InsightFilter{
		Type:       model.InsightType(q.Get("type")),
		Priority:   model.InsightPriority(q.Get("priority")),
		UnreadOnly: q.Get("unread_only") == "true",
		Limit:      20,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		filter.Offset = n
	}

	insights, err := h.store.ListInsights(r.Context(), userID(r), filter)
	if err != nil {
		h.log.WithError(err).Error("list insights failed")
		writeError(w, http.StatusInternalServerError, "Failed to load insights")
		return
	}
	if insights == nil {
		insights = []*model.Insight{}
	}
	writeJSON(w, http.StatusOK, insights)
}

// GenerateInsights dispatches a background generation pass for the user.
func (h *Handler) GenerateInsights(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	go func() {
		if err := h.insights.GenerateAndStore(context.Background(), id); err != nil {
			h.log.WithError(err).WithField("user", id).Error("background insight generation failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Insight generation started"})
}

// MarkInsightRead flags an insight as read.
func (h *Handler) MarkInsightRead(w http.ResponseWriter, r *http.Request) {
	h.flagInsight(w, r, h.store.MarkInsightRead, "Insight marked as read")
}

// DismissInsight flags an insight as dismissed.
func (h *Handler) DismissInsight(w http.ResponseWriter, r *http.Request) {
	h.flagInsight(w, r, h.store.DismissInsight, "Insight dismissed")
}

func (h *Handler) flagInsight(w http.ResponseWriter, r *http.Request, flag func(context.Context, string, string) error, message string) {
	insightID := mux.Vars(r)["id"]
	if err := flag(r.Context(), userID(r), insightID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Insight not found")
			return
		}
		h.log.WithError(err).Error("update insight failed")
		writeError(w, http.StatusInternalServerError, "Failed to update insight")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

// GetHealthScore returns the latest stored health score, computing one on
// the fly for first-time users, together with component recommendations.
func (h *Handler) GetHealthScore(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	score, err := h.store.LatestHealthScore(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		score, err = h.insights.CalculateHealthScore(r.Context(), id)
		if err == nil {
			err = h.store.CreateHealthScore(r.Context(), score)
		}
	}
	if err != nil {
		h.log.WithError(err).Error("health score failed")
		writeError(w, http.StatusInternalServerError, "Failed to load health score")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"score":           score.Score,
		"components":      score.Components,
		"trend":           score.Trend,
		"calculated_at":   score.CalculatedAt,
		"recommendations": service.HealthRecommendations(score),
	})
}

// WhatIf evaluates a category-reduction scenario.
func (h *Handler) WhatIf(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category            string  `json:"category"`
		ReductionPercentage float64 `json:"reduction_percentage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Category == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ReductionPercentage < 0 || req.ReductionPercentage > 100 {
		writeError(w, http.StatusBadRequest, "reduction_percentage must be between 0 and 100")
		return
	}

	result, err := h.insights.WhatIf(r.Context(), userID(r), req.Category, req.ReductionPercentage)
	if err != nil {
		h.log.WithError(err).Error("what-if failed")
		writeError(w, http.StatusInternalServerError, "Failed to compute scenario")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetComparison returns the user's peer comparison.
func (h *Handler) GetComparison(w http.ResponseWriter, r *http.Request) {
	comparison, err := h.peers.UserComparison(r.Context(), userID(r))
	if err != nil {
		h.log.WithError(err).Error("peer comparison failed")
		writeError(w, http.StatusInternalServerError, "Failed to load comparison")
		return
	}
	writeJSON(w, http.StatusOK, comparison)
}

// GetPreferences returns the user's insight preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.store.GetUserPreferences(r.Context(), userID(r))
	if err != nil {
		h.log.WithError(err).Error("get preferences failed")
		writeError(w, http.StatusInternalServerError, "Failed to load preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences replaces the user's insight preferences.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InsightsEnabled     *bool `json:"insights_enabled"`
		PeerComparisonOptIn *bool `json:"peer_comparison_opt_in"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := userID(r)
	prefs, err := h.store.GetUserPreferences(r.Context(), id)
	if err != nil {
		h.log.WithError(err).Error("get preferences failed")
		writeError(w, http.StatusInternalServerError, "Failed to load preferences")
		return
	}
	if req.InsightsEnabled != nil {
		prefs.InsightsEnabled = *req.InsightsEnabled
	}
	if req.PeerComparisonOptIn != nil {
		prefs.PeerComparisonOptIn = *req.PeerComparisonOptIn
	}
	if err := h.store.UpsertUserPreferences(r.Context(), prefs); err != nil {
		h.log.WithError(err).Error("update preferences failed")
		writeError(w, http.StatusInternalServerError, "Failed to save preferences")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Preferences updated successfully"})
}
