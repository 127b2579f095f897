package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"

	"github.com/gartstein/interviews/internal/interviews/auth"
	"github.com/gartstein/interviews/internal/interviews/controller"
	e "github.com/gartstein/interviews/internal/interviews/errors"
	"github.com/gartstein/interviews/internal/interviews/metrics"
	"github.com/gartstein/interviews/internal/interviews/models"
	"github.com/gartstein/interviews/internal/interviews/search"
)

const maxBodyBytes = 1 << 20

// AuthService is the identity provider behind the auth endpoints.
type AuthService interface {
	SignUp(ctx context.Context, email, password, captchaToken string) (*auth.Session, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context, token string) error
	GetSession(ctx context.Context, token string) (*auth.Session, error)
}

// WorkspaceSource returns the loaded workspace of a signed-in user.
type WorkspaceSource interface {
	Workspace(ctx context.Context, userID string) (*controller.Workspace, error)
}

// HTTPHandler serves the REST API and the change feed.
type HTTPHandler struct {
	auth       AuthService
	workspaces WorkspaceSource
	limiter    *IPRateLimiter
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewHTTPHandler builds the handler. limiter may be nil to disable rate
// limiting on the auth endpoints.
func NewHTTPHandler(authSvc AuthService, workspaces WorkspaceSource, limiter *IPRateLimiter, m *metrics.Metrics, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		auth:       authSvc,
		workspaces: workspaces,
		limiter:    limiter,
		metrics:    m,
		logger:     logger.Named("http_handler"),
		now:        time.Now,
	}
}

// Register adds every route to mux.
func (h *HTTPHandler) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodGet, "/health", h.health},
		{http.MethodGet, "/metrics", h.serveMetrics},

		{http.MethodPost, "/v1/auth/signup", h.rateLimited(h.signUp)},
		{http.MethodPost, "/v1/auth/login", h.rateLimited(h.signIn)},
		{http.MethodPost, "/v1/auth/logout", h.signOut},
		{http.MethodGet, "/v1/auth/session", h.session},

		{http.MethodGet, "/v1/companies", h.listCompanies},
		{http.MethodPost, "/v1/companies", h.createCompany},
		{http.MethodGet, "/v1/companies/{id}", h.getCompany},
		{http.MethodPut, "/v1/companies/{id}", h.updateCompany},
		{http.MethodDelete, "/v1/companies/{id}", h.deleteCompany},

		{http.MethodPost, "/v1/companies/{id}/questions", h.addQuestion},
		{http.MethodDelete, "/v1/companies/{id}/questions", h.deleteQuestions},
		{http.MethodPost, "/v1/companies/{id}/questions/{qid}/answers", h.addAnswer},
		{http.MethodPut, "/v1/companies/{id}/questions/{qid}/answers/{aid}", h.updateAnswer},
		{http.MethodDelete, "/v1/companies/{id}/questions/{qid}/answers/{aid}", h.deleteAnswer},

		{http.MethodPost, "/v1/companies/{id}/schedules", h.addSchedule},
		{http.MethodDelete, "/v1/companies/{id}/schedules/{sid}", h.deleteSchedule},
		{http.MethodGet, "/v1/schedules", h.listSchedules},

		{http.MethodGet, "/v1/search", h.search},
		{http.MethodGet, "/v1/categories", h.categories},
		{http.MethodGet, "/v1/feed", h.feed},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("failed to register %s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to write response", zap.Error(err))
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := httpStatus(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	h.writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", e.ErrInvalidInput, err)
	}
	return nil
}

func (h *HTTPHandler) rateLimited(next runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		if h.limiter != nil {
			ip := h.limiter.ClientIP(r)
			if !h.limiter.Allow(ip) {
				h.logger.Warn("Rate limit exceeded", zap.String("ip", ip), zap.String("path", r.URL.Path))
				h.metrics.RecordAuthRejected("rate_limited")
				h.writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
		}
		next(w, r, params)
	}
}

// workspace resolves the caller's workspace, writing the error response
// itself when that fails.
func (h *HTTPHandler) workspace(w http.ResponseWriter, r *http.Request) (*controller.Workspace, bool) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, e.ErrUnauthenticated)
		return nil, false
	}
	ws, err := h.workspaces.Workspace(r.Context(), session.UserID)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return ws, true
}

func (h *HTTPHandler) health(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) serveMetrics(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	metrics.Handler().ServeHTTP(w, r)
}

type signUpRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *HTTPHandler) signUp(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	session, err := h.auth.SignUp(r.Context(), req.Email, req.Password, req.CaptchaToken)
	if err != nil {
		h.metrics.RecordAuthRejected(rejectReason(err))
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, session)
}

func (h *HTTPHandler) signIn(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	session, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.RecordAuthRejected(rejectReason(err))
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *HTTPHandler) signOut(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, e.ErrUnauthenticated)
		return
	}
	if err := h.auth.SignOut(r.Context(), session.Token); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) session(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, e.ErrUnauthenticated)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

type companiesResponse struct {
	State     string        `json:"state"`
	Loading   bool          `json:"loading"`
	Companies []companyView `json:"companies"`
}

func (h *HTTPHandler) listCompanies(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	now := h.now()
	companies := ws.Companies()
	resp := companiesResponse{
		State:     ws.State().String(),
		Loading:   ws.Loading(),
		Companies: make([]companyView, 0, len(companies)),
	}
	for _, c := range companies {
		resp.Companies = append(resp.Companies, toCompanyView(c, now))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) createCompany(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in models.CompanyInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	company, err := ws.AddCompany(in.Name, in.JobDate, in.JobLink)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toCompanyView(company, h.now()))
}

func (h *HTTPHandler) getCompany(w http.ResponseWriter, r *http.Request, params map[string]string) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	company, found := ws.GetCompany(params["id"])
	if !found {
		h.writeError(w, e.ErrNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, toCompanyView(company, h.now()))
}

func (h *HTTPHandler) updateCompany(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var in models.CompanyInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.UpdateCompany(params["id"], in.Name, in.JobDate, in.JobLink); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) deleteCompany(w http.ResponseWriter, r *http.Request, params map[string]string) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.DeleteCompany(params["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) addQuestion(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var in models.QuestionInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	question, err := ws.AddQuestion(params["id"], in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, question)
}

type deleteQuestionsRequest struct {
	IDs []string `json:"ids"`
}

func (h *HTTPHandler) deleteQuestions(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req deleteQuestionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.DeleteQuestions(params["id"], req.IDs); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type answerRequest struct {
	Content string `json:"content"`
}

func (h *HTTPHandler) addAnswer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	answer, err := ws.AddAnswer(params["id"], params["qid"], req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, answer)
}

func (h *HTTPHandler) updateAnswer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.UpdateAnswer(params["id"], params["qid"], params["aid"], req.Content); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) deleteAnswer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.DeleteAnswer(params["id"], params["qid"], params["aid"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) addSchedule(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var in models.ScheduleInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	schedule, err := ws.AddSchedule(params["id"], in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toScheduleView(schedule, h.now()))
}

func (h *HTTPHandler) deleteSchedule(w http.ResponseWriter, r *http.Request, params map[string]string) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.DeleteSchedule(params["id"], params["sid"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type schedulesResponse struct {
	Upcoming []scheduleView `json:"upcoming"`
	Past     []scheduleView `json:"past"`
}

// listSchedules groups the schedules of every company into upcoming and
// past events.
func (h *HTTPHandler) listSchedules(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var all []models.Schedule
	for _, c := range ws.Companies() {
		all = append(all, c.Schedules...)
	}
	now := h.now()
	upcoming, past := models.GroupSchedules(all, now)
	h.writeJSON(w, http.StatusOK, schedulesResponse{
		Upcoming: toScheduleViews(upcoming, now),
		Past:     toScheduleViews(past, now),
	})
}

func (h *HTTPHandler) search(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	limit := search.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, fmt.Errorf("%w: limit must be a positive integer", e.ErrInvalidInput))
			return
		}
		limit = n
	}

	results := search.Collect(ws.Companies(), r.URL.Query().Get("q"), limit)
	h.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *HTTPHandler) categories(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	h.writeJSON(w, http.StatusOK, map[string]any{"categories": models.PredefinedCategories})
}
