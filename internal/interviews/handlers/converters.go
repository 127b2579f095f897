package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	e "github.com/gartstein/interviews/internal/interviews/errors"
	"github.com/gartstein/interviews/internal/interviews/models"
)

type answerView struct {
	models.Answer
	Length    int  `json:"length"`
	OverLimit bool `json:"overLimit"`
}

type questionView struct {
	models.Question
	Label    string       `json:"label"`
	Answered bool         `json:"answered"`
	Answers  []answerView `json:"answers"`
}

type scheduleView struct {
	models.Schedule
	DDay    string `json:"dDay,omitempty"`
	HasTime bool   `json:"hasTime"`
}

type companyView struct {
	models.Company
	Questions []questionView `json:"questions"`
	Schedules []scheduleView `json:"schedules"`
	Upcoming  []scheduleView `json:"upcoming"`
	Past      []scheduleView `json:"past"`
}

func toQuestionView(q models.Question, index int) questionView {
	view := questionView{
		Question: q,
		Label:    q.Label(index),
		Answered: q.Answered(),
		Answers:  make([]answerView, 0, len(q.Answers)),
	}
	for _, a := range q.Answers {
		av := answerView{Answer: a, Length: len([]rune(a.Content))}
		if q.Limit != nil {
			av.Length = q.Limit.Measure(a.Content)
			av.OverLimit = q.OverLimit(a.Content)
		}
		view.Answers = append(view.Answers, av)
	}
	return view
}

func toScheduleView(s models.Schedule, now time.Time) scheduleView {
	// An unparseable date leaves DDay empty.
	dday, _ := models.DDay(s.Date, now)
	return scheduleView{Schedule: s, DDay: dday, HasTime: s.HasTime()}
}

func toScheduleViews(schedules []models.Schedule, now time.Time) []scheduleView {
	out := make([]scheduleView, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, toScheduleView(s, now))
	}
	return out
}

func toCompanyView(c models.Company, now time.Time) companyView {
	view := companyView{
		Company:   c,
		Questions: make([]questionView, 0, len(c.Questions)),
		Schedules: toScheduleViews(c.Schedules, now),
	}
	for i, q := range c.Questions {
		view.Questions = append(view.Questions, toQuestionView(q, i))
	}
	upcoming, past := models.GroupSchedules(c.Schedules, now)
	view.Upcoming = toScheduleViews(upcoming, now)
	view.Past = toScheduleViews(past, now)
	return view
}

// toStruct converts any JSON-encodable value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// mapServiceError maps domain or repository errors to appropriate gRPC status codes.
func mapServiceError(logger *zap.Logger, err error) error {
	switch {
	case errors.Is(err, e.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, e.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, e.ErrUnauthenticated), errors.Is(err, e.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, e.ErrDuplicateEmail):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		logger.Error("Unhandled service error", zap.Error(err))
		return status.Error(codes.Internal, "internal server error")
	}
}

// httpStatus is the HTTP counterpart of mapServiceError.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, e.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, e.ErrInvalidInput), errors.Is(err, e.ErrVerificationFailed):
		return http.StatusBadRequest
	case errors.Is(err, e.ErrUnauthenticated), errors.Is(err, e.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, e.ErrBotDetected):
		return http.StatusForbidden
	case errors.Is(err, e.ErrDuplicateEmail):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// rejectReason labels a failed sign-up or sign-in for metrics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, e.ErrBotDetected):
		return "bot"
	case errors.Is(err, e.ErrVerificationFailed):
		return "verification"
	case errors.Is(err, e.ErrInvalidCredentials):
		return "credentials"
	case errors.Is(err, e.ErrDuplicateEmail):
		return "duplicate"
	case errors.Is(err, e.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
