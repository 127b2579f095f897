package handlers

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gartstein/interviews/internal/interviews/auth"
	"github.com/gartstein/interviews/internal/interviews/controller"
	e "github.com/gartstein/interviews/internal/interviews/errors"
	"github.com/gartstein/interviews/internal/interviews/search"
)

const serviceName = "interviews.v1.InterviewService"

// Full method names, used to protect the service with the auth interceptor.
const (
	ListCompaniesMethod = "/" + serviceName + "/ListCompanies"
	GetCompanyMethod    = "/" + serviceName + "/GetCompany"
	SearchMethod        = "/" + serviceName + "/Search"
)

// ProtectedMethods lists every method that requires a session.
var ProtectedMethods = []string{ListCompaniesMethod, GetCompanyMethod, SearchMethod}

// InterviewServiceServer is the read-only gRPC surface over a user's
// workspace. Messages are google.protobuf.Struct documents carrying the
// same JSON shapes as the HTTP API.
type InterviewServiceServer interface {
	ListCompanies(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCompany(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Search(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// InterviewHandler implements InterviewServiceServer.
type InterviewHandler struct {
	workspaces WorkspaceSource
	logger     *zap.Logger
	now        func() time.Time
}

func NewInterviewHandler(workspaces WorkspaceSource, logger *zap.Logger) *InterviewHandler {
	return &InterviewHandler{
		workspaces: workspaces,
		logger:     logger.Named("grpc_handler"),
		now:        time.Now,
	}
}

func (h *InterviewHandler) workspace(ctx context.Context) (*controller.Workspace, error) {
	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "session required")
	}
	ws, err := h.workspaces.Workspace(ctx, session.UserID)
	if err != nil {
		return nil, mapServiceError(h.logger, err)
	}
	return ws, nil
}

// ListCompanies returns {"state", "loading", "companies"}.
func (h *InterviewHandler) ListCompanies(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
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
	return h.respond(resp)
}

// GetCompany expects {"id": "..."}; temporary ids are accepted.
func (h *InterviewHandler) GetCompany(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "company id required")
	}
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}
	company, ok := ws.GetCompany(id)
	if !ok {
		return nil, mapServiceError(h.logger, e.ErrNotFound)
	}
	return h.respond(toCompanyView(company, h.now()))
}

// Search expects {"query": "...", "limit": n} and returns {"results": [...]}.
// limit is capped at search.MaxLimit.
func (h *InterviewHandler) Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	n := fields["limit"].GetNumberValue()
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, status.Error(codes.InvalidArgument, "limit must be a finite number")
	}
	limit := int(max(0, min(n, search.MaxLimit)))

	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}
	results := search.Collect(ws.Companies(), fields["query"].GetStringValue(), limit)
	return h.respond(map[string]any{"results": results})
}

func (h *InterviewHandler) respond(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}

func unaryHandler(method string, call func(InterviewServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InterviewServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(InterviewServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// InterviewServiceDesc describes the service for grpc.Server.RegisterService.
var InterviewServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*InterviewServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListCompanies",
			Handler:    unaryHandler(ListCompaniesMethod, InterviewServiceServer.ListCompanies),
		},
		{
			MethodName: "GetCompany",
			Handler:    unaryHandler(GetCompanyMethod, InterviewServiceServer.GetCompany),
		},
		{
			MethodName: "Search",
			Handler:    unaryHandler(SearchMethod, InterviewServiceServer.Search),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "interviews/v1/interviews.proto",
}
