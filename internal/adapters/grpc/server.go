package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/storefront-identity/internal/application"
	"github.com/viralforge/storefront-identity/internal/domain"
)

const serviceName = "storefront.identity.v1.IdentityInternalService"

// IdentityInternalService lets sibling services resolve bearer tokens without
// talking to the identity provider themselves.
type IdentityInternalService interface {
	ResolveSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Authorize(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type IdentityInternalServer struct {
	service *application.Service
}

func NewIdentityInternalServer(service *application.Service) *IdentityInternalServer {
	return &IdentityInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc IdentityInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*IdentityInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ResolveSession",
				Handler:    unaryHandler("ResolveSession", svc.ResolveSession),
			},
			{
				MethodName: "Authorize",
				Handler:    unaryHandler("Authorize", svc.Authorize),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "storefront/identity/v1/identity_internal.proto",
	}, svc)
}

func (s *IdentityInternalServer) ResolveSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	view, err := s.service.ResolveSession(ctx, stringField(req, "token"))
	if err != nil {
		return nil, toStatusError(err)
	}
	return buildResponse(sessionFields(view))
}

// Authorize reports whether the token's session satisfies role. allowed is
// false for sessions that have not settled, whatever the role.
func (s *IdentityInternalServer) Authorize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	role, err := domain.ParseRole(stringField(req, "role"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	view, err := s.service.ResolveSession(ctx, stringField(req, "token"))
	if err != nil {
		return nil, toStatusError(err)
	}
	fields := sessionFields(view)
	fields["role"] = string(role)
	fields["allowed"] = view.Settled() && domain.Authorize(view, role)
	return buildResponse(fields)
}

func sessionFields(view domain.SessionView) map[string]any {
	fields := map[string]any{
		"lifecycle": string(view.Lifecycle),
		"is_admin":  view.IsAdmin,
	}
	if view.ID != "" {
		fields["subject_id"] = view.ID
		fields["email"] = view.Email
		fields["name"] = view.Name
	}
	if view.FailureReason != "" {
		fields["failure_reason"] = view.FailureReason
	}
	return fields
}

func buildResponse(fields map[string]any) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func stringField(req *structpb.Struct, name string) string {
	v := req.GetFields()[name]
	if v == nil {
		return ""
	}
	return v.GetStringValue()
}

func toStatusError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, "invalid token")
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, "permission denied")
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, domain.ErrIdentityUnavailable), errors.Is(err, domain.ErrSessionUnresolved):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

type unaryMethod func(context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
