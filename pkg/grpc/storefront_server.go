package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type StorefrontService struct {
	pipeline *order.Pipeline
	catalog  repository.CatalogStore
	tokens   *auth.TokenManager
	logger   *zap.Logger
	config   *config.Config

	server *grpc.Server
	health *health.Server
}

func NewStorefrontService(cfg *config.Config, pipeline *order.Pipeline, catalog repository.CatalogStore, tokens *auth.TokenManager, logger *zap.Logger) *StorefrontService {
	logger = logger.Named("grpc")
	s := &StorefrontService{
		pipeline: pipeline,
		catalog:  catalog,
		tokens:   tokens,
		logger:   logger,
		config:   cfg,
		health:   health.NewServer(),
	}

	s.server = grpc.NewServer(grpc.ChainUnaryInterceptor(
		recoveryInterceptor(logger),
		loggingInterceptor(logger),
	))
	RegisterStorefrontServer(s.server, s)
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)

	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

func (s *StorefrontService) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.logger.Info("gRPC server started", zap.String("address", addr))
	return s.Serve(lis)
}

func (s *StorefrontService) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop marks the service not serving and drains in-flight calls.
func (s *StorefrontService) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

func (s *StorefrontService) PlaceOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	var req order.PlaceRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	placed, err := s.pipeline.Place(ctx, actorID, req)
	if err != nil {
		return nil, placementStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"success": true,
		"orderId": placed.ID,
		"total":   float64(placed.Total),
	})
}

func (s *StorefrontService) ListProducts(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		s.logger.Error("Failed to list products", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to list products")
	}
	if products == nil {
		products = []models.Product{}
	}

	out, err := encodeStruct(map[string]interface{}{"products": products})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode products")
	}
	return out, nil
}

// actor resolves the caller from the authorization metadata. No metadata
// means guest checkout; a token that does not verify is rejected. Admin
// tokens check out as guest.
func (s *StorefrontService) actor(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 || values[0] == "" {
		return models.GuestUserID, nil
	}

	token := strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return "", status.Error(codes.Unauthenticated, "invalid token")
	}
	return claims.OrderOwner(), nil
}

func placementStatus(err error) error {
	switch order.KindOf(err) {
	case order.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case order.KindAuthentication:
		return status.Error(codes.PermissionDenied, err.Error())
	case order.KindConfiguration:
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func decodeStruct(in *structpb.Struct, dest interface{}) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func encodeStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		logger.Info("gRPC request",
			zap.String("method", info.FullMethod),
			zap.Stringer("code", status.Code(err)),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}

func recoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("gRPC handler panic",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.Stack("stack"))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
