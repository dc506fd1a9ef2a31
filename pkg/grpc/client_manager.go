package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/order"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the storefront gRPC service.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// PlaceOrder places req as the bearer of token, or as a guest when token is
// empty, and returns the new order id.
func (c *Client) PlaceOrder(ctx context.Context, token string, req order.PlaceRequest) (string, error) {
	in, err := encodeStruct(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, placeOrderFullMethod, in, out); err != nil {
		return "", err
	}

	id, _ := out.AsMap()["orderId"].(string)
	if id == "" {
		return "", fmt.Errorf("response carried no order id")
	}
	return id, nil
}

func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, listProductsFullMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	var resp struct {
		Products []models.Product `json:"products"`
	}
	if err := decodeStruct(out, &resp); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return resp.Products, nil
}

// ClientManager owns the connection to a storefront instance, found through
// service discovery when it is available.
type ClientManager struct {
	config    *config.Config
	discovery *discovery.ServiceDiscovery
	logger    *zap.Logger

	conn   *grpc.ClientConn
	client *Client
}

func NewClientManager(cfg *config.Config, logger *zap.Logger, disc *discovery.ServiceDiscovery) *ClientManager {
	return &ClientManager{
		config:    cfg,
		discovery: disc,
		logger:    logger,
	}
}

func (m *ClientManager) Connect() error {
	target := fmt.Sprintf("%s:%d", m.config.Server.Host, m.config.Server.Port)
	if m.config.Server.Host == "0.0.0.0" || m.config.Server.Host == "" {
		target = fmt.Sprintf("localhost:%d", m.config.Server.Port)
	}

	if m.discovery != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		instances, err := m.discovery.Discover(ctx, m.config.Server.Name, "grpc")
		if err == nil && len(instances) > 0 {
			target = instances[0].Addr()
			m.logger.Info("Discovered storefront service", zap.String("address", target))
		} else {
			m.logger.Info("Using default address for storefront service", zap.String("address", target))
		}
	}

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to storefront service: %w", err)
	}

	m.conn = conn
	m.client = NewClient(conn)
	m.logger.Info("Connected to storefront service", zap.String("target", target))
	return nil
}

func (m *ClientManager) Client() *Client {
	return m.client
}

func (m *ClientManager) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}
