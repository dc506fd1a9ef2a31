package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/example/storefront/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

type ServiceDiscovery struct {
	client *clientv3.Client
	config *config.EtcdConfig
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID
}

// ServiceInstance is one registered endpoint. Kind distinguishes the HTTP
// gateway from the gRPC listener of the same service.
type ServiceInstance struct {
	Name string
	Kind string
	Host string
	Port int
}

func (i *ServiceInstance) Addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

func NewServiceDiscovery(cfg *config.EtcdConfig, logger *zap.Logger) (*ServiceDiscovery, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &ServiceDiscovery{
		client: cli,
		config: cfg,
		logger: logger.Named("discovery"),
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

func serviceKey(prefix string, instance *ServiceInstance) string {
	return fmt.Sprintf("%s%s/%s/%s", prefix, instance.Name, instance.Kind, instance.Addr())
}

// Register publishes the instance under a lease that is kept alive until ctx
// is cancelled or the instance is deregistered.
func (sd *ServiceDiscovery) Register(ctx context.Context, instance *ServiceInstance) error {
	key := serviceKey(sd.config.Prefix, instance)

	ttl := sd.config.LeaseTTL
	if ttl <= 0 {
		ttl = 30
	}
	lease, err := sd.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	if _, err := sd.client.Put(ctx, key, instance.Addr(), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	ch, err := sd.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep alive: %w", err)
	}

	sd.mu.Lock()
	sd.leases[key] = lease.ID
	sd.mu.Unlock()

	go func() {
		for range ch {
		}
		sd.logger.Info("Lease keep-alive ended", zap.String("key", key))
	}()

	sd.logger.Info("Service registered", zap.String("key", key), zap.Int64("ttl", ttl))
	return nil
}

func (sd *ServiceDiscovery) Discover(ctx context.Context, name, kind string) ([]*ServiceInstance, error) {
	prefix := fmt.Sprintf("%s%s/%s/", sd.config.Prefix, name, kind)

	resp, err := sd.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover service: %w", err)
	}

	instances := make([]*ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		instance, err := parseInstance(name, kind, string(kv.Value))
		if err != nil {
			sd.logger.Warn("Skipping malformed registration",
				zap.String("key", string(kv.Key)),
				zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

func parseInstance(name, kind, addr string) (*ServiceInstance, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("bad port %q: %w", portStr, err)
	}
	return &ServiceInstance{Name: name, Kind: kind, Host: host, Port: port}, nil
}

// Deregister deletes the key and revokes its lease.
func (sd *ServiceDiscovery) Deregister(ctx context.Context, instance *ServiceInstance) error {
	key := serviceKey(sd.config.Prefix, instance)
	if _, err := sd.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	sd.mu.Lock()
	leaseID, ok := sd.leases[key]
	delete(sd.leases, key)
	sd.mu.Unlock()

	if ok {
		if _, err := sd.client.Revoke(ctx, leaseID); err != nil {
			return fmt.Errorf("failed to revoke lease: %w", err)
		}
	}
	return nil
}

func (sd *ServiceDiscovery) Close() error {
	return sd.client.Close()
}
