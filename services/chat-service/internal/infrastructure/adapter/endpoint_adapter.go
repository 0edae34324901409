package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/pkg/registry"
)

// ServiceDiscovery lists the healthy instances of a service.
type ServiceDiscovery interface {
	DiscoverService(serviceName string) ([]*registry.ServiceInstance, error)
}

// EndpointLoads tracks in-flight calls per instance address.
type EndpointLoads interface {
	AcquireEndpoint(ctx context.Context, serviceName string, instances []string) (string, error)
	ReleaseEndpoint(ctx context.Context, serviceName, address string) error
}

// EndpointBalancer picks the least busy LLM instance registered in Consul.
type EndpointBalancer struct {
	serviceName string
	discovery   ServiceDiscovery
	loads       EndpointLoads
	scheme      string
	path        string
	logger      *zap.Logger
}

func NewEndpointBalancer(serviceName string, discovery ServiceDiscovery, loads EndpointLoads, logger *zap.Logger) *EndpointBalancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EndpointBalancer{
		serviceName: serviceName,
		discovery:   discovery,
		loads:       loads,
		scheme:      "http",
		path:        "/v1",
		logger:      logger,
	}
}

// Acquire returns the base URL of the selected instance and a release func
// that must be called once the call against it has finished.
func (b *EndpointBalancer) Acquire(ctx context.Context) (string, func(), error) {
	instances, err := b.discovery.DiscoverService(b.serviceName)
	if err != nil {
		return "", nil, fmt.Errorf("failed to discover service %s: %w", b.serviceName, err)
	}
	if len(instances) == 0 {
		return "", nil, fmt.Errorf("no healthy instances found for service %s", b.serviceName)
	}

	addrs := make([]string, 0, len(instances))
	for _, inst := range instances {
		addrs = append(addrs, inst.GetEndpoint())
	}

	addr, err := b.loads.AcquireEndpoint(ctx, b.serviceName, addrs)
	if err != nil {
		return "", nil, fmt.Errorf("select instance of %s: %w", b.serviceName, err)
	}
	release := func() {
		// the call may have outlived its request context
		rctx := context.WithoutCancel(ctx)
		if err := b.loads.ReleaseEndpoint(rctx, b.serviceName, addr); err != nil {
			b.logger.Warn("release endpoint failed", zap.String("addr", addr), zap.Error(err))
		}
	}
	return fmt.Sprintf("%s://%s%s", b.scheme, addr, b.path), release, nil
}
