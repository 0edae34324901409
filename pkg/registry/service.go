package registry

import (
	"fmt"

	"go.uber.org/zap"
)

type ServiceConfig struct {
	ID          string
	Name        string
	Tags        []string
	Address     string
	Port        int
	HealthCheck *HealthCheck
}

// ServiceInstance 服务实例信息
type ServiceInstance struct {
	ID      string
	Name    string
	Address string
	Port    int
	Tags    []string
}

func (s *ServiceInstance) GetEndpoint() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// ServiceManager registers this process in Consul and resolves peers.
type ServiceManager struct {
	registry      *ConsulRegistry
	serviceConfig *ServiceConfig
	logger        *zap.Logger
}

func NewServiceManager(consulConfig *ConsulConfig, serviceConfig *ServiceConfig, logger *zap.Logger) (*ServiceManager, error) {
	consulRegistry, err := NewConsulRegistry(consulConfig)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceManager{
		registry:      consulRegistry,
		serviceConfig: serviceConfig,
		logger:        logger,
	}, nil
}

func (sm *ServiceManager) Start() error {
	if err := sm.registry.RegisterService(sm.serviceConfig); err != nil {
		return err
	}
	sm.logger.Info("service registered",
		zap.String("name", sm.serviceConfig.Name), zap.String("id", sm.serviceConfig.ID))
	return nil
}

func (sm *ServiceManager) Stop() {
	if err := sm.registry.DeregisterService(sm.serviceConfig.ID); err != nil {
		sm.logger.Warn("deregister service failed", zap.Error(err))
		return
	}
	sm.logger.Info("service deregistered", zap.String("id", sm.serviceConfig.ID))
}

func (sm *ServiceManager) DiscoverService(serviceName string) ([]*ServiceInstance, error) {
	return sm.registry.DiscoverService(serviceName)
}
