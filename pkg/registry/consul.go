package registry

import (
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/consul/api"
)

type ConsulRegistry struct {
	client *api.Client
	config *ConsulConfig
}

type ConsulConfig struct {
	Address    string
	Scheme     string
	Datacenter string
}

type HealthCheck struct {
	HTTP                           string
	Interval                       time.Duration
	Timeout                        time.Duration
	DeregisterCriticalServiceAfter time.Duration
}

// NewConsulRegistry 创建Consul客户端并确认集群可用
func NewConsulRegistry(config *ConsulConfig) (*ConsulRegistry, error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = config.Address
	if config.Scheme != "" {
		consulConfig.Scheme = config.Scheme
	}
	consulConfig.Datacenter = config.Datacenter

	client, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	if _, err := client.Status().Leader(); err != nil {
		return nil, fmt.Errorf("connect consul %s: %w", config.Address, err)
	}
	return &ConsulRegistry{client: client, config: config}, nil
}

// RegisterService 注册服务
func (r *ConsulRegistry) RegisterService(config *ServiceConfig) error {
	registration := &api.AgentServiceRegistration{
		ID:      config.ID,
		Name:    config.Name,
		Tags:    config.Tags,
		Address: config.Address,
		Port:    config.Port,
	}
	if config.HealthCheck != nil {
		registration.Check = &api.AgentServiceCheck{
			HTTP:                           config.HealthCheck.HTTP,
			Interval:                       config.HealthCheck.Interval.String(),
			Timeout:                        config.HealthCheck.Timeout.String(),
			DeregisterCriticalServiceAfter: config.HealthCheck.DeregisterCriticalServiceAfter.String(),
		}
	}
	if err := r.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("register service %s: %w", config.Name, err)
	}
	return nil
}

func (r *ConsulRegistry) DeregisterService(serviceID string) error {
	if err := r.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("deregister service %s: %w", serviceID, err)
	}
	return nil
}

// DiscoverService 查询健康的服务实例
func (r *ConsulRegistry) DiscoverService(serviceName string) ([]*ServiceInstance, error) {
	entries, _, err := r.client.Health().Service(serviceName, "", true, nil)
	if err != nil {
		return nil, fmt.Errorf("discover service %s: %w", serviceName, err)
	}
	return toInstances(entries), nil
}

func toInstances(entries []*api.ServiceEntry) []*ServiceInstance {
	instances := make([]*ServiceInstance, 0, len(entries))
	for _, e := range entries {
		addr := e.Service.Address
		if addr == "" && e.Node != nil {
			addr = e.Node.Address
		}
		instances = append(instances, &ServiceInstance{
			ID:      e.Service.ID,
			Name:    e.Service.Service,
			Address: addr,
			Port:    e.Service.Port,
			Tags:    e.Service.Tags,
		})
	}
	return instances
}

// GetLocalIP 获取本机IP地址
func GetLocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

// GenerateServiceID 生成服务ID
func GenerateServiceID(serviceName, ip string, port int) string {
	return fmt.Sprintf("%s-%s-%d", serviceName, ip, port)
}
