package mq

import (
	"fmt"
	"net"

	rocketmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/config"
)

// InitProducer starts a RocketMQ producer. It returns nil, nil when no name
// servers are configured so event publishing is simply disabled.
func InitProducer(cfg config.RocketMQConfig, logger *zap.Logger) (*Producer, func(), error) {
	nameServers := resolveNameServers(cfg.NameServers, logger)
	if len(nameServers) == 0 {
		logger.Info("RocketMQ name servers not configured, chat events disabled")
		return nil, func() {}, nil
	}

	p, err := rocketmq.NewProducer(
		producer.WithNsResolver(primitive.NewPassthroughResolver(nameServers)),
		producer.WithRetry(cfg.MaxRetries),
		producer.WithGroupName(cfg.GroupName),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create RocketMQ producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start RocketMQ producer: %w", err)
	}

	shutdown := func() {
		if err := p.Shutdown(); err != nil {
			logger.Warn("shutdown RocketMQ producer", zap.Error(err))
		}
	}
	logger.Info("RocketMQ producer started", zap.Strings("name_servers", nameServers))
	return NewProducer(p, cfg.Topics.ChatEvent), shutdown, nil
}

// resolveNameServers turns host names into IPs; the client only dials IPs.
func resolveNameServers(servers []string, logger *zap.Logger) []string {
	var resolved []string
	for _, addr := range servers {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			logger.Warn("invalid name server address", zap.String("addr", addr), zap.Error(err))
			resolved = append(resolved, addr)
			continue
		}
		ips, err := net.LookupHost(host)
		if err != nil || len(ips) == 0 {
			logger.Warn("lookup name server failed", zap.String("host", host), zap.Error(err))
			resolved = append(resolved, addr)
			continue
		}
		resolved = append(resolved, net.JoinHostPort(ips[0], port))
	}
	return resolved
}
