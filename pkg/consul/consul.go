package consul

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/consul/api"

	"poll-service/config"
	"poll-service/pkg/zap"
)

const (
	serviceName = "poll-service"
	ttl         = 15 * time.Second
	checkID     = "poll-service-health-check"

	maxRetries        = 10
	retryInterval     = 5 * time.Second
	connectionTimeout = 60 * time.Second
)

type Client interface {
	Connect() *api.Client
	Deregister()
	IsHealthy() bool
}

type service struct {
	client    *api.Client
	apiConfig *api.Config
	log       zap.Logger
	cfg       *config.Config
	serviceID string
	isHealthy bool
}

// NewConsulConn prepares a Consul registration for this instance. Each
// instance registers under a unique ID so several replicas of the service can
// coexist behind the same name.
func NewConsulConn(log zap.Logger, cfg *config.Config) *service {
	host := cfg.Consul.Host
	if host == "" {
		host = "localhost"
	}

	return &service{
		apiConfig: &api.Config{
			Address: fmt.Sprintf("%s:%s", host, cfg.Consul.Port),
			HttpClient: &http.Client{
				Timeout: connectionTimeout,
			},
		},
		log:       log,
		cfg:       cfg,
		serviceID: fmt.Sprintf("%s-%d", serviceName, rand.Intn(10000)),
	}
}

// Connect establishes the Consul connection, registers the service and starts
// the TTL health updater. It retries until the agent answers or the budget is
// spent; failure to reach Consul at startup is fatal.
func (c *service) Connect() *api.Client {
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var client *api.Client
		client, err = api.NewClient(c.apiConfig)
		if err == nil {
			_, err = client.Agent().Self()
			if err == nil {
				c.log.Infof("connected to consul on attempt %d", attempt)
				c.client = client
				c.isHealthy = true

				c.register()
				go c.updateHealthCheck()

				return c.client
			}
		}

		c.log.Warnf("consul connection attempt %d/%d failed: %v", attempt, maxRetries, err)
		if attempt < maxRetries {
			time.Sleep(retryInterval)
		}
	}

	c.log.Fatalf("failed to connect to consul after %d attempts: %v", maxRetries, err)
	return nil
}

// Deregister removes this instance from Consul. Called on shutdown.
func (c *service) Deregister() {
	if c.client == nil {
		c.log.Warn("cannot deregister: consul client is nil")
		return
	}

	if err := c.client.Agent().ServiceDeregister(c.serviceID); err != nil {
		c.log.Errorf("failed to deregister %s: %v", c.serviceID, err)
		return
	}
	c.log.Infof("deregistered service %s", c.serviceID)
}

func (c *service) IsHealthy() bool {
	if c.client == nil {
		return false
	}

	_, err := c.client.Agent().Self()
	c.isHealthy = err == nil
	return c.isHealthy
}

// updateHealthCheck keeps the TTL check passing. If Consul stops answering the
// instance drops to critical and gets deregistered by the agent after the TTL
// lapses; a later successful update re-registers.
func (c *service) updateHealthCheck() {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	for range ticker.C {
		err := c.client.Agent().UpdateTTL(checkID, "online", api.HealthPassing)
		if err != nil {
			c.log.Errorf("failed to update consul health check: %v", err)
			c.isHealthy = false
			c.reregister()
			continue
		}
		c.isHealthy = true
	}
}

// reregister re-registers the service after a failed TTL update, covering the
// case where the agent restarted and lost our registration.
func (c *service) reregister() {
	if _, err := c.client.Agent().Self(); err != nil {
		return
	}
	c.register()
}

func (c *service) register() {
	port, err := strconv.Atoi(c.cfg.Server.Port)
	if err != nil {
		c.log.Errorf("invalid server port %q: %v", c.cfg.Server.Port, err)
		return
	}

	registration := &api.AgentServiceRegistration{
		ID:      c.serviceID,
		Name:    serviceName,
		Port:    port,
		Address: c.cfg.Server.Host,
		Tags:    []string{"go", "poll-service", "v1"},
		Check: &api.AgentServiceCheck{
			DeregisterCriticalServiceAfter: ttl.String(),
			TTL:                            ttl.String(),
			CheckID:                        checkID,
		},
	}

	if err := c.client.Agent().ServiceRegister(registration); err != nil {
		c.log.Errorf("failed to register service %s: %v", c.serviceID, err)
		return
	}
	c.log.Infof("registered service %s on port %d", c.serviceID, port)
}
