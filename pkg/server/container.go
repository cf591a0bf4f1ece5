package server

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lambda-proxy-bridge/internal/config"
	"lambda-proxy-bridge/internal/echoapp"
	"lambda-proxy-bridge/internal/localgw"
	"lambda-proxy-bridge/internal/logging"
	"lambda-proxy-bridge/pkg/ginadapter"
	"lambda-proxy-bridge/pkg/lambda"
)

// Container holds all application dependencies
type Container struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Engine  *gin.Engine
	Adapter *ginadapter.Adapter
	Proxy   *lambda.Proxy
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return NewContainerWithLogger(cfg, logger)
}

// NewContainerWithLogger is NewContainer with a caller-supplied logger
func NewContainerWithLogger(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	lambdaConfig, err := cfg.Proxy.LambdaConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy configuration: %w", err)
	}

	engine := echoapp.New(logger)
	adapter := ginadapter.New(engine)

	container := &Container{
		Config:  cfg,
		Logger:  logger,
		Engine:  engine,
		Adapter: adapter,
		Proxy:   lambda.NewProxy(adapter, lambdaConfig),
	}

	logger.WithFields(logrus.Fields{
		"event_kind": cfg.Proxy.EventKind,
		"base_path":  cfg.Proxy.BasePath,
		"mode":       config.GetDeploymentMode(),
	}).Info("Container initialized")

	return container, nil
}

// Gateway builds the local gateway emulator in front of the proxy
func (c *Container) Gateway() (*localgw.Gateway, error) {
	kind, ok, err := c.Config.Proxy.Kind()
	if err != nil {
		return nil, err
	}
	if !ok {
		kind = lambda.KindAPIGateway
	}

	var auth *localgw.Authorizer
	if c.Config.Local.AuthSecret != "" {
		ttl := time.Duration(c.Config.Local.TokenExpiryHours) * time.Hour
		auth = localgw.NewAuthorizer(c.Config.Local.AuthSecret, ttl)
	}

	return localgw.New(c.Proxy, localgw.Options{
		Kind:          kind,
		ALBMultiValue: c.Config.Proxy.ALBHeaders == lambda.FoldMulti.String(),
		Authorizer:    auth,
		BinaryTypes:   append(append([]string(nil), lambda.DefaultBinaryContentTypes...), c.Config.Proxy.BinaryContentTypes...),
		Logger:        c.Logger,
	}), nil
}

// Router returns the emulator's HTTP handler
func (c *Container) Router() (*gin.Engine, error) {
	g, err := c.Gateway()
	if err != nil {
		return nil, err
	}
	return localgw.NewRouter(g, c.Config.Local, c.Logger), nil
}

// Close cleans up all resources
func (c *Container) Close() error {
	c.Logger.Debug("Container closed")
	return nil
}
