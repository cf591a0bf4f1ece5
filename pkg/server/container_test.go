package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"lambda-proxy-bridge/internal/config"
	"lambda-proxy-bridge/pkg/lambda"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Port:        "8081",
		Log:         config.LogConfig{Level: "info", Format: "json"},
		Proxy: config.ProxyConfig{
			EventKind:          "alb",
			BasePath:           "/v1",
			APIGatewayHeaders:  "auto",
			ALBHeaders:         "multi",
			HTTPAPIHeaders:     "auto",
			DefaultContentType: lambda.DefaultContentType,
		},
		Local: config.LocalConfig{AuthSecret: "secret", TokenExpiryHours: 1},
	}
}

// TestNewContainer verifies that the container can be created successfully
func TestNewContainer(t *testing.T) {
	container, err := NewContainer(testConfig())
	if err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}

	if container == nil {
		t.Fatal("Container is nil")
	}
	if container.Logger == nil {
		t.Error("Logger is nil")
	}
	if container.Engine == nil {
		t.Error("Engine is nil")
	}
	if container.Adapter == nil {
		t.Error("Adapter is nil")
	}
	if container.Proxy == nil {
		t.Error("Proxy is nil")
	}
	if got := container.Proxy.BasePath(); got != "/v1" {
		t.Errorf("Expected base path /v1, got %s", got)
	}

	if err := container.Close(); err != nil {
		t.Errorf("Failed to close container: %v", err)
	}
}

func TestNewContainerInvalidFolding(t *testing.T) {
	cfg := testConfig()
	cfg.Proxy.HTTPAPIHeaders = "sideways"

	if _, err := NewContainer(cfg); err == nil {
		t.Error("Expected error for invalid header folding")
	}
}

// TestContainerProxy drives an event through the wired proxy
func TestContainerProxy(t *testing.T) {
	logger, _ := test.NewNullLogger()
	container, err := NewContainerWithLogger(testConfig(), logger)
	if err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	defer container.Close()

	out, err := container.Proxy.Proxy(context.Background(), lambda.ALBEvent{
		HTTPMethod:            http.MethodGet,
		Path:                  "/v1/echo",
		QueryStringParameters: map[string]string{"message": "hello"},
	})
	if err != nil {
		t.Fatalf("Proxy failed: %v", err)
	}

	resp, ok := out.(lambda.ALBResponse)
	if !ok {
		t.Fatalf("Expected ALB response, got %T", out)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if resp.Body != `"hello"` {
		t.Errorf("Expected body \"hello\", got %s", resp.Body)
	}
	if len(resp.MultiValueHeaders) == 0 {
		t.Error("Expected multi-value headers for configured multi folding")
	}
}

func TestContainerRouter(t *testing.T) {
	logger, _ := test.NewNullLogger()
	container, err := NewContainerWithLogger(testConfig(), logger)
	if err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	defer container.Close()

	g, err := container.Gateway()
	if err != nil {
		t.Fatalf("Failed to create gateway: %v", err)
	}
	if g.Kind() != lambda.KindALB {
		t.Errorf("Expected ALB gateway, got %s", g.Kind())
	}

	router, err := container.Router()
	if err != nil {
		t.Fatalf("Failed to create router: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/echo?message=hi", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != `"hi"` {
		t.Errorf("Expected body \"hi\", got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/echo", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 outside the base path, got %d", w.Code)
	}
}
