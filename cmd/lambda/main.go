package main

import (
	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"lambda-proxy-bridge/internal/config"
	"lambda-proxy-bridge/pkg/lambda"
	"lambda-proxy-bridge/pkg/server"
)

var container *server.Container

func init() {
	cfg, err := config.GetOptimizedConfig()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	container, err = server.NewContainer(cfg)
	if err != nil {
		panic("Failed to initialize container: " + err.Error())
	}
}

func main() {
	kind, ok, err := container.Config.Proxy.Kind()
	if err != nil {
		container.Logger.WithError(err).Fatal("Invalid event kind")
	}

	sc := config.GetServerlessConfig()
	container.Logger.WithFields(logrus.Fields{
		"event_kind":       container.Config.Proxy.EventKind,
		"function_name":    sc.FunctionName,
		"function_version": sc.FunctionVersion,
		"memory_mb":        sc.MemoryMB,
		"region":           sc.Region,
		"init_type":        sc.InitType,
		"stage":            sc.Stage,
	}).Info("Starting Lambda handler")

	proxy := container.Proxy
	if !ok {
		awslambda.Start(proxy.Handle)
		return
	}

	switch kind {
	case lambda.KindAPIGateway:
		awslambda.Start(proxy.APIGateway)
	case lambda.KindALB:
		awslambda.Start(proxy.ALB)
	case lambda.KindHTTPAPIV2:
		awslambda.Start(proxy.HTTPAPIV2)
	}
}
