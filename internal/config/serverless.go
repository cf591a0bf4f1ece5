package config

import (
	"os"
	"strconv"
	"sync"
)

// ServerlessConfig describes the Lambda execution environment
type ServerlessConfig struct {
	IsLambda        bool
	FunctionName    string
	FunctionVersion string
	MemoryMB        int
	Region          string
	// InitType is on-demand, provisioned-concurrency or snap-start
	InitType string
	Stage    string
}

var (
	serverlessConfig *ServerlessConfig
	serverlessOnce   sync.Once
)

// GetServerlessConfig returns the execution environment, read once per process
func GetServerlessConfig() *ServerlessConfig {
	serverlessOnce.Do(func() {
		serverlessConfig = loadServerlessConfig()
	})
	return serverlessConfig
}

func loadServerlessConfig() *ServerlessConfig {
	sc := &ServerlessConfig{
		FunctionName:    os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
		FunctionVersion: os.Getenv("AWS_LAMBDA_FUNCTION_VERSION"),
		Region:          GetEnv("AWS_REGION", os.Getenv("AWS_DEFAULT_REGION")),
		InitType:        os.Getenv("AWS_LAMBDA_INITIALIZATION_TYPE"),
		Stage:           GetEnv("STAGE", "dev"),
	}
	sc.MemoryMB, _ = strconv.Atoi(os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE"))
	sc.IsLambda = sc.FunctionName != "" || os.Getenv("AWS_LAMBDA_RUNTIME_API") != ""
	return sc
}

// IsServerlessMode reports whether the process runs inside Lambda
func IsServerlessMode() bool {
	return GetServerlessConfig().IsLambda
}

// GetDeploymentMode returns "serverless" inside Lambda and "server" otherwise
func GetDeploymentMode() string {
	if IsServerlessMode() {
		return "serverless"
	}
	return "server"
}

// AdaptConfigForServerless forces JSON logs inside Lambda and clears the
// emulator settings, which only apply to the local server. A dev-default
// environment deployed to the prod stage is treated as production.
func AdaptConfigForServerless(sc *ServerlessConfig, config *Config) *Config {
	if sc == nil || !sc.IsLambda {
		return config
	}

	config.Log.Format = "json"
	config.Local = LocalConfig{TokenExpiryHours: config.Local.TokenExpiryHours}
	if sc.Stage == "prod" && config.Environment == "development" {
		config.Environment = "production"
	}
	return config
}

// GetOptimizedConfig loads the configuration and adapts it to the
// deployment mode
func GetOptimizedConfig() (*Config, error) {
	config, err := Load()
	if err != nil {
		return nil, err
	}
	return AdaptConfigForServerless(GetServerlessConfig(), config), nil
}
