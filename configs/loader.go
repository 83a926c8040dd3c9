package configs

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	einoconfig "colpali-server/internal/eino/config"
)

// configPaths 配置文件搜索路径，按顺序取第一个存在的文件
var configPaths = []string{
	"configs/config.yaml",
	"config.yaml",
	"/etc/colpali-server/config.yaml",
}

// Load 加载并验证应用程序配置。
// 它按照以下优先级顺序加载配置：
// 1. 默认配置
// 2. 配置文件（config.yaml，支持多个搜索路径）
// 3. 环境变量（覆盖配置文件中的值）
//
// 参数 ctx: 上下文对象。
// 返回加载并验证后的 Config 指针，如果出错则返回 error。
func Load(ctx context.Context) (*Config, error) {
	// 加载 .env 文件（如果存在）
	// 忽略错误，因为 .env 文件是可选的
	_ = godotenv.Load()

	return load(configPaths, os.Getenv)
}

func load(paths []string, getenv func(string) string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			break
		}
	}

	// 从环境变量覆盖配置
	if err := loadFromEnv(config, getenv); err != nil {
		return nil, err
	}

	// 验证配置
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig 创建并返回一个包含默认值的 Config 对象。
// 默认值覆盖了服务器、日志和嵌入流程的常用配置；API Key 没有默认值。
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                    "0.0.0.0",
			Port:                    8000,
			ReadTimeout:             60 * time.Second,
			WriteTimeout:            0,
			IdleTimeout:             120 * time.Second,
			GracefulShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:            256 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			Format: "text",
		},
		Eino: *einoconfig.DefaultEinoConfig(),
	}
}

// loadFromEnv 从环境变量中读取配置并覆盖 Config 中的值。
// 支持 API_KEY, COLPALI_PORT, EMBEDDING_MODEL, EMBEDDING_BATCH_SIZE 等环境变量。
func loadFromEnv(config *Config, getenv func(string) string) error {
	if apiKey := getenv("API_KEY"); apiKey != "" {
		config.Auth.APIKey = apiKey
	}

	// Server 配置
	if port := getenv("COLPALI_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid COLPALI_PORT: %q", port)
		}
		config.Server.Port = p
	}

	if level := getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// 模型配置
	if model := getenv("EMBEDDING_MODEL"); model != "" {
		config.Eino.Invoker.Model = model
	}

	if provider := getenv("EMBEDDING_PROVIDER"); provider != "" {
		config.Eino.Invoker.Provider = provider
	}

	if size := getenv("EMBEDDING_BATCH_SIZE"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Errorf("invalid EMBEDDING_BATCH_SIZE: %q", size)
		}
		config.Eino.Batch.Size = n
	}

	if baseURL := getenv("INFERENCE_BASE_URL"); baseURL != "" {
		config.Eino.Invoker.Remote.BaseURL = baseURL
	}

	// OpenAI 配置
	if apiKey := getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Eino.Invoker.OpenAI.APIKey = apiKey
	}

	if baseURL := getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.Eino.Invoker.OpenAI.BaseURL = baseURL
	}

	return nil
}
