package configs

import (
	"fmt"
	"time"

	einoconfig "colpali-server/internal/eino/config"
)

// Config 主配置结构体，定义了应用程序的所有配置项。
// 包含服务器、鉴权、日志以及嵌入流程（模型调用、批处理、回调）的配置信息。
type Config struct {
	Server  ServerConfig          `yaml:"server"`
	Auth    AuthConfig            `yaml:"auth"`
	Logging LoggingConfig         `yaml:"logging"`
	Eino    einoconfig.EinoConfig `yaml:"eino"`
}

// ServerConfig 定义服务器相关的配置参数。
// 包含监听地址、端口、超时设置和请求体大小限制等。
type ServerConfig struct {
	Host                    string        `yaml:"host"`
	Port                    int           `yaml:"port"`
	ReadTimeout             time.Duration `yaml:"read_timeout"`
	WriteTimeout            time.Duration `yaml:"write_timeout"`
	IdleTimeout             time.Duration `yaml:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
	MaxBodyBytes            int64         `yaml:"max_body_bytes"`
}

// AuthConfig 定义接口鉴权配置。
type AuthConfig struct {
	// APIKey 调用 /embeddings 所需的 Bearer Token，必须配置
	APIKey string `yaml:"api_key"`
}

// LoggingConfig 定义日志系统的配置参数。
// 包含日志级别、输出目标（stdout/stderr/file）和格式（text/json）。
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
	Format   string `yaml:"format"`
}

// Validate 检查 Config 配置结构体的有效性。
// 依次调用各个子配置项的 Validate 方法，如果发现无效配置，返回相应的错误。
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config validation failed: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}

	if err := c.Eino.Validate(); err != nil {
		return fmt.Errorf("eino config validation failed: %w", err)
	}

	return nil
}

// Validate 检查 ServerConfig 配置的有效性。
// 确保端口号在有效范围内，超时时间为正数。
func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}

	if s.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	// 大批量图片推理耗时较长，写超时为 0 表示不限制
	if s.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout must not be negative")
	}

	if s.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative")
	}

	return nil
}

// Validate 检查 AuthConfig 配置的有效性。
func (a *AuthConfig) Validate() error {
	if a.APIKey == "" {
		return fmt.Errorf("API_KEY environment variable is required")
	}
	return nil
}

// Validate 检查 LoggingConfig 配置的有效性。
// 确保日志级别、输出目标和格式是支持的选项。
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	validOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true, "discard": true,
	}

	if !validOutputs[l.Output] {
		return fmt.Errorf("invalid log output: %s", l.Output)
	}

	if l.Output == "file" && l.FilePath == "" {
		return fmt.Errorf("file path is required when output is file")
	}

	// 验证日志格式，空值默认为 text
	validFormats := map[string]bool{
		"text": true, "json": true, "": true,
	}

	if !validFormats[l.Format] {
		return fmt.Errorf("invalid log format: %s", l.Format)
	}

	return nil
}

// GetAddr 获取服务器的完整监听地址。
// 返回格式为 "Host:Port" 的字符串。
func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
