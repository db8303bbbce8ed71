package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 统一配置结构
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Data        DataConfig        `yaml:"data"`
	Log         LogConfig         `yaml:"log"`
	Security    SecurityConfig    `yaml:"security"`
	Diarizer    DiarizerConfig    `yaml:"diarizer"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Watch       WatchConfig       `yaml:"watch"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Env  string `yaml:"env"` // dev, staging, production
	Port string `yaml:"port"`
}

// DataConfig 数据目录配置
type DataConfig struct {
	SessionsDir  string `yaml:"sessions_dir"`
	ScratchDir   string `yaml:"scratch_dir"`
	AuditLogsDir string `yaml:"audit_logs_dir"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWTSecret          string   `yaml:"jwt_secret"`
	TokenTTL           string   `yaml:"token_ttl"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// DiarizerConfig 说话人分离服务配置
// Mode 支持 http/script/mock
type DiarizerConfig struct {
	Mode       string `yaml:"mode"`
	APIURL     string `yaml:"api_url"`
	ScriptPath string `yaml:"script_path"`
	PythonBin  string `yaml:"python_bin"`
	Device     string `yaml:"device"`
	HFToken    string `yaml:"-"` // 仅从环境变量读取，不写入配置文件
	Timeout    string `yaml:"timeout"`
}

// TranscriberConfig 语音转写服务配置
// Mode 支持 http/cli/mock
type TranscriberConfig struct {
	Mode                     string  `yaml:"mode"`
	APIURL                   string  `yaml:"api_url"`
	BinaryPath               string  `yaml:"binary_path"`
	Model                    string  `yaml:"model"`
	Language                 string  `yaml:"language"`
	Temperature              float64 `yaml:"temperature"`
	Timeout                  string  `yaml:"timeout"`
	EnableDegradation        bool    `yaml:"enable_degradation"`
	HealthCheckInterval      string  `yaml:"health_check_interval"`
	HealthCheckFailThreshold int     `yaml:"health_check_fail_threshold"`
}

// PipelineConfig 流水线配置
type PipelineConfig struct {
	FFmpegPath        string `yaml:"ffmpeg_path"`
	MaxConcurrentRuns int64  `yaml:"max_concurrent_runs"`
}

// WatchConfig 监听目录配置
type WatchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// GlobalConfig 全局配置实例
var GlobalConfig *Config

// LoadConfig 从环境变量加载配置，path 非空时以 YAML 文件内容覆盖
// 文件中未出现的字段保持环境变量/默认值
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Env:  getEnv("ENV", "dev"),
			Port: getEnv("PORT", "8000"),
		},
		Data: DataConfig{
			SessionsDir:  getEnv("SESSIONS_DIR", "./sessions"),
			ScratchDir:   getEnv("SCRATCH_DIR", ""),
			AuditLogsDir: getEnv("AUDIT_LOGS_DIR", "./audit_logs"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Security: SecurityConfig{
			JWTSecret:          getEnv("SESSION_JWT_SECRET", ""),
			TokenTTL:           getEnv("SESSION_TOKEN_TTL", "24h"),
			CORSAllowedOrigins: parseStringList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		},
		Diarizer: DiarizerConfig{
			Mode:       getEnv("DIARIZER_MODE", "http"),
			APIURL:     getEnv("DIARIZER_API_URL", "http://diarizer:8001"),
			ScriptPath: getEnv("DIARIZER_SCRIPT_PATH", "./scripts/pyannote_diarize.py"),
			PythonBin:  getEnv("PYTHON_PATH", "python3"),
			Device:     getEnv("DIARIZER_DEVICE", "auto"),
			HFToken:    os.Getenv("HUGGINGFACE_TOKEN"),
			Timeout:    getEnv("DIARIZER_TIMEOUT", "10m"),
		},
		Transcriber: TranscriberConfig{
			Mode:                     getEnv("WHISPER_MODE", "http"),
			APIURL:                   getEnv("WHISPER_API_URL", "http://whisper:80"),
			BinaryPath:               getEnv("WHISPER_CLI_PATH", ""),
			Model:                    getEnv("WHISPER_MODEL", "tiny"),
			Language:                 getEnv("WHISPER_LANGUAGE", ""),
			Temperature:              getEnvFloat("WHISPER_TEMPERATURE", 0.0),
			Timeout:                  getEnv("WHISPER_TIMEOUT", "10m"),
			EnableDegradation:        getEnvBool("ENABLE_DEGRADATION", true),
			HealthCheckInterval:      getEnv("HEALTH_CHECK_INTERVAL", "5m"),
			HealthCheckFailThreshold: getEnvInt("HEALTH_CHECK_FAIL_THRESHOLD", 3),
		},
		Pipeline: PipelineConfig{
			FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
			MaxConcurrentRuns: int64(getEnvInt("MAX_CONCURRENT_RUNS", 2)),
		},
		Watch: WatchConfig{
			Enabled: getEnvBool("WATCH_ENABLED", false),
			Dir:     getEnv("WATCH_DIR", ""),
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		// HF token 永远只来自环境变量
		cfg.Diarizer.HFToken = os.Getenv("HUGGINGFACE_TOKEN")
	}

	GlobalConfig = cfg
	return cfg, nil
}

// ValidateConfig 验证配置的有效性
func ValidateConfig(cfg *Config) error {
	var errors []string

	// 1. 端口验证
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	// 2. 环境验证
	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errors = append(errors, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	// 3. 日志级别验证
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	// 4. 日志格式验证
	validLogFormats := map[string]bool{"console": true, "json": true}
	if !validLogFormats[cfg.Log.Format] {
		errors = append(errors, fmt.Sprintf("invalid LOG_FORMAT: %s (must be: console, json)", cfg.Log.Format))
	}

	// 5. JWT Secret 验证
	if cfg.Security.JWTSecret == "" {
		errors = append(errors, "SESSION_JWT_SECRET is required")
	} else if len(cfg.Security.JWTSecret) < 32 {
		errors = append(errors, "SESSION_JWT_SECRET must be at least 32 characters long")
	}
	if _, err := time.ParseDuration(cfg.Security.TokenTTL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid SESSION_TOKEN_TTL: %s", cfg.Security.TokenTTL))
	}

	// 6. 说话人分离配置验证
	switch cfg.Diarizer.Mode {
	case "http":
		if cfg.Diarizer.APIURL == "" {
			errors = append(errors, "DIARIZER_API_URL is required when DIARIZER_MODE is http")
		}
	case "script":
		if cfg.Diarizer.ScriptPath == "" {
			errors = append(errors, "DIARIZER_SCRIPT_PATH is required when DIARIZER_MODE is script")
		}
		// 本地脚本直接加载 pyannote 模型，缺少凭证在启动期即失败
		if cfg.Diarizer.HFToken == "" {
			errors = append(errors, "HUGGINGFACE_TOKEN is required when DIARIZER_MODE is script")
		}
	case "mock":
		// 测试/降级模式，无需外部依赖
	default:
		errors = append(errors, fmt.Sprintf("invalid DIARIZER_MODE: %s (must be: http, script, mock)", cfg.Diarizer.Mode))
	}
	if _, err := time.ParseDuration(cfg.Diarizer.Timeout); err != nil {
		errors = append(errors, fmt.Sprintf("invalid DIARIZER_TIMEOUT: %s", cfg.Diarizer.Timeout))
	}

	// 7. 转写配置验证
	switch cfg.Transcriber.Mode {
	case "http":
		if cfg.Transcriber.APIURL == "" {
			errors = append(errors, "WHISPER_API_URL is required when WHISPER_MODE is http")
		}
	case "cli":
		if cfg.Transcriber.BinaryPath == "" {
			errors = append(errors, "WHISPER_CLI_PATH is required when WHISPER_MODE is cli")
		}
	case "mock":
	default:
		errors = append(errors, fmt.Sprintf("invalid WHISPER_MODE: %s (must be: http, cli, mock)", cfg.Transcriber.Mode))
	}
	if _, err := time.ParseDuration(cfg.Transcriber.Timeout); err != nil {
		errors = append(errors, fmt.Sprintf("invalid WHISPER_TIMEOUT: %s", cfg.Transcriber.Timeout))
	}
	if _, err := time.ParseDuration(cfg.Transcriber.HealthCheckInterval); err != nil {
		errors = append(errors, fmt.Sprintf("invalid HEALTH_CHECK_INTERVAL: %s", cfg.Transcriber.HealthCheckInterval))
	}
	if cfg.Transcriber.HealthCheckFailThreshold <= 0 {
		errors = append(errors, "HEALTH_CHECK_FAIL_THRESHOLD must be greater than 0")
	}

	// 8. 流水线配置验证
	if cfg.Pipeline.FFmpegPath == "" {
		errors = append(errors, "FFMPEG_PATH cannot be empty")
	}
	if cfg.Pipeline.MaxConcurrentRuns <= 0 {
		errors = append(errors, "MAX_CONCURRENT_RUNS must be greater than 0")
	}

	// 9. 监听目录验证
	if cfg.Watch.Enabled && cfg.Watch.Dir == "" {
		errors = append(errors, "WATCH_DIR is required when WATCH_ENABLED is true")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsProduction 判断是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// IsDevelopment 判断是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "dev" || c.Server.Env == "development"
}

// GetServerAddr 获取服务器监听地址
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// TokenTTLDuration 返回解析后的会话令牌有效期
func (c *Config) TokenTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.Security.TokenTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// PrintConfig 打印配置（脱敏）
func (c *Config) PrintConfig() string {
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Data Directories:
    - Sessions: %s
    - Scratch: %s
    - Audit Logs: %s
  Logging:
    - Level: %s
    - Format: %s
  Security:
    - JWT Secret: %s
    - Token TTL: %s
    - CORS Origins: %v
  Diarizer:
    - Mode: %s
    - API URL: %s
    - Script: %s
    - HF Token: %s
  Transcriber:
    - Mode: %s
    - API URL: %s
    - Model: %s
  Pipeline:
    - FFmpeg: %s
    - Max Concurrent Runs: %d
  Watch:
    - Enabled: %t
    - Dir: %s`,
		c.Server.Env,
		c.Server.Port,
		c.Data.SessionsDir,
		c.Data.ScratchDir,
		c.Data.AuditLogsDir,
		c.Log.Level,
		c.Log.Format,
		maskSecret(c.Security.JWTSecret),
		c.Security.TokenTTL,
		c.Security.CORSAllowedOrigins,
		c.Diarizer.Mode,
		c.Diarizer.APIURL,
		c.Diarizer.ScriptPath,
		maskSecret(c.Diarizer.HFToken),
		c.Transcriber.Mode,
		c.Transcriber.APIURL,
		c.Transcriber.Model,
		c.Pipeline.FFmpegPath,
		c.Pipeline.MaxConcurrentRuns,
		c.Watch.Enabled,
		c.Watch.Dir,
	)
}

// 辅助函数

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 获取整型环境变量，解析失败返回默认值
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloat 获取浮点环境变量，解析失败返回默认值
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool 获取布尔环境变量，支持 true/1
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1"
}

// parseStringList 解析逗号分隔的字符串列表
func parseStringList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// maskSecret 对敏感信息进行脱敏
func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}
