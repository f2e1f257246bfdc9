// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	NetWatch   NetWatchConfig   `mapstructure:"netwatch"`
	API        APIConfig        `mapstructure:"api"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// OutboxConfig 投递队列配置；BaseURL 为唯一必填项
type OutboxConfig struct {
	BaseURL        string        `mapstructure:"base_url"`        // 远端 memory 服务地址，投递到 <base_url>/memory/
	SlotPrefix     string        `mapstructure:"slot_prefix"`     // 持久化槽 key 前缀，默认 "outbox/"
	Cipher         string        `mapstructure:"cipher"`          // aes-gcm | xchacha20，默认 aes-gcm
	RequestTimeout string        `mapstructure:"request_timeout"` // 单次投递超时，如 "10s"
	FlushRPS       float64       `mapstructure:"flush_rps"`       // 重放投递速率，<=0 不限速
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig 投递熔断配置
type BreakerConfig struct {
	Enable           bool    `mapstructure:"enable"`
	MaxRequests      uint32  `mapstructure:"max_requests"`      // half-open 时放行请求数
	Interval         string  `mapstructure:"interval"`          // closed 状态统计周期
	Timeout          string  `mapstructure:"timeout"`           // open 状态持续时间
	FailureThreshold float64 `mapstructure:"failure_threshold"` // 失败率阈值
	MinRequests      uint32  `mapstructure:"min_requests"`      // 达到该请求数后才判断失败率
}

// StorageConfig 存储配置
type StorageConfig struct {
	Slot SlotConfig `mapstructure:"slot"`
}

// SlotConfig 持久化 key/value 槽配置
type SlotConfig struct {
	Type     string `mapstructure:"type"`     // file | memory | redis | postgres
	Path     string `mapstructure:"path"`     // type=file 时的数据文件
	Addr     string `mapstructure:"addr"`     // type=redis
	DB       int    `mapstructure:"db"`       // type=redis
	Password string `mapstructure:"password"` // type=redis，可写 ${ENV}
	DSN      string `mapstructure:"dsn"`      // type=postgres
	Table    string `mapstructure:"table"`    // type=postgres，默认 outbox_slots
}

// SecretsConfig 密钥槽来源；provider=slot 时与队列共用 storage.slot
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // slot | vault | env | memory
	Vault    VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"` // 可写 ${VAULT_TOKEN}
	PathPrefix string `mapstructure:"path_prefix"`
}

// NetWatchConfig 连通性探测配置
type NetWatchConfig struct {
	Enable    bool   `mapstructure:"enable"`
	HealthURL string `mapstructure:"health_url"` // 空则使用 <base_url>/health
	Interval  string `mapstructure:"interval"`   // 如 "15s"
}

// APIConfig 本地守护进程 HTTP 配置
type APIConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// setDefaults 缺省值；除 outbox.base_url 外均可不配
func setDefaults(v *viper.Viper) {
	// 注册空值使 OUTBOX_BASE_URL 等环境变量可参与 Unmarshal
	v.SetDefault("outbox.base_url", "")
	v.SetDefault("outbox.slot_prefix", "outbox/")
	v.SetDefault("outbox.cipher", "aes-gcm")
	v.SetDefault("outbox.request_timeout", "10s")
	v.SetDefault("outbox.breaker.max_requests", 5)
	v.SetDefault("outbox.breaker.interval", "30s")
	v.SetDefault("outbox.breaker.timeout", "60s")
	v.SetDefault("outbox.breaker.failure_threshold", 0.8)
	v.SetDefault("outbox.breaker.min_requests", 5)
	v.SetDefault("storage.slot.type", "file")
	v.SetDefault("storage.slot.path", "data/outbox.json")
	v.SetDefault("storage.slot.table", "outbox_slots")
	v.SetDefault("secrets.provider", "slot")
	v.SetDefault("secrets.vault.path_prefix", "secret")
	v.SetDefault("netwatch.interval", "15s")
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 7070)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.tracing.service_name", "memory-outbox")
}

// LoadConfig 加载配置文件；configPath 为空时仅使用缺省值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	// 替换环境变量
	replaceEnvVars(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 校验必填项与枚举值
func (c *Config) Validate() error {
	if c.Outbox.BaseURL == "" {
		return fmt.Errorf("outbox.base_url 不能为空")
	}
	switch c.Outbox.Cipher {
	case "", "aes-gcm", "xchacha20":
	default:
		return fmt.Errorf("unsupported outbox.cipher: %s", c.Outbox.Cipher)
	}
	switch c.Storage.Slot.Type {
	case "", "file", "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unsupported storage.slot.type: %s", c.Storage.Slot.Type)
	}
	switch c.Secrets.Provider {
	case "", "slot", "vault", "env", "memory":
	default:
		return fmt.Errorf("unsupported secrets.provider: %s", c.Secrets.Provider)
	}
	if c.Secrets.Provider == "memory" && c.Storage.Slot.Type != "memory" {
		return fmt.Errorf("secrets.provider=memory 仅可与 storage.slot.type=memory 搭配: 进程重启后密钥丢失，持久队列将无法解密")
	}
	return nil
}

// replaceEnvVars 替换配置中形如 ${VAR} 的敏感字段
func replaceEnvVars(config *Config) {
	config.Secrets.Vault.Token = expandEnv(config.Secrets.Vault.Token)
	config.Storage.Slot.Password = expandEnv(config.Storage.Slot.Password)
	config.Storage.Slot.DSN = expandEnv(config.Storage.Slot.DSN)
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	envVar := strings.TrimPrefix(strings.TrimSuffix(s, "}"), "${")
	envVar = strings.TrimPrefix(envVar, "$")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return s
}

// LoadOutboxConfig 加载守护进程配置（configs/outbox.yaml，可由 MEMQ_CONFIG 覆盖）
func LoadOutboxConfig() (*Config, error) {
	path := os.Getenv("MEMQ_CONFIG")
	if path == "" {
		path = "configs/outbox.yaml"
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	return LoadConfig(path)
}
