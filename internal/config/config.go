package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用程序配置结构
type Config struct {
	// 网关代理配置
	Gateway struct {
		ListenAddress  string        `mapstructure:"listen_address"`
		Port           int           `mapstructure:"port"`
		ForwardTimeout time.Duration `mapstructure:"forward_timeout"`
	} `mapstructure:"gateway"`

	// 管理API配置
	Admin struct {
		ListenAddress string `mapstructure:"listen_address"`
		Port          int    `mapstructure:"port"`
	} `mapstructure:"admin"`

	// DNS发现服务配置
	DNS struct {
		Enabled       bool   `mapstructure:"enabled"`
		ListenAddress string `mapstructure:"listen_address"`
		Port          int    `mapstructure:"port"`
		Protocol      string `mapstructure:"protocol"` // "udp", "tcp", 或 "both"
		Domain        string `mapstructure:"domain"`
		TTL           uint32 `mapstructure:"ttl"`
	} `mapstructure:"dns"`

	// etcd配置，enabled为false时使用内存存储
	Etcd struct {
		Enabled        bool          `mapstructure:"enabled"`
		Endpoints      []string      `mapstructure:"endpoints"`
		Username       string        `mapstructure:"username"`
		Password       string        `mapstructure:"password"`
		DialTimeout    time.Duration `mapstructure:"dial_timeout"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"etcd"`

	// 健康检查配置
	Health struct {
		Interval     time.Duration `mapstructure:"interval"`
		ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	} `mapstructure:"health"`

	// 负载均衡配置
	Balancer struct {
		DefaultStrategy string `mapstructure:"default_strategy"`
	} `mapstructure:"balancer"`

	// 工作流执行配置
	Workflow struct {
		StepTimeout        time.Duration `mapstructure:"step_timeout"`
		CleanupInterval    time.Duration `mapstructure:"cleanup_interval"`
		RetentionDays      int           `mapstructure:"retention_days"`
		IntegrationTimeout time.Duration `mapstructure:"integration_timeout"`
	} `mapstructure:"workflow"`

	// 日志配置
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// LoadConfig 从文件和环境变量加载配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果指定了配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// 设置配置文件名和路径
		v.SetConfigName("config")             // 配置文件名（无扩展名）
		v.AddConfigPath(".")                  // 当前目录
		v.AddConfigPath("./configs")          // configs目录
		v.AddConfigPath("/etc/mesh-gateway")  // 系统目录
	}

	// 配置文件格式
	v.SetConfigType("yaml")

	// 尝试从配置文件加载
	if err := v.ReadInConfig(); err != nil {
		// 如果找不到配置文件，仅使用默认值；其他错误则返回
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件错误: %w", err)
		}
	}

	// 绑定环境变量
	v.SetEnvPrefix("MESH_GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 从环境变量覆盖
	bindEnvVariables(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置错误: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 网关默认配置
	v.SetDefault("gateway.listen_address", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.forward_timeout", "30s")

	// 管理API默认配置
	v.SetDefault("admin.listen_address", "0.0.0.0")
	v.SetDefault("admin.port", 8081)

	// DNS服务默认配置
	v.SetDefault("dns.enabled", false)
	v.SetDefault("dns.listen_address", "0.0.0.0")
	v.SetDefault("dns.port", 8053)
	v.SetDefault("dns.protocol", "both")
	v.SetDefault("dns.domain", "svc.mesh.local")
	v.SetDefault("dns.ttl", 30)

	// etcd默认配置
	v.SetDefault("etcd.enabled", false)
	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.username", "")
	v.SetDefault("etcd.password", "")
	v.SetDefault("etcd.dial_timeout", "5s")
	v.SetDefault("etcd.request_timeout", "5s")

	// 健康检查默认配置
	v.SetDefault("health.interval", "30s")
	v.SetDefault("health.probe_timeout", "5s")

	// 负载均衡默认配置
	v.SetDefault("balancer.default_strategy", "round-robin")

	// 工作流默认配置
	v.SetDefault("workflow.step_timeout", "300s")
	v.SetDefault("workflow.cleanup_interval", "1h")
	v.SetDefault("workflow.retention_days", 30)
	v.SetDefault("workflow.integration_timeout", "30s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", true)
}

// bindEnvVariables 绑定特定的环境变量
func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("gateway.port", "MESH_GATEWAY_GATEWAY_PORT")
	v.BindEnv("admin.port", "MESH_GATEWAY_ADMIN_PORT")
	v.BindEnv("dns.port", "MESH_GATEWAY_DNS_PORT")
	v.BindEnv("etcd.endpoints", "MESH_GATEWAY_ETCD_ENDPOINTS")
	v.BindEnv("balancer.default_strategy", "MESH_GATEWAY_BALANCER_DEFAULT_STRATEGY")
}

// validate 验证配置有效性
func validate(config *Config) error {
	if config.Gateway.Port <= 0 || config.Gateway.Port > 65535 {
		return fmt.Errorf("网关端口配置无效: %d", config.Gateway.Port)
	}
	if config.Admin.Port <= 0 || config.Admin.Port > 65535 {
		return fmt.Errorf("管理API端口配置无效: %d", config.Admin.Port)
	}
	if config.DNS.Enabled {
		if config.DNS.Port <= 0 || config.DNS.Port > 65535 {
			return fmt.Errorf("DNS端口配置无效: %d", config.DNS.Port)
		}
		switch config.DNS.Protocol {
		case "udp", "tcp", "both":
		default:
			return fmt.Errorf("不支持的DNS协议: %s", config.DNS.Protocol)
		}
		if config.DNS.Domain == "" {
			return fmt.Errorf("DNS域名后缀不能为空")
		}
	}
	if config.Health.Interval <= 0 {
		return fmt.Errorf("健康检查间隔配置无效: %v", config.Health.Interval)
	}
	if config.Workflow.RetentionDays <= 0 {
		return fmt.Errorf("执行记录保留天数配置无效: %d", config.Workflow.RetentionDays)
	}
	return nil
}
