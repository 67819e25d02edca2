// Package config 定义 broker 与客户端的类型化配置、默认值与校验规则。
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/compressor"
	"github.com/lk2023060901/danmu-chat-go/internal/network/crypto"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-go/internal/network/serializer"
	"github.com/lk2023060901/danmu-chat-go/internal/protocol"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	zviper "github.com/lk2023060901/danmu-chat-go/pkg/util/viper"
)

// EnvPrefix 为所有环境变量的前缀。
const EnvPrefix = "DANMU_CHAT"

var validate = validator.New()

// Config 为进程级配置的根。
type Config struct {
	Broker BrokerConfig `mapstructure:"broker"`
	Client ClientConfig `mapstructure:"client"`
	Log    log.Config   `mapstructure:"log"`
}

// NetworkConfig 为两端共用的连接层参数，两端必须一致。
type NetworkConfig struct {
	// Compress 为帧压缩算法：none 或 zstd。
	Compress string `mapstructure:"compress" validate:"oneof=none zstd"`
	// Secret 非空时启用帧加密与完整性校验。
	Secret        string `mapstructure:"secret"`
	MaxFrameSize  uint32 `mapstructure:"max_frame_size"`
	SendQueueSize int    `mapstructure:"send_queue_size" validate:"gte=0"`
}

// BrokerConfig 为服务端配置。
type BrokerConfig struct {
	Listen      string        `mapstructure:"listen" validate:"required"`
	ServiceName string        `mapstructure:"service_name" validate:"required"`
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	// ReadTimeout 为连接空闲超时，0 表示不限制。
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	// RejectStaleRoster 为 true 时，按过期名单版本计算下标的私信会被拒绝。
	RejectStaleRoster bool `mapstructure:"reject_stale_roster"`
	// FanoutWorkers 为并行投递的协程数，0 表示按 CPU 数自动决定。
	FanoutWorkers int `mapstructure:"fanout_workers" validate:"gte=0"`
	// MetricsListen 为 /metrics 监听地址，留空表示关闭。
	MetricsListen string        `mapstructure:"metrics_listen"`
	Network       NetworkConfig `mapstructure:"network"`
}

// ClientConfig 为客户端配置。
type ClientConfig struct {
	Host          string        `mapstructure:"host" validate:"required"`
	Port          int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	MaxAttempts   uint          `mapstructure:"max_attempts" validate:"gte=1"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff" validate:"gt=0"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout" validate:"gt=0"`
	CallTimeout   time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	MaxMessageLen int           `mapstructure:"max_message_len" validate:"gt=0"`
	Network       NetworkConfig `mapstructure:"network"`
}

// Addr 返回 host:port。
func (c ClientConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Defaults 返回所有配置项的默认值，key 与 mapstructure 标签一致。
func Defaults() map[string]any {
	return map[string]any{
		"broker.listen":                  fmt.Sprintf(":%d", protocol.DefaultPort),
		"broker.service_name":            protocol.ServiceName,
		"broker.call_timeout":            "3s",
		"broker.read_timeout":            "0s",
		"broker.reject_stale_roster":     false,
		"broker.fanout_workers":          0,
		"broker.metrics_listen":          ":9109",
		"broker.network.compress":        "none",
		"broker.network.secret":          "",
		"broker.network.max_frame_size":  0,
		"broker.network.send_queue_size": 0,

		"client.host":                    "localhost",
		"client.port":                    protocol.DefaultPort,
		"client.max_attempts":            3,
		"client.retry_backoff":           "2s",
		"client.dial_timeout":            "5s",
		"client.call_timeout":            "3s",
		"client.max_message_len":         1000,
		"client.network.compress":        "none",
		"client.network.secret":          "",
		"client.network.max_frame_size":  0,
		"client.network.send_queue_size": 0,

		"log.level":  "info",
		"log.format": "text",
		"log.stdout": true,
	}
}

// Default 返回只包含默认值的配置。
func Default() *Config {
	v := zviper.New()
	v.SetDefaults(Defaults())
	cfg, err := Load(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load 从 v 中解析并校验配置。
func Load(v *zviper.Config) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 按结构体标签校验配置。
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NewCodec 按配置组装帧编解码器。
func (n NetworkConfig) NewCodec() (codec.Codec, error) {
	comp, err := compressor.New(n.Compress)
	if err != nil {
		return nil, err
	}
	opts := codec.Options{
		Framer:     framer.NewLengthPrefixedFramer(n.MaxFrameSize),
		Serializer: serializer.JSONSerializer{},
		Compressor: comp,
	}
	if n.Secret != "" {
		enc, err := crypto.NewFromSecret([]byte(n.Secret))
		if err != nil {
			return nil, err
		}
		opts.Encryptor = enc
	}
	return codec.New(opts)
}
