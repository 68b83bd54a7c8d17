package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
)

const (
	TransportRedis  = "redis"
	TransportMemory = "memory"
)

type Config struct {
	LogLevel   string    `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort   string    `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort string    `yaml:"socket-port" env:"SOCKET_PORT" env-default:"9091"`
	Transport  Transport `yaml:"transport"`
	Redis      Redis     `yaml:"redis"`
	Session    Session   `yaml:"session"`
}

type Transport struct {
	Kind      string `yaml:"kind" env:"TRANSPORT_KIND" env-default:"redis"`
	ServiceID string `yaml:"service-id" env:"TRANSPORT_SERVICE_ID" env-default:"tictactoe"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

type Session struct {
	BoardSize int    `yaml:"board-size" env:"SESSION_BOARD_SIZE" env-default:"3"`
	AutoPlay  bool   `yaml:"auto-play" env:"SESSION_AUTO_PLAY" env-default:"false"`
	Seed      uint64 `yaml:"seed" env:"SESSION_SEED" env-default:"0"`
	// local bot opponents joining over the in-memory transport
	Bots int `yaml:"bots" env:"SESSION_BOTS" env-default:"1"`
}

// MustLoad - load all configurations in config.yml file, environment variables take precedence.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (that *Config) Validate() error {
	switch that.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log level %q", apperror.ErrInvalidConfiguration, that.LogLevel)
	}

	switch that.Transport.Kind {
	case TransportRedis, TransportMemory:
	default:
		return fmt.Errorf("%w: transport %q", apperror.ErrInvalidConfiguration, that.Transport.Kind)
	}

	if that.Transport.ServiceID == "" {
		return fmt.Errorf("%w: empty service id", apperror.ErrInvalidConfiguration)
	}

	if err := entity.ValidateConfiguration(that.Session.BoardSize, entity.MinPlayers); err != nil {
		return err
	}

	if that.Session.Bots < 0 {
		return fmt.Errorf("%w: negative bot count", apperror.ErrInvalidConfiguration)
	}

	return nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
