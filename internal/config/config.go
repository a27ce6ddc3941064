package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	LedgerEthereum  = "ethereum"
	LedgerSimulated = "simulated"

	UITerminal = "tui"
	UIHeadless = "headless"
)

type Config struct {
	LogLevel    string      `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort    string      `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort  string      `yaml:"socket-port" env:"SOCKET_PORT" env-default:"9091"`
	UI          string      `yaml:"ui" env:"UI" env-default:"headless"`
	Ledger      Ledger      `yaml:"ledger"`
	Coordinator Coordinator `yaml:"coordinator"`
	Session     Session     `yaml:"session"`
	Redis       Redis       `yaml:"redis"`
}

type Ledger struct {
	Driver          string        `yaml:"driver" env:"LEDGER_DRIVER" env-default:"simulated"`
	RPCURL          string        `yaml:"rpc-url" env:"LEDGER_RPC_URL"`
	ContractAddress string        `yaml:"contract-address" env:"LEDGER_CONTRACT_ADDRESS"`
	PrivateKey      string        `yaml:"private-key" env:"LEDGER_PRIVATE_KEY"`
	ChainID         int64         `yaml:"chain-id" env:"LEDGER_CHAIN_ID" env-default:"0"`
	ReceiptTimeout  time.Duration `yaml:"receipt-timeout" env:"LEDGER_RECEIPT_TIMEOUT" env-default:"2m"`
	BlockTime       time.Duration `yaml:"block-time" env:"LEDGER_BLOCK_TIME" env-default:"500ms"`
}

type Coordinator struct {
	RefreshAttempts  int           `yaml:"refresh-attempts" env-default:"3"`
	RefreshBaseDelay time.Duration `yaml:"refresh-base-delay" env-default:"200ms"`
	RefreshMaxDelay  time.Duration `yaml:"refresh-max-delay" env-default:"2s"`
	// PendingTimeout is counted from submission to receipt. Zero disables the local give-up ceiling.
	PendingTimeout time.Duration `yaml:"pending-timeout" env-default:"0s"`
}

type Session struct {
	Resume bool          `yaml:"resume" env:"SESSION_RESUME" env-default:"false"`
	TTL    time.Duration `yaml:"ttl" env-default:"24h"`
}

type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env-default:"0"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}

// Enabled reports whether a redis journal is configured.
func (that *Redis) Enabled() bool {
	return that.Host != ""
}
