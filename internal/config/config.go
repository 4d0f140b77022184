// Package config loads the service configuration with viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/viper"

	"github.com/Abrham-amplitude/solana-ticket/internal/db"
	"github.com/Abrham-amplitude/solana-ticket/internal/ledger"
	"github.com/Abrham-amplitude/solana-ticket/internal/listener"
	"github.com/Abrham-amplitude/solana-ticket/internal/services"
)

const EnvPrefix = "SOLTICKET"

type Config struct {
	Solana SolanaConfig   `mapstructure:"solana"`
	Ticket TicketConfig   `mapstructure:"ticket"`
	MySQL  db.MySQLConfig `mapstructure:"mysql"`
	Redis  RedisConfig    `mapstructure:"redis"`
	App    AppConfig      `mapstructure:"app"`
}

type SolanaConfig struct {
	RPCURL               string        `mapstructure:"rpc_url"`
	WSURL                string        `mapstructure:"ws_url"` // 为空时不启动票据监听
	Commitment           string        `mapstructure:"commitment"`
	ConfirmTimeout       time.Duration `mapstructure:"confirm_timeout"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	SkipPreflight        bool          `mapstructure:"skip_preflight"`
	SerializeSubmissions bool          `mapstructure:"serialize_submissions"`
	HistoryPageSize      int           `mapstructure:"history_page_size"`
	WatchRefresh         time.Duration `mapstructure:"watch_refresh"` // 监听器重新扫描登记表的间隔
}

type TicketConfig struct {
	FeeReserve         uint64 `mapstructure:"fee_reserve"`      // lamports
	AssetFeeMargin     uint64 `mapstructure:"asset_fee_margin"` // lamports
	AttachMetadataMemo bool   `mapstructure:"attach_metadata_memo"`
	ComputeUnitPrice   uint64 `mapstructure:"compute_unit_price"` // micro-lamports，0 表示不加优先费
	ComputeUnitLimit   uint32 `mapstructure:"compute_unit_limit"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"` // 为空时不限流
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AppConfig struct {
	Port                int      `mapstructure:"port"`
	AirdropLimitPerHour int64    `mapstructure:"airdrop_limit_per_hour"`
	LogLevel            string   `mapstructure:"log_level"`
	TrustedCIDRs        []string `mapstructure:"trusted_cidrs"` // 除本机外允许访问钱包接口的网段
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("solana.rpc_url", rpc.DevNet_RPC)
	v.SetDefault("solana.ws_url", "")
	v.SetDefault("solana.commitment", string(rpc.CommitmentConfirmed))
	v.SetDefault("solana.confirm_timeout", ledger.DefaultConfirmTimeout)
	v.SetDefault("solana.poll_interval", ledger.DefaultPollInterval)
	v.SetDefault("solana.skip_preflight", false)
	v.SetDefault("solana.serialize_submissions", false)
	v.SetDefault("solana.history_page_size", services.DefaultHistoryPageSize)
	v.SetDefault("solana.watch_refresh", listener.DefaultRefreshInterval)

	v.SetDefault("ticket.fee_reserve", services.DefaultFeeReserve)
	v.SetDefault("ticket.asset_fee_margin", services.DefaultAssetFeeMargin)
	v.SetDefault("ticket.attach_metadata_memo", true)
	v.SetDefault("ticket.compute_unit_price", 0)
	v.SetDefault("ticket.compute_unit_limit", 0)

	v.SetDefault("mysql.host", "")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.dbname", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("app.port", 8080)
	v.SetDefault("app.airdrop_limit_per_hour", 5)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.trusted_cidrs", []string{})
}

// Load 读取配置：path 为空时在 . 和 $HOME/.solticket 中查找 config.yaml，
// 找不到文件时使用默认值。环境变量 SOLTICKET_<SECTION>_<KEY> 覆盖文件。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.solticket")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Solana.RPCURL == "" {
		return errors.New("solana.rpc_url is required")
	}
	switch rpc.CommitmentType(c.Solana.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("solana.commitment: unknown level %q", c.Solana.Commitment)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port: %d out of range", c.App.Port)
	}
	if c.Solana.WatchRefresh <= 0 {
		return fmt.Errorf("solana.watch_refresh: must be positive, got %s", c.Solana.WatchRefresh)
	}
	if _, err := c.TrustedNets(); err != nil {
		return err
	}
	return nil
}

// TrustedNets parses app.trusted_cidrs.
func (c *Config) TrustedNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.App.TrustedCIDRs))
	for _, cidr := range c.App.TrustedCIDRs {
		_, n, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("app.trusted_cidrs: %w", err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func (c *Config) LedgerOptions() ledger.Options {
	return ledger.Options{
		Commitment:           rpc.CommitmentType(c.Solana.Commitment),
		ConfirmTimeout:       c.Solana.ConfirmTimeout,
		PollInterval:         c.Solana.PollInterval,
		SkipPreflight:        c.Solana.SkipPreflight,
		SerializeSubmissions: c.Solana.SerializeSubmissions,
	}
}

func (c *Config) EngineConfig() services.Config {
	return services.Config{
		FeeReserve:         c.Ticket.FeeReserve,
		AssetFeeMargin:     c.Ticket.AssetFeeMargin,
		AttachMetadataMemo: c.Ticket.AttachMetadataMemo,
		HistoryPageSize:    c.Solana.HistoryPageSize,
		ComputeUnitPrice:   c.Ticket.ComputeUnitPrice,
		ComputeUnitLimit:   c.Ticket.ComputeUnitLimit,
	}
}
