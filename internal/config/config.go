// Package config содержит логику чтения конфигурации сервиса маркетплейса.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса маркетплейса.
// Ставки комиссии, эквайринга и налога заданы долями от суммы заказа.
type Config struct {
	RunAddress         string  `env:"RUN_ADDRESS"`
	DatabaseURI        string  `env:"DATABASE_URI"`
	PushGatewayAddress string  `env:"PUSH_GATEWAY_ADDRESS"`
	JWTSecret          string  `env:"JWT_SECRET"`
	CommissionRate     float64 `env:"COMMISSION_RATE"`
	ProcessingFeeRate  float64 `env:"PROCESSING_FEE_RATE"`
	WithholdingTaxRate float64 `env:"WITHHOLDING_TAX_RATE"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения переменных окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPushAddress := cfg.PushGatewayAddress
	envJWTSecret := cfg.JWTSecret
	envCommission := cfg.CommissionRate
	envProcessing := cfg.ProcessingFeeRate
	envWithholding := cfg.WithholdingTaxRate

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PushGatewayAddress, "p", "", "realtime push gateway address")
	flag.StringVar(&cfg.JWTSecret, "s", "marketplace-secret", "JWT signing secret")
	flag.Float64Var(&cfg.CommissionRate, "commission", 0.05, "marketplace commission rate")
	flag.Float64Var(&cfg.ProcessingFeeRate, "processing", 0.02, "payment processing fee rate")
	flag.Float64Var(&cfg.WithholdingTaxRate, "withholding", 0.01, "withholding tax rate")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPushAddress != "" {
		cfg.PushGatewayAddress = envPushAddress
	}
	if envJWTSecret != "" {
		cfg.JWTSecret = envJWTSecret
	}
	if envCommission != 0 {
		cfg.CommissionRate = envCommission
	}
	if envProcessing != 0 {
		cfg.ProcessingFeeRate = envProcessing
	}
	if envWithholding != 0 {
		cfg.WithholdingTaxRate = envWithholding
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.CommissionRate < 0 || cfg.CommissionRate >= 1 {
		return nil, fmt.Errorf("commission rate out of range: %v", cfg.CommissionRate)
	}
	if cfg.ProcessingFeeRate < 0 || cfg.ProcessingFeeRate >= 1 {
		return nil, fmt.Errorf("processing fee rate out of range: %v", cfg.ProcessingFeeRate)
	}
	if cfg.WithholdingTaxRate < 0 || cfg.WithholdingTaxRate >= 1 {
		return nil, fmt.Errorf("withholding tax rate out of range: %v", cfg.WithholdingTaxRate)
	}

	return cfg, nil
}
