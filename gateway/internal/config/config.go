package config

import (
	"os"

	pkgcfg "github.com/Skotchmaster/checkout/pkg/config"
)

type Config struct {
	ListenAddr string
	LogLevel   string
	CartURL    string
	OrderURL   string
	JWTSecret  []byte

	SecureCookies bool
}

func Load() *Config {
	return &Config{
		ListenAddr: pkgcfg.EnvDefault("GATEWAY_ADDR", ":8080"),
		LogLevel:   pkgcfg.EnvDefault("LOG_LEVEL", "info"),
		CartURL:    pkgcfg.MustEnv("CART_URL"),
		OrderURL:   pkgcfg.MustEnv("ORDER_URL"),
		JWTSecret:  pkgcfg.MustNonEmptyBytes([]byte(os.Getenv("JWT_SECRET")), "JWT_SECRET"),

		SecureCookies: os.Getenv("COOKIE_SECURE") == "true",
	}
}
