package config

import (
	pkgcfg "github.com/Skotchmaster/checkout/pkg/config"
)

type Config struct {
	pkgcfg.Config
}

func Load() Config {
	base := pkgcfg.Load()
	if base.ServiceName == "" {
		base.ServiceName = "cart"
	}

	pkgcfg.MustNonEmpty(base.DatabaseURL, "DATABASE_URL")
	pkgcfg.MustNonEmptyBytes(base.JWTAccessSecret, "JWT_SECRET")

	return Config{Config: base}
}
