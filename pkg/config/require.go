package config

import (
	"log"
	"os"
)

func MustNonEmpty(value, envName string) string {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
	return value
}

func MustNonEmptyBytes(value []byte, envName string) []byte {
	if len(value) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
	return value
}

func MustEnv(envName string) string {
	return MustNonEmpty(os.Getenv(envName), envName)
}
