package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/TheGojiOG/athena/internal/auth"
	"github.com/TheGojiOG/athena/internal/config"
)

func main() {
	operator := flag.String("operator", "admin", "Operator name recorded in the token")
	scopes := flag.String("scopes", auth.ScopeOperate, "Comma separated scopes (read, operate)")
	ttl := flag.Duration("ttl", 0, "Token lifetime (defaults to auth.token_duration)")
	flag.Parse()

	// only the auth section matters here, so skip full validation
	cfg := config.Default()
	if err := loadAuthSection(cfg); err != nil {
		log.Fatal(err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT secret is required (set JWT_SECRET or auth.jwt_secret)")
	}

	duration := *ttl
	if duration <= 0 {
		d, err := time.ParseDuration(cfg.Auth.TokenDuration)
		if err != nil {
			log.Fatalf("invalid auth.token_duration %q: %v", cfg.Auth.TokenDuration, err)
		}
		duration = d
	}

	manager := auth.NewJWTManager(cfg.Auth.JWTSecret, duration)
	token, err := manager.GenerateToken(*operator, splitScopes(*scopes))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "Token for %s expires %s\n", *operator, manager.TokenExpiry().Format(time.RFC3339))
}

func loadAuthSection(cfg *config.Config) error {
	loaded, err := config.LoadFile(config.GetConfigPath())
	if err != nil {
		return err
	}
	if loaded != nil {
		cfg.Auth = loaded.Auth
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	return nil
}

func splitScopes(raw string) []string {
	var scopes []string
	for _, scope := range strings.Split(raw, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}
