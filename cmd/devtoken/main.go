// Command devtoken prints a signed token for local testing against the API.
//
//	go run ./cmd/devtoken -owner alice
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/Tomlord1122/kanban-backend/internal/auth"
	"github.com/Tomlord1122/kanban-backend/internal/config"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	owner := flag.String("owner", "", "owner id to put in the token")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_TTL)")
	flag.Parse()

	if *owner == "" {
		log.Fatal("-owner is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	lifetime := cfg.Auth.TokenTTL.Duration()
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := auth.NewResolver(cfg.Auth.JWTSecret).Issue(*owner, lifetime)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}
