package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/noah-isme/menumaster-admin/internal/auth"
	"github.com/noah-isme/menumaster-admin/internal/config"
)

// devtoken prints a signed access token for local testing of the API.
// Exit code 0 = ok, 1 = bad flags, 2 = other error.
func main() {
	var (
		id   = flag.String("id", "", "actor id placed in the sub claim")
		role = flag.String("role", "maker", "admin, maker or checker")
		ttl  = flag.Duration("ttl", 0, "token lifetime; defaults to ACCESS_TOKEN_TTL")
	)
	flag.Parse()

	parsed, ok := auth.ParseRole(*role)
	if *id == "" || !ok {
		fmt.Fprintln(os.Stderr, "usage: devtoken -id <actor> -role admin|maker|checker [-ttl 1h]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(2)
	}
	accessTTL := cfg.Auth.AccessTokenTTL
	if *ttl > 0 {
		accessTTL = *ttl
	}
	svc, err := auth.NewService(auth.Config{
		Secret:         cfg.Auth.Secret,
		AccessTokenTTL: accessTTL,
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(2)
	}
	token, expires, err := svc.IssueAccessToken(auth.Actor{ID: *id, Role: parsed})
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.UTC().Format(time.RFC3339))
}
