package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"dm-core/auth"
)

// Mints a session token for local testing. The real deployment receives
// tokens from the external identity provider.
func main() {
	userID := flag.String("user", "", "User id to embed in the token")
	secret := flag.String("secret", "", "Signing secret (must match JWT_SECRET)")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *userID == "" || *secret == "" {
		log.Fatal("both -user and -secret are required")
	}

	token, err := auth.NewTokenManager(*secret, *ttl).Generate(*userID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
