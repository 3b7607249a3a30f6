package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Talha-Tahir2001/CollabSphere/internal/config"
	"github.com/Talha-Tahir2001/CollabSphere/internal/crypto"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

func main() {
	cfg := config.Load()

	secret := flag.String("secret", cfg.JWTSecret, "JWT signing secret (defaults to JWT_SECRET)")
	userID := flag.String("user", "", "User UUID")
	username := flag.String("username", "", "Username embedded in the token")
	role := flag.String("role", models.RoleMember, "Role embedded in the token")
	ttl := flag.Duration("ttl", cfg.TokenTTL, "Token lifetime")
	flag.Parse()

	if *userID == "" || *username == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -user <user-uuid> -username <name> [-secret <secret>] [-ttl 24h]")
		os.Exit(1)
	}

	id, err := uuid.Parse(*userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid user id: %v\n", err)
		os.Exit(1)
	}

	token, err := crypto.NewTokenIssuer(*secret, *ttl).Issue(&models.User{
		ID:       id,
		Username: *username,
		Role:     *role,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Authorization: Bearer %s\n", token)
	fmt.Printf("Expires: %s\n", time.Now().Add(*ttl).UTC().Format(time.RFC3339))
}
