// Package main is a development utility for generating a marketplace author
// account with a fresh API token. It prints the raw token and a ready-to-run
// SQL INSERT statement so developers can quickly seed a usable author in a
// local database without separate provisioning tooling. Do not use generated
// tokens in production — issue them through your identity provider instead.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
)

func main() {
	username := "dev"
	if len(os.Args) > 1 {
		username = os.Args[1]
	}

	// Generate random bytes
	randomBytes := make([]byte, 32)
	_, err := rand.Read(randomBytes)
	if err != nil {
		log.Fatal(err)
	}

	// Encode to base64
	token := "pmk_" + base64.RawURLEncoding.EncodeToString(randomBytes)
	id := uuid.NewString()

	fmt.Println("==========================================================")
	fmt.Println("Author API Token Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nUsername: %s\n", username)
	fmt.Printf("\nToken: %s\n", token)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Insert:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO users (id, username, api_token, created_at)
VALUES ('%s', '%s', '%s', CURRENT_TIMESTAMP);
`, id, username, token)
	fmt.Println("\n==========================================================")
	fmt.Printf("Authorization Header: Bearer %s\n", token)
	fmt.Println("==========================================================")
}
