// Package main is a development utility for seeding a local admin account. It
// generates a random password with its bcrypt hash pre-computed and prints a
// ready-to-run SQL INSERT so developers can log in against a fresh local
// database without running a registration flow. Do not use generated accounts
// in production.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	randomBytes := make([]byte, 18)
	if _, err := rand.Read(randomBytes); err != nil {
		log.Fatal(err)
	}
	password := base64.RawURLEncoding.EncodeToString(randomBytes)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		log.Fatal(err)
	}

	id := uuid.New().String()

	fmt.Println("==========================================================")
	fmt.Println("Local Admin Account")
	fmt.Println("==========================================================")
	fmt.Printf("\nEmail:    admin@dev.local\n")
	fmt.Printf("Password: %s\n", password)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Insert:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO users (id, email, password_hash, name, role, active, created_at, updated_at)
VALUES ('%s', 'admin@dev.local', '%s', 'Local Admin', 'ADMIN', true, now(), now());
`, id, string(hashBytes))
	fmt.Println("==========================================================")
}
