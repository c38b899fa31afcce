// seed inserts development accounts for local testing.
// Idempotent: accounts whose email already exists are skipped.
package main

import (
	"context"
	"log"
	"time"

	"transcendence/backend/internal/config"
	"transcendence/backend/internal/db"
	"transcendence/backend/internal/security"
	userdomain "transcendence/backend/internal/user/domain"
	userrepo "transcendence/backend/internal/user/repository"
)

const devPassword = "password123"

var devUsers = []struct {
	email    string
	nickname string
}{
	{"dev@example.com", "dev"},
	{"member@example.com", "member"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("refusing to seed a production database")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)
	hasher := security.NewHasher(security.DefaultArgon2Params())
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	for _, du := range devUsers {
		existing, err := users.GetByEmail(ctx, du.email)
		if err != nil {
			log.Fatalf("seed check %s: %v", du.email, err)
		}
		if existing != nil {
			log.Printf("%s already exists (id %d); skipping", du.email, existing.ID)
			continue
		}
		u, err := users.Create(ctx, &userdomain.User{
			Email:        du.email,
			Nickname:     du.nickname,
			PasswordHash: passwordHash,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			log.Fatalf("create %s: %v", du.email, err)
		}
		log.Printf("created %s (id %d)", u.Email, u.ID)
	}
	log.Printf("seed complete; password for all dev accounts: %s", devPassword)
}
