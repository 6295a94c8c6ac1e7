// Command bootstrap provisions the first administrator account and an
// optional set of departments. Account creation is admin-only through the
// API, so a fresh database needs this one-time seed.
package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-enroll-api/internal/models"
	"github.com/noah-isme/campus-enroll-api/internal/repository"
	"github.com/noah-isme/campus-enroll-api/pkg/config"
	"github.com/noah-isme/campus-enroll-api/pkg/database"
)

func main() {
	var (
		email       string
		fullName    string
		password    string
		departments string
	)

	flag.StringVar(&email, "email", "admin@example.edu", "Administrator email")
	flag.StringVar(&fullName, "name", "System Administrator", "Administrator full name")
	flag.StringVar(&password, "password", "", "Administrator password (required)")
	flag.StringVar(&departments, "departments", "", "Comma-separated NAME:CODE department pairs")
	flag.Parse()

	if password == "" {
		log.Fatal("a password is required, pass -password")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := repository.NewUserRepository(db)
	courses := repository.NewCourseRepository(db)

	if existing, err := users.FindByEmail(ctx, email); err == nil {
		log.Printf("account %s already exists (role %s), nothing to do", existing.Email, existing.Role)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	admin := &models.User{
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := users.CreateWithProfile(ctx, admin); err != nil {
		log.Fatalf("failed to create administrator: %v", err)
	}
	log.Printf("administrator %s created (%s)", admin.Email, admin.ID)

	for _, pair := range strings.Split(departments, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			log.Printf("skipping malformed department %q, expected NAME:CODE", pair)
			continue
		}
		department := &models.Department{Name: parts[0], Code: parts[1]}
		if err := courses.CreateDepartment(ctx, department); err != nil {
			log.Printf("failed to create department %s: %v", parts[1], err)
			continue
		}
		log.Printf("department %s (%s) created", department.Name, department.Code)
	}
}
