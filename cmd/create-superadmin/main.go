package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/env"
	"github.com/troikatech/engage-api/pkg/logger"
	"github.com/troikatech/engage-api/pkg/mongo"
)

// create-superadmin bootstraps the first platform operator. The password is
// read from SUPERADMIN_PASSWORD so it never lands in shell history.
func main() {
	name := flag.String("name", "Platform Admin", "display name")
	email := flag.String("email", "", "login email (required)")
	flag.Parse()

	password := os.Getenv("SUPERADMIN_PASSWORD")
	if *email == "" || len(password) < auth.MinPasswordLength {
		fmt.Fprintf(os.Stderr, "usage: SUPERADMIN_PASSWORD=<at least %d chars> create-superadmin -email <email> [-name <name>]\n", auth.MinPasswordLength)
		os.Exit(2)
	}

	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.Log.Warn("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mongoClient.EnsureIndexes(ctx); err != nil {
		logger.Log.Fatal("Failed to create MongoDB indexes", zap.Error(err))
	}

	normalized := strings.ToLower(strings.TrimSpace(*email))
	n, err := mongoClient.NewQuery(mongo.CollSuperAdmins).Eq("email", normalized).Count(ctx)
	if err != nil {
		logger.Log.Fatal("Failed to check existing superadmins", zap.Error(err))
	}
	if n > 0 {
		logger.Log.Fatal("Superadmin already exists", zap.String("email", normalized))
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		logger.Log.Fatal("Failed to hash password", zap.Error(err))
	}

	sa := models.SuperAdmin{Name: strings.TrimSpace(*name), Email: normalized, Password: hash}
	sa.Touch()

	if _, err := mongoClient.NewQuery(mongo.CollSuperAdmins).Insert(ctx, &sa); err != nil {
		if mongo.IsDuplicateKey(err) {
			logger.Log.Fatal("Superadmin already exists", zap.String("email", normalized))
		}
		logger.Log.Fatal("Failed to create superadmin", zap.Error(err))
	}

	fmt.Printf("Superadmin created\n  id:    %s\n  email: %s\n", sa.ID.Hex(), sa.Email)
}
