// Command devtoken выпускает JWT для локальной разработки:
//
//	go run ./cmd/devtoken -user 1 -role tutor
//
// Секрет берётся из JWT_SECRET (.env поддерживается).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/controller/httpapi"
	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func main() {
	userID := flag.Int64("user", 0, "user id")
	role := flag.String("role", string(model.RoleStudent), "student | tutor | admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load(".env")
	v := viper.New()
	v.AutomaticEnv()
	secret := v.GetString("JWT_SECRET")

	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	if *userID <= 0 || !model.Role(*role).Valid() {
		flag.Usage()
		os.Exit(2)
	}

	token, err := httpapi.IssueToken(secret, model.Actor{UserID: *userID, Role: model.Role(*role)}, *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}
