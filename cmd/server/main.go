package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/model"
	"chatrelay/internal/server"
	"chatrelay/internal/store"
)

// Well-known residents joined to every new session.
var seedUsers = []struct {
	user     model.User
	password string
}{
	{model.User{Username: "alice", FullName: "Alice Agent", Email: "alice@chatrelay.local", Scopes: "chat"}, "alice"},
	{model.User{Username: "bob", FullName: "Bobby Bridge", Email: "bob@chatrelay.local", Scopes: "chat:user"}, "bob"},
	{model.User{Username: "charlie", FullName: "Charlie Chatbot", Email: "charlie@chatrelay.local", Scopes: "chat"}, "charlie"},
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	gin.SetMode(cfg.GinMode)
	st := store.New()

	defaultMembers := make([]string, 0, len(seedUsers))
	for _, seed := range seedUsers {
		if _, err := st.CreateUser(seed.user, seed.password); err != nil {
			log.Fatalf("seed user %s: %v", seed.user.Username, err)
		}
		defaultMembers = append(defaultMembers, seed.user.Username)
	}

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "chatrelay",
	}

	router := server.NewRouter(server.Deps{
		Store:          st,
		TokenConfig:    tokenCfg,
		DefaultMembers: defaultMembers,
	})
	log.Printf("listening on %s", fmt.Sprintf(":%d", cfg.Port))
	log.Fatal(server.Run(cfg, router))
}
