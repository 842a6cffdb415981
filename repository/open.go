package repository

import (
	"context"
	"fmt"
	"log"

	"npcheck/config"
	"npcheck/database"

	"github.com/redis/go-redis/v9"
)

// Open builds the Store selected by cfg.StoreBackend. The returned
// function releases its connections.
func Open(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	switch cfg.StoreBackend {
	case "", "memory":
		log.Println("Using in-memory storage")
		return NewMemoryStore(), func() {}, nil

	case "postgres":
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.CreateTables(db); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Println("Using Postgres storage")
		return NewPostgresStore(db), func() { db.Close() }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		store := NewRedisStore(client, "npc:")
		if err := store.Ping(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		log.Printf("Using Redis storage at %s", cfg.RedisAddr)
		return store, func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StoreBackend)
}
