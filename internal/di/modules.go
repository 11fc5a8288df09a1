package di

import (
	"log"
	"time"

	"go.uber.org/dig"

	"querypilot/config"
	"querypilot/internal/apis/handlers"
	"querypilot/pkg/dbmanager"
	"querypilot/pkg/rediscache"
)

// Cached schemas outlive sessions; a day keeps restarts cheap without letting
// stale schemas linger forever.
const schemaCacheTTL = 24 * time.Hour

var DiContainer *dig.Container

func Initialize() {
	DiContainer = dig.New()

	// Initialize Redis when enabled; the gateway runs purely in-memory
	// without it.
	var redisRepo rediscache.Repository
	if config.Env.RedisEnabled {
		redisClient, err := rediscache.NewClient(config.Env.RedisHost, config.Env.RedisPort, config.Env.RedisPassword)
		if err != nil {
			log.Fatalf("Failed to initialize Redis client: %v", err)
		}
		redisRepo = rediscache.NewRepository(redisClient)
	}

	encryption, err := dbmanager.NewSchemaEncryption(config.Env.SchemaEncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize schema encryption: %v", err)
	}
	schemaCache := dbmanager.NewSchemaCache(redisRepo, encryption, schemaCacheTTL)

	registry := dbmanager.NewRegistry()
	store := dbmanager.NewSessionStore()
	manager := dbmanager.NewManager(registry, store, schemaCache, redisRepo)
	executor := dbmanager.NewExecutor(registry)

	// Provide all dependencies to the container
	if err := DiContainer.Provide(func() *dbmanager.Registry { return registry }); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	if err := DiContainer.Provide(func() *dbmanager.Manager { return manager }); err != nil {
		log.Fatalf("Failed to provide DB manager: %v", err)
	}

	if err := DiContainer.Provide(func() *dbmanager.Executor { return executor }); err != nil {
		log.Fatalf("Failed to provide executor: %v", err)
	}

	// Provide handlers
	if err := DiContainer.Provide(func(m *dbmanager.Manager) *handlers.SessionHandler {
		return handlers.NewSessionHandler(m)
	}); err != nil {
		log.Fatalf("Failed to provide session handler: %v", err)
	}

	if err := DiContainer.Provide(func(m *dbmanager.Manager, e *dbmanager.Executor) *handlers.QueryHandler {
		return handlers.NewQueryHandler(m, e)
	}); err != nil {
		log.Fatalf("Failed to provide query handler: %v", err)
	}

	if err := DiContainer.Provide(func(m *dbmanager.Manager) *handlers.ChatHandler {
		return handlers.NewChatHandler(m)
	}); err != nil {
		log.Fatalf("Failed to provide chat handler: %v", err)
	}
}

// GetManager retrieves the DB manager from the DI container
func GetManager() (*dbmanager.Manager, error) {
	var manager *dbmanager.Manager
	err := DiContainer.Invoke(func(m *dbmanager.Manager) {
		manager = m
	})
	if err != nil {
		return nil, err
	}
	return manager, nil
}

// GetSessionHandler retrieves the SessionHandler from the DI container
func GetSessionHandler() (*handlers.SessionHandler, error) {
	var handler *handlers.SessionHandler
	err := DiContainer.Invoke(func(h *handlers.SessionHandler) {
		handler = h
	})
	if err != nil {
		return nil, err
	}
	return handler, nil
}

// GetQueryHandler retrieves the QueryHandler from the DI container
func GetQueryHandler() (*handlers.QueryHandler, error) {
	var handler *handlers.QueryHandler
	err := DiContainer.Invoke(func(h *handlers.QueryHandler) {
		handler = h
	})
	if err != nil {
		return nil, err
	}
	return handler, nil
}

// GetChatHandler retrieves the ChatHandler from the DI container
func GetChatHandler() (*handlers.ChatHandler, error) {
	var handler *handlers.ChatHandler
	err := DiContainer.Invoke(func(h *handlers.ChatHandler) {
		handler = h
	})
	if err != nil {
		return nil, err
	}
	return handler, nil
}
