package main

import (
	"context"
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/redis/go-redis/v9"

	"github.com/convomesh/convomesh"
	"github.com/convomesh/convomesh/config"
	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/model"
	"github.com/convomesh/convomesh/model/anthropic"
	"github.com/convomesh/convomesh/model/openai"
	"github.com/convomesh/convomesh/pipeline"
	"github.com/convomesh/convomesh/session"
)

// buildMesh assembles a Mesh from a configuration file. YAML routes carry
// natural-language conditions only, so no predicate registry is needed here.
func buildMesh(ctx context.Context, configPath string) (*convomesh.Mesh, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	specs, err := cfg.RouteSpecs()
	if err != nil {
		return nil, nil, err
	}
	routes, err := config.BuildRoutes(specs, nil)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	mdl, err := buildModel(cfg.Model)
	if err != nil {
		return nil, nil, err
	}

	sessions, messages, err := buildStores(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	mesh, err := convomesh.New(routes, mdl, func(o *convomesh.Options) {
		o.Profile = pipeline.Profile{
			Name:         cfg.Agent.Name,
			Description:  cfg.Agent.Description,
			Rules:        cfg.Agent.Rules,
			Prohibitions: cfg.Agent.Prohibitions,
			Guidelines:   cfg.Agent.Guidelines,
			Terms:        cfg.Agent.Terms,
			Tools:        cfg.Agent.Tools,
		}
		o.MinConfidence = cfg.Routing.MinConfidence
		if cfg.Routing.MaxToolLoops > 0 {
			o.MaxToolLoops = cfg.Routing.MaxToolLoops
		}
		if cfg.Routing.AutoSave != nil {
			o.AutoSave = *cfg.Routing.AutoSave
		}
		o.SessionStore = sessions
		o.MessageStore = messages
		o.Logger = logger
	})
	if err != nil {
		return nil, nil, err
	}
	return mesh, cfg, nil
}

func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai", "":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.Temperature > 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			if cfg.Temperature > 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
		}), nil
	case "mock":
		return model.NewMockModel(cfg.Name, "mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func buildStores(ctx context.Context, cfg config.StoreConfig) (core.SessionStore, core.MessageStore, error) {
	switch cfg.Backend {
	case "memory", "":
		mem := session.NewInMemoryStore()
		return mem, mem, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store, err := session.NewRedisStore(ctx, client)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "sqlite":
		store, err := session.NewSQLiteStore(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
