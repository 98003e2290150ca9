package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Client configures the console client.
type Client struct {
	APIURL         string        `env:"LOBBY_API_URL" envDefault:"http://127.0.0.1:8080"`
	PubSubURL      string        `env:"LOBBY_PUBSUB_URL" envDefault:"ws://127.0.0.1:8080/pubsub"`
	EntityID       string        `env:"LOBBY_ENTITY_ID,required"`
	EntityType     string        `env:"LOBBY_ENTITY_TYPE" envDefault:"title_player_account"`
	RequestTimeout time.Duration `env:"LOBBY_REQUEST_TIMEOUT" envDefault:"10s"`
	Log            Log
}

// Server configures the dev lobby server.
type Server struct {
	Addr       string `env:"LOBBY_ADDR" envDefault:":8080"`
	MaxPlayers uint32 `env:"LOBBY_MAX_PLAYERS" envDefault:"4"`
	Log        Log
}

type Log struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// LoadDotenv reads files (".env" when none given) into the environment.
// Missing files are skipped; variables already set win.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadClient() (Client, error) {
	var cfg Client
	if err := LoadDotenv(); err != nil {
		return cfg, err
	}
	err := ParseEnv(&cfg)
	return cfg, err
}

func LoadServer() (Server, error) {
	var cfg Server
	if err := LoadDotenv(); err != nil {
		return cfg, err
	}
	err := ParseEnv(&cfg)
	return cfg, err
}
