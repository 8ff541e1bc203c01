package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"gopkg.in/yaml.v3"

	"uniai-studio/internal/config"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/repository"
	pg "uniai-studio/internal/infra/db/postgres"
	"uniai-studio/internal/infra/logging"
	"uniai-studio/internal/infra/security"
)

type pairs map[string]string

func (p pairs) String() string { return fmt.Sprint(map[string]string(p)) }

func (p pairs) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	p[strings.TrimSpace(k)] = val
	return nil
}

// seed writes operator settings (provider keys, storage, active provider)
// into the settings table in one transaction.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	file := flag.String("file", "", "YAML file with a flat key: value map of settings")
	values := pairs{}
	flag.Var(values, "set", "key=value, may be repeated")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, false)

	if *file != "" {
		b, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("read %s: %v", *file, err)
		}
		fromFile := map[string]string{}
		if err := yaml.Unmarshal(b, &fromFile); err != nil {
			log.Fatalf("parse %s: %v", *file, err)
		}
		for k, v := range fromFile {
			if _, set := values[k]; !set {
				values[k] = v
			}
		}
	}
	if len(values) == 0 {
		log.Fatal("nothing to seed: pass -set key=value or -file settings.yaml")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pg.Migrate(cfg.Database.URL, logger); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	var box *security.SecretBox
	if cfg.Security.EncryptionKey != "" {
		if box, err = security.NewSecretBox(cfg.Security.EncryptionKey); err != nil {
			log.Fatalf("secret box: %v", err)
		}
	}

	repo := pg.NewSettingRepo(pool)
	tm := pg.NewTxManager(pool)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	err = tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, k := range keys {
			v := values[k]
			if box != nil && model.IsSecretSetting(k) {
				sealed, err := box.Seal(k, v)
				if err != nil {
					return fmt.Errorf("seal %s: %w", k, err)
				}
				v = sealed
			}
			if err := repo.Set(ctx, tx, k, v); err != nil {
				return fmt.Errorf("set %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed settings: %v", err)
	}

	for _, k := range keys {
		v := values[k]
		if model.IsSecretSetting(k) {
			v = logging.Redact(v, false)
		}
		fmt.Printf("  %s = %s\n", k, v)
	}
	fmt.Printf("seeded %d settings (cached values expire within %s)\n", len(keys), cfg.Redis.SettingsTTL)
}
