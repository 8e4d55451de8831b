// Command anchors recovers, tracks and remaps annotation anchors of Chronicle
// documents.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"chronicle/anchors/internal/app"
	"chronicle/anchors/internal/cache"
	"chronicle/anchors/internal/config"
	"chronicle/anchors/internal/gitrepo"
	"chronicle/anchors/internal/store"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "anchors",
		Short:         "Annotation anchor recovery and tracking",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML configuration file (environment variables take precedence)")

	root.AddCommand(
		newRecoverCmd(),
		newScanCmd(),
		newMigrateCmd(opts),
		newImportCmd(opts),
		newReanchorCmd(opts),
		newRemapCmd(opts),
		newEditCmd(opts),
		newHistoryCmd(opts),
		newStatusCmd(opts),
		newPingCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (config.Config, error) {
	if strings.TrimSpace(o.configPath) == "" {
		return config.Load(), nil
	}
	return config.LoadFile(o.configPath)
}

// runtime holds the connections a document command needs.
type runtime struct {
	cfg     config.Config
	service *app.Service
	closers []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}
}

func (o *rootOptions) open(ctx context.Context) (*runtime, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.closers = append(rt.closers, db.Close)

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		rt.Close()
		return nil, fmt.Errorf("create repos dir: %w", err)
	}

	var opts []app.Option
	if strings.TrimSpace(cfg.RedisURL) != "" {
		recoveryCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.RecoveryCacheTTL)
		if err != nil {
			log.Printf("recovery cache disabled: %v", err)
		} else {
			rt.closers = append(rt.closers, recoveryCache.Close)
			opts = append(opts, app.WithCache(recoveryCache))
		}
	}

	rt.service = app.New(cfg, store.NewPostgresStore(db), gitrepo.New(cfg.ReposDir), opts...)
	return rt, nil
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func readJSONFile(path string, target any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
