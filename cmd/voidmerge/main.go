package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voidmerge/voidmerge/internal/config"
	"github.com/voidmerge/voidmerge/internal/httpapi"
	"github.com/voidmerge/voidmerge/internal/isolate"
	"github.com/voidmerge/voidmerge/internal/metering"
	"github.com/voidmerge/voidmerge/internal/objstore"
	"github.com/voidmerge/voidmerge/internal/server"
	"github.com/voidmerge/voidmerge/internal/supervisor"
	"github.com/voidmerge/voidmerge/internal/value"
	"github.com/voidmerge/voidmerge/internal/vlog"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "voidmerge",
	Short:   "VoidMerge - multi-tenant sandboxed JS execution server",
	Version: "dev",
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	serveCmd.Flags().String("http-addr", "", "HTTP bind address (env VM_HTTP_ADDR, default [::]:8080)")
	serveCmd.Flags().String("config", "", "Optional YAML config file")
	serveCmd.Flags().String("data-dir", "", "Object store data directory (env VM_DATA_DIR)")
	serveCmd.Flags().String("seed", "", "Path to a seed CtxSetup/CtxConfig fixture in human/template Value form (optional)")
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	vlog.Init(vlog.Config{Level: vlog.Level(logLevel), JSONOutput: logJSON})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the VoidMerge server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if httpAddr, _ := cmd.Flags().GetString("http-addr"); httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	rootStore, err := objstore.Open(filepath.Join(cfg.DataDir, "sys"))
	if err != nil {
		return fmt.Errorf("opening root object store: %w", err)
	}
	defer rootStore.Close()

	newStore := func(ctxID string) (*objstore.Store, error) {
		return objstore.Open(filepath.Join(cfg.DataDir, "ctx", ctxID))
	}

	pool := isolate.NewPool(cfg.PoolCap)
	defer pool.Close()

	srv := server.New(pool, rootStore, newStore)
	if err := srv.LoadAll(); err != nil {
		return fmt.Errorf("loading persisted tenants: %w", err)
	}

	// storage_gib must reflect tenant object data (srv.MeterAll, which
	// aggregates each tenant's own store), not rootStore — rootStore only
	// ever holds persisted CtxSetup/CtxConfig blobs under sys_prefix="s".
	storageMeter := metering.NewSnapshotter(srv.MeterAll, 5*time.Minute)
	storageMeter.Start()
	defer storageMeter.Stop()

	if seed, _ := cmd.Flags().GetString("seed"); seed != "" {
		if err := seedFromFile(srv, seed); err != nil {
			return fmt.Errorf("applying seed fixture: %w", err)
		}
	}

	adapter := httpapi.New(srv)

	errCh := make(chan error, 1)
	go func() {
		if err := adapter.Start(cfg.HTTPAddr); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		vlog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return adapter.Shutdown(shutdownCtx)
}

// seedFromFile loads a human/template Value fixture (see
// internal/value/human.go) to bootstrap one tenant on startup, shaped
// as {"sysadminTokens": [...], "setup": {...}, "config": {...}} with
// "setup"/"config" using the same field names as
// supervisor.CtxSetup.ToValue/CtxConfig.ToValue. sysadminTokens is
// installed first via SetSysAdmin so the rest of the fixture can be
// applied through the same CtxSetupPut/CtxConfigPut path a real
// sysadmin caller would use. A convenience for local development and
// tests, not a wire format any client depends on.
func seedFromFile(srv *server.Server, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	v, err := value.FromJSON(raw)
	if err != nil {
		return err
	}
	v, err = value.FromHuman(v, filepath.Dir(path))
	if err != nil {
		return err
	}
	m, ok := v.AsMap()
	if !ok {
		return fmt.Errorf("seed fixture must be a JSON object")
	}

	var token string
	if tokensVal, ok := m["sysadminTokens"]; ok {
		tokens, _ := tokensVal.AsSequence()
		var names []string
		for _, t := range tokens {
			if s, ok := t.AsString(); ok {
				names = append(names, s)
			}
		}
		if err := srv.SetSysAdmin(names); err != nil {
			return err
		}
		if len(names) > 0 {
			token = names[0]
		}
	}

	setupVal, ok := m["setup"]
	if !ok {
		return fmt.Errorf("seed fixture missing \"setup\"")
	}
	setupMap, _ := setupVal.AsMap()
	idVal, ok := setupMap["id"]
	if !ok {
		return fmt.Errorf("seed fixture setup missing \"id\"")
	}
	id, _ := idVal.AsString()

	setup, err := supervisor.CtxSetupFromValue(id, setupVal)
	if err != nil {
		return err
	}
	if err := srv.CtxSetupPut(token, setup); err != nil {
		return err
	}

	if configVal, ok := m["config"]; ok {
		config, err := supervisor.CtxConfigFromValue(id, configVal)
		if err != nil {
			return err
		}
		if err := srv.CtxConfigPut(token, config); err != nil {
			return err
		}
	}
	return nil
}
