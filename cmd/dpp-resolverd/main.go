// Command dpp-resolverd serves identifier resolution: RFC 9264 linksets with
// content and language negotiation, plus dataset retrieval from the
// configured CAS backends.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"fides.dev/dpp/ledger/localledger"
	"fides.dev/dpp/linkset"
	"fides.dev/dpp/storage"
	"fides.dev/dpp/storage/casconfig"
	"fides.dev/dpp/storage/casregistry"

	_ "fides.dev/dpp/storage/grpccas"
	_ "fides.dev/dpp/storage/ipfs"
	_ "fides.dev/dpp/storage/localfs"
)

type config struct {
	Listen  string `yaml:"listen"`
	BaseURL string `yaml:"base_url"`
	// CASConfig points at the JSON CAS backend config; when set, stored
	// credentials are served under /datasets/{address}.
	CASConfig string `yaml:"cas_config"`
	// GatewayTemplate renders dataset URLs; "{cid}" is replaced by the
	// content address.
	GatewayTemplate string `yaml:"gateway_template"`
	// LedgerPath points at the local ledger state file; when set, identifiers
	// are discovered through the anchored subject hashes.
	LedgerPath string `yaml:"ledger_path"`
	LogLevel   string `yaml:"log_level"`
}

func loadConfig(path string) (config, error) {
	cfg := config{
		Listen:   ":8080",
		LogLevel: "info",
	}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.BaseURL == "" {
		return cfg, errors.New("base_url is required")
	}
	return cfg, nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	fs := flag.NewFlagSet("dpp-resolverd", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	_ = fs.Parse(os.Args[1:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(log)

	router := mux.NewRouter()

	generator := &linkset.Generator{
		BaseURL: cfg.BaseURL,
		Log:     log,
	}
	if cfg.LedgerPath != "" {
		chain, err := localledger.Open(cfg.LedgerPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		generator.Ledger = chain
	}
	(&linkset.Handler{Generator: generator}).RegisterRoutes(router)

	if cfg.CASConfig != "" {
		casCfg, err := casconfig.LoadFile(cfg.CASConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		cas, closeFn, err := casCfg.Open(casregistry.UsageDaemon, "")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		if closeFn != nil {
			defer closeFn()
		}
		dataset := storage.NewDataset(cas, cfg.GatewayTemplate)
		router.HandleFunc("/datasets/{address}", datasetHandler(dataset, log)).Methods(http.MethodGet)
	}

	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("dpp-resolverd listening", slog.String("addr", cfg.Listen), slog.String("base_url", cfg.BaseURL))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func datasetHandler(dataset *storage.Dataset, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address := mux.Vars(r)["address"]
		result, err := dataset.RetrieveText(r.Context(), address)
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "dataset not found", http.StatusNotFound)
				return
			}
			log.Warn("dataset retrieval failed", slog.String("address", address), slog.String("error", err.Error()))
			http.Error(w, "retrieval failed", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/vc+jwt")
		w.Header().Set("X-Content-Hash", result.ContentHash)
		_, _ = w.Write(result.Data)
	}
}
