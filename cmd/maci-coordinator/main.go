package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/vocdoni/maci-coordinator/coordinator"
	"github.com/vocdoni/maci-coordinator/db/metadb"
	"github.com/vocdoni/maci-coordinator/log"
	"github.com/vocdoni/maci-coordinator/prover"
	"github.com/vocdoni/maci-coordinator/service"
	"github.com/vocdoni/maci-coordinator/storage"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting maci-coordinator", "version", Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("coordinator failed: %v", err)
	}
}

// run executes the configured round and writes its artifacts to the output
// directory. With the API enabled it keeps serving until ctx is done.
func run(ctx context.Context, cfg *Config) error {
	logsData, err := os.ReadFile(cfg.Round.Logs)
	if err != nil {
		return fmt.Errorf("read contract logs: %w", err)
	}
	logs, err := coordinator.ParseContractLogs(logsData)
	if err != nil {
		return err
	}
	var deactivations *storage.Deactivations
	if cfg.Round.Deactivations != "" {
		if deactivations, err = loadDeactivations(cfg.Round.Deactivations); err != nil {
			return err
		}
	}
	privKey, err := parsePrivKey(cfg.Coordinator.PrivKey)
	if err != nil {
		return err
	}

	log.Infow("initializing storage", "datadir", cfg.Datadir, "type", cfg.DB.Type)
	database, err := metadb.New(cfg.DB.Type, filepath.Join(cfg.Datadir, "db"))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	stg := storage.New(database)
	defer stg.Close()

	var p prover.Prover
	if cfg.Artifacts != "" {
		log.Infow("proving enabled", "artifacts", cfg.Artifacts)
		p = prover.NewRapidsnark(cfg.Artifacts)
	} else {
		log.Warnw("no circuit artifacts configured, only circuit inputs are generated")
	}
	coord, err := coordinator.New(stg, p, privKey)
	if err != nil {
		return err
	}
	coord.ProofRetries = cfg.Coordinator.ProofRetries

	req := &coordinator.Request{
		ID:            cfg.Round.roundID(logsData),
		Config:        cfg.Round.maciConfig(logs),
		Logs:          logs,
		Deactivations: deactivations,
	}
	if err := req.Config.Validate(); err != nil {
		return fmt.Errorf("invalid round parameters: %w", err)
	}
	log.Infow("running round", "round", req.ID.String(), "config", fmt.Sprintf("%+v", req.Config))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.API.Enabled {
		log.Infow("starting API service", "host", cfg.API.Host, "port", cfg.API.Port)
		apiService := service.NewAPI(stg, cfg.API.Host, cfg.API.Port, false)
		if err := apiService.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			apiService.Stop()
			return nil
		})
	}

	coordService := service.NewCoordinator(coord, req)
	if err := coordService.Start(gctx); err != nil {
		return err
	}
	defer coordService.Stop()
	g.Go(func() error {
		m, err := coordService.Wait(gctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Infow("round interrupted, rerun to resume", "round", req.ID.String())
				return nil
			}
			return err
		}
		if err := writeOutputs(cfg.Output, stg, req.ID); err != nil {
			return err
		}
		log.Infow("round artifacts written",
			"output", cfg.Output,
			"tallyCommitment", m.TallyCommitment().String())
		if cfg.API.Enabled {
			<-gctx.Done()
		}
		return nil
	})
	return g.Wait()
}

func loadDeactivations(path string) (*storage.Deactivations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deactivations: %w", err)
	}
	d := &storage.Deactivations{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("decode deactivations: %w", err)
	}
	return d, nil
}
