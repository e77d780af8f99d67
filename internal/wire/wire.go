// Package wire provides dependency injection for the automaton.
// It creates singleton services with lazy initialization.
package wire

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	cliadapter "github.com/example/automaton/internal/adapters/cli"
	"github.com/example/automaton/internal/adapters/jsonl"
	"github.com/example/automaton/internal/adapters/manifest"
	"github.com/example/automaton/internal/adapters/procexec"
	"github.com/example/automaton/internal/adapters/simmer"
	"github.com/example/automaton/internal/adapters/sqlite"
	"github.com/example/automaton/internal/app"
	"github.com/example/automaton/internal/config"
	"github.com/example/automaton/internal/db"
	"github.com/example/automaton/internal/ports/primary"
)

var (
	allocatorService primary.AllocatorService
	controlService   primary.ControlService
	appConfig        *config.Config
	once             sync.Once
)

// AllocatorService returns the singleton AllocatorService instance.
func AllocatorService() primary.AllocatorService {
	once.Do(initServices)
	return allocatorService
}

// ControlService returns the singleton ControlService instance.
func ControlService() primary.ControlService {
	once.Do(initServices)
	return controlService
}

// Config returns the loaded configuration.
func Config() *config.Config {
	once.Do(initServices)
	return appConfig
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	dir, err := config.Dir()
	if err != nil {
		log.Fatalf("failed to locate automaton home: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	appConfig = cfg

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	database, err := db.GetDB()
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	stateRepo := sqlite.NewStateRepository(database)

	skillsDir := cfg.SkillsDir
	if skillsDir == "" {
		skillsDir = filepath.Join(dir, "skills")
	}
	registry := manifest.NewRegistry(skillsDir)

	invoker := procexec.NewInvoker(time.Duration(cfg.InvokeTimeoutSec)*time.Second, logger)
	audit := jsonl.New(filepath.Join(dir, "cycles.jsonl"))

	// No credential means live cycles are refused with a configuration
	// error; dry runs still work.
	var rewards app.RewardFetcher
	if key := config.APIKey(); key != "" {
		base := cfg.APIBaseURL
		if base == "" {
			base = simmer.DefaultURL
		}
		client, err := simmer.NewClient(base, key)
		if err != nil {
			log.Fatalf("failed to create ledger client: %v", err)
		}
		rewards = app.NewRewardService(client, logger)
	}

	allocatorService = app.NewAllocatorService(stateRepo, registry, invoker, rewards, audit, cfg, logger)
	controlService = app.NewControlService(stateRepo, dir)
}

// CycleAdapter returns a new CycleAdapter writing to stdout.
// Each call creates a new adapter (adapters are stateless translators).
func CycleAdapter() *cliadapter.CycleAdapter {
	return CycleAdapterWithOutput(os.Stdout)
}

// CycleAdapterWithOutput returns a new CycleAdapter writing to the given output.
func CycleAdapterWithOutput(out io.Writer) *cliadapter.CycleAdapter {
	once.Do(initServices)
	return cliadapter.NewCycleAdapter(allocatorService, out)
}

// StatusAdapter returns a new StatusAdapter writing to stdout.
func StatusAdapter() *cliadapter.StatusAdapter {
	return StatusAdapterWithOutput(os.Stdout)
}

// StatusAdapterWithOutput returns a new StatusAdapter writing to the given output.
func StatusAdapterWithOutput(out io.Writer) *cliadapter.StatusAdapter {
	once.Do(initServices)
	return cliadapter.NewStatusAdapter(controlService, out)
}

// StrategiesAdapter returns a new StrategiesAdapter writing to stdout.
func StrategiesAdapter() *cliadapter.StrategiesAdapter {
	return StrategiesAdapterWithOutput(os.Stdout)
}

// StrategiesAdapterWithOutput returns a new StrategiesAdapter writing to the given output.
func StrategiesAdapterWithOutput(out io.Writer) *cliadapter.StrategiesAdapter {
	once.Do(initServices)
	return cliadapter.NewStrategiesAdapter(controlService, out)
}
