package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/modeldepot/depot/pkg/depot/adapter"
	"github.com/modeldepot/depot/pkg/depot/config"
	"github.com/modeldepot/depot/pkg/depot/download"
	"github.com/modeldepot/depot/pkg/depot/downloadstate"
	"github.com/modeldepot/depot/pkg/depot/hub"
	"github.com/modeldepot/depot/pkg/depot/repository"
	"github.com/modeldepot/depot/pkg/logging"
)

// deps bundles the wired core components every subcommand needs.
// Grounded on cmd/ome-agent's per-module component wiring, simplified
// here to a single constructor since depotd has no fx-style dependency
// graph to assemble. hubClient is shared between manager (which only
// needs GetRepositoryFileSizes/DownloadRange) and the catalog built in
// the serve command (which additionally needs FindModel/ListModels);
// *hub.Client structurally satisfies both narrower interfaces.
type deps struct {
	cfg       *config.Config
	logger    logging.Interface
	fs        afero.Fs
	repo      *repository.Repository
	manager   *download.Manager
	loader    *adapter.Loader
	hubClient *hub.Client
}

// buildDeps loads configuration from v and wires the core components
// against the local filesystem. No concrete adapter.Adapter is
// registered here: the native inference runtime is out of scope for
// this repository (spec.md's glossary treats it abstractly), so
// load/generate/embed commands fail with KindAdapterUnavailable until
// a deployment registers its own adapters via the package API.
func buildDeps(v *viper.Viper) (*deps, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, errors.Wrap(err, "loading configuration")
	}

	zapLogger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	logger := logging.ForZap(zapLogger)

	fs := afero.NewOsFs()
	repo := repository.New(fs, cfg.ModelsDirectory, logger)
	stateStore := downloadstate.New(fs, cfg.ModelsDirectory)

	hubClient := hub.New(
		hub.WithEndpoint(cfg.HubEndpoint),
		hub.WithToken(cfg.HubToken),
		hub.WithLogger(logger),
	)

	downloadOpts := download.DefaultOptions()
	downloadOpts.MaxConcurrentDownloads = cfg.MaxConcurrentDownloads
	downloadOpts.MinimumFreeDiskSpace = cfg.MinimumFreeDiskSpace

	manager := download.New(hubClient, fs, cfg.ModelsDirectory, stateStore, repo, nil, downloadOpts, logger)
	manager.StartReconciler()

	loaderOpts := adapter.Options{MaxCachedModels: cfg.MaxCachedModels}
	loader := adapter.New(repo, fs, loaderOpts, logger)

	return &deps{
		cfg:       cfg,
		logger:    logger,
		fs:        fs,
		repo:      repo,
		manager:   manager,
		loader:    loader,
		hubClient: hubClient,
	}, nil
}
