package main

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/artifactstore"
	"github.com/book-expert/podcast-service/internal/assemble"
	"github.com/book-expert/podcast-service/internal/config"
	"github.com/book-expert/podcast-service/internal/dialogue"
	"github.com/book-expert/podcast-service/internal/extract"
	"github.com/book-expert/podcast-service/internal/job"
	"github.com/book-expert/podcast-service/internal/jobstore"
	"github.com/book-expert/podcast-service/internal/library"
	"github.com/book-expert/podcast-service/internal/llm"
	"github.com/book-expert/podcast-service/internal/objectstore"
	"github.com/book-expert/podcast-service/internal/profile"
	"github.com/book-expert/podcast-service/internal/publish"
	"github.com/book-expert/podcast-service/internal/tts"
	"github.com/book-expert/podcast-service/internal/worker"
	"github.com/nats-io/nats.go"
)

// service holds the wired pipeline and the resources to release on shutdown.
type service struct {
	coordinator *job.Coordinator
	statuses    *job.StatusReader
	extractor   *extract.Extractor
	library     *library.Store
	log         *logger.Logger
}

func (s *service) close() {
	err := s.library.Close()
	if err != nil {
		s.log.Warn("Failed to close library: %v", err)
	}
}

func buildService(
	ctx context.Context,
	cfg *config.Config,
	jetstreamContext nats.JetStreamContext,
	log *logger.Logger,
) (*service, error) {
	defaultProfile := profile.Key(cfg.Pipeline.DefaultProfile)
	if defaultProfile == "" {
		defaultProfile = profile.Default
	}

	profiles := profile.Builtin()
	if !profiles.Has(defaultProfile) {
		return nil, fmt.Errorf("unknown default profile %q", defaultProfile)
	}

	err := worker.EnsureStream(jetstreamContext, cfg.NATS.JobsStream, cfg.NATS.JobsSubject, cfg.JobTTL())
	if err != nil {
		return nil, err
	}

	jobs, err := jobstore.NewKVStore(jetstreamContext, cfg.NATS.JobsBucket, cfg.JobTTL())
	if err != nil {
		return nil, err
	}

	documents, err := objectstore.New(jetstreamContext, cfg.NATS.DocumentsBucket)
	if err != nil {
		return nil, err
	}

	assembler, err := assemble.New(cfg.Paths.ScratchDir, log, assemble.WithMaxAge(cfg.ScratchMaxAge()))
	if err != nil {
		return nil, err
	}

	swept, err := assembler.Sweep()
	if err != nil {
		log.Warn("Initial scratch sweep failed: %v", err)
	} else if swept > 0 {
		log.Info("Removed %d stale artifacts from %s", swept, cfg.Paths.ScratchDir)
	}

	storage, err := artifactstore.New(ctx, artifactstore.Config{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		Profile:         cfg.Storage.Profile,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		ForcePathStyle:  cfg.Storage.ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}

	libraryStore, err := library.Open(cfg.Library.Path)
	if err != nil {
		return nil, err
	}

	chatModel := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	speechModel := tts.NewHTTPClient(
		cfg.Speech.BaseURL,
		cfg.Speech.APIKey,
		time.Duration(cfg.Speech.TimeoutSeconds)*time.Second,
	)

	extractor := extract.New(documents, extract.WithDocumentsRoot(cfg.Paths.DocumentsDir))
	publisher := publish.New(storage, libraryStore, log,
		publish.WithCDNBaseURL(cfg.Storage.CDNBaseURL),
		publish.WithURLTTL(cfg.URLTTL()),
	)

	coordinator := job.NewCoordinator(job.Dependencies{
		Store:       jobs,
		Attachments: documents,
		Dispatcher:  worker.NewNatsDispatcher(jetstreamContext, cfg.NATS.JobsSubject),
		Extractor:   extractor,
		Generator:   dialogue.NewGenerator(chatModel, log, cfg.LLM.MaxSchemaRetries),
		Synthesizer: tts.NewSynthesizer(speechModel, log, cfg.Speech.Concurrency, tts.WithRateLimit(cfg.Speech.RequestsPerSecond)),
		Assembler:   assembler,
		Publisher:   publisher,
		Profiles:    profiles,
	}, job.Defaults{
		Profile:       defaultProfile,
		TextModel:     cfg.LLM.Model,
		AudioModel:    cfg.Speech.Model,
		Speaker1Voice: cfg.Speech.Speaker1Voice,
		Speaker2Voice: cfg.Speech.Speaker2Voice,
		APIKey:        cfg.LLM.APIKey,
	}, log)

	return &service{
		coordinator: coordinator,
		statuses:    job.NewStatusReader(jobs, nil),
		extractor:   extractor,
		library:     libraryStore,
		log:         log,
	}, nil
}
