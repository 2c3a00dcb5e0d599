package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/reslab/lergraph/internal/queue"
	"github.com/reslab/lergraph/internal/util"
	"github.com/reslab/lergraph/pkg/ai"
	oai "github.com/reslab/lergraph/pkg/ai/ollama"
	gai "github.com/reslab/lergraph/pkg/ai/openai"
	"github.com/reslab/lergraph/pkg/cache"
	pgxcache "github.com/reslab/lergraph/pkg/cache/pgx"
	"github.com/reslab/lergraph/pkg/cfr"
	"github.com/reslab/lergraph/pkg/graph"
	"github.com/reslab/lergraph/pkg/ler"
	"github.com/reslab/lergraph/pkg/loader"
	loaderio "github.com/reslab/lergraph/pkg/loader/io"
	"github.com/reslab/lergraph/pkg/logger"
	"github.com/reslab/lergraph/pkg/logger/console"
	"github.com/reslab/lergraph/pkg/schema"
	"github.com/reslab/lergraph/pkg/similarity"
	neo4jstore "github.com/reslab/lergraph/pkg/store/neo4j"
)

func main() {
	util.LoadEnv()

	recordsPath := flag.String("records", "", "incident records file (JSONL)")
	cfrPath := flag.String("cfr", "", "regulatory code reference table (CSV)")
	exportPath := flag.String("export", "", "linked-pair export destination (CSV)")
	profileName := flag.String("profile", "", "schema profile (ler or equipment)")
	reset := flag.Bool("reset", false, "wipe the graph before building")
	enqueue := flag.Bool("enqueue", false, "publish a build request instead of running locally; paths are S3 keys")
	flag.Parse()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	if *recordsPath == "" {
		logger.Fatal("No records file given, use -records")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *enqueue {
		enqueueBuild(*recordsPath, *cfrPath, *exportPath, *profileName, *reset)
		return
	}

	runBuild(ctx, *recordsPath, *cfrPath, *exportPath, *profileName, *reset)
}

func enqueueBuild(recordsKey, cfrKey, exportKey, profileName string, reset bool) {
	runID, err := gonanoid.New()
	if err != nil {
		logger.Fatal("Failed to generate run ID", "err", err)
	}

	msg := queue.BuildRequestMsg{
		RunID:      runID,
		RecordsKey: recordsKey,
		CFRKey:     cfrKey,
		ExportKey:  exportKey,
		Profile:    profileName,
		Reset:      reset,
		Threshold:  util.GetEnv("SIMILARITY_THRESHOLD"),
		Weights:    util.GetEnv("SIM_WEIGHTS"),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Fatal("Failed to marshal build request", "err", err)
	}

	conn := queue.Init()
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.BuildQueue}); err != nil {
		logger.Fatal("Failed to setup queues", "err", err)
	}
	if err := queue.PublishFIFO(ch, queue.BuildQueue, data); err != nil {
		logger.Fatal("Failed to publish build request", "err", err)
	}

	logger.Info("Build request enqueued", "run_id", runID, "records_key", recordsKey)
}

func runBuild(ctx context.Context, recordsPath, cfrPath, exportPath, profileName string, reset bool) {
	profile, err := schema.LoadProfile(
		profileName,
		util.GetEnv("SIMILARITY_THRESHOLD"),
		util.GetEnv("SIM_WEIGHTS"),
	)
	if err != nil {
		logger.Fatal("Failed to load schema profile", "err", err)
	}

	files := loaderio.NewIOGraphFileLoader()

	recordsFile := loader.NewGraphRecordsFile(loader.NewGraphFileParams{
		ID:       "records",
		FilePath: recordsPath,
		Loader:   files,
	})
	recordBytes, err := recordsFile.GetText(ctx)
	if err != nil {
		logger.Fatal("Failed to read records file", "path", recordsPath, "err", err)
	}
	records, skipped := ler.ParseRecords(bytes.NewReader(recordBytes))
	if skipped > 0 {
		logger.Warn("Skipped malformed records", "skipped", skipped)
	}
	if len(records) == 0 {
		logger.Fatal("No usable records", "path", recordsPath)
	}

	var index *cfr.Index
	if cfrPath != "" {
		tableFile := loader.NewGraphTableFile(loader.NewGraphFileParams{
			ID:       "cfr",
			FilePath: cfrPath,
			Loader:   files,
		})
		cfrBytes, err := tableFile.GetText(ctx)
		if err != nil {
			logger.Fatal("Failed to read reference table", "path", cfrPath, "err", err)
		}
		index, err = cfr.NewIndex(bytes.NewReader(cfrBytes))
		if err != nil {
			logger.Fatal("Failed to parse reference table", "err", err)
		}
	}

	var aiClient ai.EmbeddingClient
	switch util.GetEnv("AI_ADAPTER") {
	case "ollama":
		client, err := oai.NewEmbeddingOllamaClient(oai.NewEmbeddingOllamaClientParams{
			EmbeddingModel:        util.GetEnv("AI_EMBED_MODEL"),
			BaseURL:               util.GetEnv("AI_EMBED_URL"),
			ApiKey:                util.GetEnv("AI_EMBED_KEY"),
			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_MAX_CONCURRENT", 4)),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewEmbeddingOpenAIClient(gai.NewEmbeddingOpenAIClientParams{
			EmbeddingModel:        util.GetEnv("AI_EMBED_MODEL"),
			EmbeddingURL:          util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey:          util.GetEnv("AI_EMBED_KEY"),
			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_MAX_CONCURRENT", 8)),
		})
	}

	var embCache cache.EmbeddingCache
	if databaseURL := util.GetEnv("DATABASE_URL"); databaseURL != "" {
		pgCache, err := pgxcache.New(ctx, databaseURL)
		if err != nil {
			logger.Fatal("Unable to connect embedding cache", "err", err)
		}
		defer pgCache.Close()
		embCache = pgCache
	} else {
		embCache = cache.NewMemoryCache()
	}

	neoClient, err := neo4jstore.NewClient(ctx, neo4jstore.NewClientParams{})
	if err != nil {
		logger.Fatal("Failed to connect to Neo4j", "err", err)
	}
	storeClient := neo4jstore.New(ctx, neoClient, profile)
	defer storeClient.Close(context.Background())

	engine := similarity.NewEngine(aiClient, embCache, profile)

	graphClient, err := graph.NewGraphClient(graph.NewGraphClientParams{
		ParallelIncidents:  int(util.GetEnvNumeric("PARALLEL_INCIDENTS", 4)),
		ParallelEmbeddings: int(util.GetEnvNumeric("PARALLEL_EMBEDDINGS", 8)),
		MaxRetries:         int(util.GetEnvNumeric("MAX_RETRIES", 3)),
	})
	if err != nil {
		logger.Fatal("Failed to create graph client", "err", err)
	}

	result, err := graphClient.BuildGraph(ctx, graph.BuildGraphParams{
		Records: records,
		Index:   index,
		Profile: profile,
		Engine:  engine,
		Store:   storeClient,
		Reset:   reset,
	})
	if err != nil {
		logger.Fatal("Build failed", "err", err)
	}

	if exportPath != "" {
		f, err := os.Create(exportPath)
		if err != nil {
			logger.Fatal("Failed to create export file", "path", exportPath, "err", err)
		}
		defer f.Close()
		if err := graph.WriteCSV(f, profile, result.Links); err != nil {
			logger.Fatal("Failed to write export", "err", err)
		}
		logger.Info("Export written", "path", exportPath, "rows", len(result.Links))
	}

	metrics := aiClient.GetMetrics()
	logger.Info("AI Metrics",
		"requests", metrics.Requests,
		"input_tokens", metrics.InputTokens,
		"total_tokens", metrics.TotalTokens)
}
