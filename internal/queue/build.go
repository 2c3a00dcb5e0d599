package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/reslab/lergraph/internal/storage"
	"github.com/reslab/lergraph/internal/util"
	"github.com/reslab/lergraph/pkg/ai"
	"github.com/reslab/lergraph/pkg/cache"
	"github.com/reslab/lergraph/pkg/cfr"
	"github.com/reslab/lergraph/pkg/graph"
	"github.com/reslab/lergraph/pkg/ler"
	"github.com/reslab/lergraph/pkg/loader"
	loaders3 "github.com/reslab/lergraph/pkg/loader/s3"
	"github.com/reslab/lergraph/pkg/logger"
	"github.com/reslab/lergraph/pkg/schema"
	"github.com/reslab/lergraph/pkg/similarity"
	neo4jstore "github.com/reslab/lergraph/pkg/store/neo4j"
)

// BuildRequestMsg is one enqueued build. Keys point into the configured S3
// bucket; the export is uploaded to ExportKey when the build finishes.
type BuildRequestMsg struct {
	RunID      string `json:"run_id"`
	RecordsKey string `json:"records_key"`
	CFRKey     string `json:"cfr_key"`
	ExportKey  string `json:"export_key"`

	Profile   string `json:"profile"`
	Reset     bool   `json:"reset"`
	Threshold string `json:"threshold,omitempty"`
	Weights   string `json:"weights,omitempty"`
}

// ProcessBuildMessage runs one build request end to end: fetch inputs from
// S3, build the graph in Neo4j, upload the linked-pair export.
func ProcessBuildMessage(
	ctx context.Context,
	s3Client *awss3.Client,
	aiClient ai.EmbeddingClient,
	embCache cache.EmbeddingCache,
	msg string,
) error {
	data := new(BuildRequestMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to parse build request: %w", err)
	}

	logger.Info("[Queue] Starting build",
		"run_id", data.RunID,
		"records_key", data.RecordsKey,
		"profile", data.Profile,
		"reset", data.Reset)

	profile, err := schema.LoadProfile(data.Profile, data.Threshold, data.Weights)
	if err != nil {
		return err
	}

	files := loaders3.NewS3GraphFileLoaderWithClient(util.GetEnv("AWS_BUCKET"), s3Client)

	recordsFile := loader.NewGraphRecordsFile(loader.NewGraphFileParams{
		ID:       data.RunID,
		FilePath: data.RecordsKey,
		Loader:   files,
	})
	recordBytes, err := recordsFile.GetText(ctx)
	if err != nil {
		return err
	}
	records, skipped := ler.ParseRecords(bytes.NewReader(recordBytes))
	if skipped > 0 {
		logger.Warn("[Queue] Skipped malformed records", "run_id", data.RunID, "skipped", skipped)
	}

	var index *cfr.Index
	if data.CFRKey != "" {
		tableFile := loader.NewGraphTableFile(loader.NewGraphFileParams{
			ID:       data.RunID,
			FilePath: data.CFRKey,
			Loader:   files,
		})
		cfrBytes, err := tableFile.GetText(ctx)
		if err != nil {
			return err
		}
		index, err = cfr.NewIndex(bytes.NewReader(cfrBytes))
		if err != nil {
			return err
		}
	}

	neoClient, err := neo4jstore.NewClient(ctx, neo4jstore.NewClientParams{})
	if err != nil {
		return err
	}
	storeClient := neo4jstore.New(ctx, neoClient, profile)
	defer func() {
		if err := storeClient.Close(context.Background()); err != nil {
			logger.Warn("[Queue] Failed to close graph store", "err", err)
		}
	}()

	engine := similarity.NewEngine(aiClient, embCache, profile)

	graphClient, err := graph.NewGraphClient(graph.NewGraphClientParams{
		ParallelIncidents:  int(util.GetEnvNumeric("PARALLEL_INCIDENTS", 4)),
		ParallelEmbeddings: int(util.GetEnvNumeric("PARALLEL_EMBEDDINGS", 8)),
		MaxRetries:         int(util.GetEnvNumeric("MAX_RETRIES", 3)),
	})
	if err != nil {
		return err
	}

	result, err := graphClient.BuildGraph(ctx, graph.BuildGraphParams{
		Records: records,
		Index:   index,
		Profile: profile,
		Engine:  engine,
		Store:   storeClient,
		Reset:   data.Reset,
	})
	if err != nil {
		return err
	}

	if data.ExportKey != "" {
		buf := new(bytes.Buffer)
		if err := graph.WriteCSV(buf, profile, result.Links); err != nil {
			return err
		}
		if err := storage.PutFile(ctx, s3Client, data.ExportKey, "text/csv", buf); err != nil {
			return err
		}
		logger.Info("[Queue] Uploaded export", "run_id", data.RunID, "key", data.ExportKey, "rows", len(result.Links))
	}

	logger.Info("[Queue] Build finished",
		"run_id", data.RunID,
		"incidents", result.Incidents,
		"failed", len(result.FailedIncidents),
		"linked_pairs", result.LinkedPairs)

	return nil
}
