package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/bimrag/internal/storage"
	"github.com/OFFIS-RIT/bimrag/pkg/graph"
	"github.com/OFFIS-RIT/bimrag/pkg/index"
	"github.com/OFFIS-RIT/bimrag/pkg/logger"
	"github.com/OFFIS-RIT/bimrag/pkg/store"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rabbitmq/amqp091-go"
)

// IngestJob asks the worker to merge a batch of ifcJSON documents into
// the graph. Documents are local paths or s3:// URIs.
type IngestJob struct {
	SourceTag string   `json:"source_tag"`
	Documents []string `json:"documents"`
}

// IndexJob asks the worker to rebuild the vector index from the current
// graph state.
type IndexJob struct {
	Reason string `json:"reason,omitempty"`
}

// ProcessIngestMessage handles one ingest job: fetch every document,
// run the ingestion batch, and log the per-record taxonomy counters.
// A run that changed the graph chains an index job so the vector index
// catches up with the new fingerprint.
func ProcessIngestMessage(
	ctx context.Context,
	s3Client *s3.Client,
	graphClient *graph.GraphClient,
	storeClient store.GraphStorage,
	ch *amqp091.Channel,
	body string,
) error {
	var job IngestJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return fmt.Errorf("invalid ingest job payload: %w", err)
	}
	if len(job.Documents) == 0 {
		return fmt.Errorf("ingest job carries no documents")
	}

	docs := make([]graph.SourceDocument, 0, len(job.Documents))
	for _, ref := range job.Documents {
		name, data, err := storage.ReadDocument(ctx, s3Client, ref)
		if err != nil {
			return err
		}
		docs = append(docs, graph.SourceDocument{Name: name, Data: data})
	}

	summary, err := graphClient.IngestDocuments(ctx, docs, job.SourceTag, storeClient)
	if err != nil {
		return err
	}

	logger.Info(
		"[Worker] Ingest job done",
		"run_id", summary.RunID,
		"source", summary.SourceTag,
		"documents", summary.Documents,
		"malformed", summary.MalformedDocuments,
		"nodes_created", summary.NodesCreated,
		"nodes_updated", summary.NodesUpdated,
		"edges_created", summary.EdgesCreated,
		"unresolved_dropped", summary.UnresolvedDropped,
		"constraint_violations", summary.ConstraintViolations,
	)

	if summary.Documents > 0 && ch != nil {
		followUp, err := json.Marshal(IndexJob{Reason: "ingest " + summary.RunID})
		if err != nil {
			return err
		}
		if err := PublishFIFO(ch, QueueIndex, followUp); err != nil {
			return fmt.Errorf("failed to enqueue index rebuild: %w", err)
		}
	}
	return nil
}

// ProcessIndexMessage handles one index job: rebuild and publish the
// vector index from the store's current state.
func ProcessIndexMessage(
	ctx context.Context,
	builder *index.Builder,
	storeClient store.GraphStorage,
	vectorIndex index.VectorIndex,
	body string,
) error {
	var job IndexJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return fmt.Errorf("invalid index job payload: %w", err)
	}

	summary, err := builder.Build(ctx, storeClient, vectorIndex)
	if err != nil {
		return err
	}

	logger.Info(
		"[Worker] Index job done",
		"cards", summary.Cards,
		"fingerprint", summary.Fingerprint,
		"reason", job.Reason,
	)
	return nil
}
