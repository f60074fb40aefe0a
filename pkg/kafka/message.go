package kafka

import (
	"encoding/json"
	"time"

	"github.com/costwise/fern/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	IngestCommit *IngestCommitMessage
}

// IngestCommitMessage is the upstream ingester's notification that a parsed
// schedule export has been committed for a project. Each row is structurally
// complete; parse failures never reach this service.
type IngestCommitMessage struct {
	TenantID      string                             `json:"tenant_id"`
	OrgID         string                             `json:"org_id"`
	ProjectID     string                             `json:"project_id"`
	IngestBatchID string                             `json:"ingest_batch_id"`
	ReferenceDate time.Time                          `json:"reference_date"`
	Items         []models.CreateScheduleItemRequest `json:"items"`
}

// Scope returns the commit's tenant/org/project triple.
func (m *IngestCommitMessage) Scope() models.Scope {
	return models.Scope{TenantID: m.TenantID, OrgID: m.OrgID, ProjectID: m.ProjectID}
}

// ParseIngestCommit parses the message value as an ingest commit
func (m *IncomingMessage) ParseIngestCommit() error {
	var msg IngestCommitMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	if msg.TenantID == "" {
		msg.TenantID = m.Headers["tenant_id"]
	}
	m.IngestCommit = &msg
	return nil
}
