package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/async"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func invoiceJob(t *testing.T) *entity.Job {
	t.Helper()
	in, _ := json.Marshal(entity.InvoiceInput{Document: entity.DocumentRef{Key: "documents/x/a.pdf", Filename: "a.pdf"}})
	return entity.NewJob("acme", constants.JobTypeInvoice, constants.JobStatusPending, in)
}

func TestNewMessageCarriesDocument(t *testing.T) {
	job := invoiceJob(t)
	m := NewMessage(job)
	if m.JobID != job.ID.String() || m.JobType != constants.JobTypeInvoice || m.ClientID != "acme" {
		t.Errorf("unexpected message %+v", m)
	}
	if m.Document == nil || m.Document.Key != "documents/x/a.pdf" {
		t.Errorf("expected document reference, got %+v", m.Document)
	}

	email := entity.NewJob("acme", constants.JobTypeEmail, constants.JobStatusPending, []byte(`{"subject":"hi"}`))
	if NewMessage(email).Document != nil {
		t.Error("email messages carry no document")
	}
}

func TestDecodeMessage(t *testing.T) {
	id := uuid.New()
	body, _ := json.Marshal(Message{JobID: id.String(), JobType: constants.JobTypeEmail})
	_, got, err := DecodeMessage(body)
	if err != nil || got != id {
		t.Errorf("expected %s, got %s (%v)", id, got, err)
	}

	for _, bad := range []string{`not json`, `{"job_id":"nope"}`, `{}`} {
		if _, _, err := DecodeMessage([]byte(bad)); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestHandleTask(t *testing.T) {
	id := uuid.New()
	body, _ := json.Marshal(Message{JobID: id.String(), JobType: constants.JobTypeInvoice})

	tests := []struct {
		name      string
		payload   []byte
		execErr   error
		wantErr   bool
		skipRetry bool
	}{
		{"success acks", body, nil, false, false},
		{"execution error is retried", body, errors.New("db down"), true, false},
		{"leased job is retried", body, errors.New("job is leased by another worker"), true, false},
		{"unknown job is dropped", body, common.NotFoundf("job %s not found", id), true, true},
		{"malformed payload is dropped", []byte(`{`), nil, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var executed uuid.UUID
			c := &Consumer{log: discard, exec: async.ExecutorFunc(func(_ context.Context, got uuid.UUID) error {
				executed = got
				return tt.execErr
			})}

			err := c.HandleTask(context.Background(), asynq.NewTask(TaskTypeProcess, tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if errors.Is(err, asynq.SkipRetry) != tt.skipRetry {
				t.Errorf("expected skip retry=%v, got %v", tt.skipRetry, err)
			}
			if string(tt.payload) != "{" && executed != id {
				t.Errorf("expected job %s executed, got %s", id, executed)
			}
		})
	}
}

func TestPublishIsIdempotentPerJob(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	p := NewProducerFromRedis(rdb, common.BrokerConfig{QueueName: "docs"}, discard)
	job := invoiceJob(t)
	ctx := context.Background()

	if err := p.Publish(ctx, job); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Publish(ctx, job); err != nil {
		t.Fatalf("republish should be a no-op, got %v", err)
	}

	pending, err := mr.List("asynq:{docs}:pending")
	if err != nil {
		t.Fatalf("pending list: %v", err)
	}
	if len(pending) != 1 || pending[0] != job.ID.String() {
		t.Errorf("expected one pending task for %s, got %v", job.ID, pending)
	}
}

func TestNewProducerBadURL(t *testing.T) {
	if _, err := NewProducer(common.BrokerConfig{RedisURL: "http://nope"}, discard); err == nil {
		t.Error("expected error for non-redis url")
	}
}
