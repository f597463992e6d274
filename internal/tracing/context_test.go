package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestWithTraceID(t *testing.T) {
	ctx := context.Background()
	traceID := "test-trace-id"

	ctx = WithTraceID(ctx, traceID)

	retrieved := GetTraceID(ctx)
	if retrieved != traceID {
		t.Errorf("Expected trace ID %s, got %s", traceID, retrieved)
	}
}

func TestWithWorkflowID(t *testing.T) {
	ctx := context.Background()
	workflowID := "wf-onboarding-42"

	ctx = WithWorkflowID(ctx, workflowID)

	retrieved := GetWorkflowID(ctx)
	if retrieved != workflowID {
		t.Errorf("Expected workflow ID %s, got %s", workflowID, retrieved)
	}
}

func TestWithAgentID(t *testing.T) {
	ctx := context.Background()
	agentID := "agent-billing"

	ctx = WithAgentID(ctx, agentID)

	retrieved := GetAgentID(ctx)
	if retrieved != agentID {
		t.Errorf("Expected agent ID %s, got %s", agentID, retrieved)
	}
}

func TestGetFromEmptyContext(t *testing.T) {
	ctx := context.Background()

	if got := GetTraceID(ctx); got != "" {
		t.Errorf("Expected empty trace ID, got %s", got)
	}
	if got := GetWorkflowID(ctx); got != "" {
		t.Errorf("Expected empty workflow ID, got %s", got)
	}
	if got := GetUserID(ctx); got != "" {
		t.Errorf("Expected empty user ID, got %s", got)
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithWorkflowID(ctx, "wf-1")
	ctx = WithUserID(ctx, "user-1")

	ctxLogger := LoggerFromContext(ctx, base)
	ctxLogger.Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id":"trace-1"`, `"workflow_id":"wf-1"`, `"user_id":"user-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log line to contain %s, got %s", want, out)
		}
	}
}
