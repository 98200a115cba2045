package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsHighCardinalityLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("payform_id", "cash"),
		attribute.String("transaction_reference", "PAY-01H"),
		attribute.String("reason", "invalid_signature"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "transaction_reference" {
			t.Fatalf("expected transaction_reference to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordTransactionCreated(context.Background(), "cash", "ok")
	m.RecordWebhookRejected(context.Background(), "enzona-pgh-client", "invalid_signature")

	nop := NewNop()
	if nop == nil {
		t.Fatalf("expected noop metrics")
	}
	nop.RecordPaymentCommitted(context.Background(), "cash", "approved")
}
