package transport

import (
	"context"
	"testing"
)

func TestContextMarkers(t *testing.T) {
	ctx := context.Background()
	if RetryDisabled(ctx) || Retried(ctx) {
		t.Fatalf("background context should carry no markers")
	}
	if !RetryDisabled(WithoutRetry(ctx)) {
		t.Fatalf("WithoutRetry not visible")
	}
	if !Retried(markRetried(ctx)) {
		t.Fatalf("retried marker not visible")
	}
}
