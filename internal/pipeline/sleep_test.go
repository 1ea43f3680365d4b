package pipeline

import (
	"context"
	"testing"
	"time"
)

func TestSleep(t *testing.T) {
	if !Sleep(context.Background(), time.Millisecond) {
		t.Error("expected full sleep")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if Sleep(ctx, time.Minute) {
		t.Error("expected interrupted sleep")
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled sleep should return immediately")
	}
	if Sleep(ctx, 0) {
		t.Error("zero sleep on cancelled context should report false")
	}
}
