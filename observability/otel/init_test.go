package otel

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders("api-key=abc, x-tenant = dine ,broken,=skip")
	if len(got) != 2 || got["api-key"] != "abc" || got["x-tenant"] != "dine" {
		t.Fatalf("unexpected headers %v", got)
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "dined"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
}

func TestSamplerRatio(t *testing.T) {
	cases := map[float64]string{
		0:    "AlwaysOnSampler",
		1:    "AlwaysOnSampler",
		0.25: "TraceIDRatioBased{0.25}",
	}
	for ratio, want := range cases {
		if got := sampler(ratio).Description(); !strings.Contains(got, want) {
			t.Fatalf("ratio %v: description %q does not mention %q", ratio, got, want)
		}
	}
}

func TestShutdownChainReportsFirstFailure(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	chain := shutdownChain{
		func(context.Context) error { order = append(order, 1); return errors.New("later") },
		func(context.Context) error { order = append(order, 2); return boom },
	}
	if err := chain.run(context.Background()); err != boom {
		t.Fatalf("expected first failure in stop order, got %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected stop order %v", order)
	}
}
