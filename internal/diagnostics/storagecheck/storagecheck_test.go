package storagecheck

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pkt.systems/stockd/internal/storage/memory"
)

func TestVerifyMissingSnapshotPasses(t *testing.T) {
	backend := memory.New()
	res := Verify(context.Background(), backend, Options{Write: true})
	if !res.Passed() {
		t.Fatalf("expected pass, got %+v", res.Checks)
	}
	if !res.SnapshotMissing {
		t.Fatal("expected snapshot to be reported missing")
	}
	if backend.Saves() != 0 {
		t.Fatal("verification must not create a snapshot")
	}
}

func TestVerifyRewritesExistingSnapshot(t *testing.T) {
	backend := memory.NewWithSnapshot([]byte(`[{"id":"a"}]`))
	res := Verify(context.Background(), backend, Options{Write: true})
	if !res.Passed() {
		t.Fatalf("expected pass, got %+v", res.Checks)
	}
	if res.SnapshotBytes != len(`[{"id":"a"}]`) {
		t.Fatalf("snapshot bytes = %d", res.SnapshotBytes)
	}
	if backend.Saves() != 1 {
		t.Fatalf("expected one write, got %d", backend.Saves())
	}
	if len(res.Checks) != 3 {
		t.Fatalf("expected three checks, got %d", len(res.Checks))
	}
}

func TestVerifyRejectsNonArray(t *testing.T) {
	res := Verify(context.Background(), memory.NewWithSnapshot([]byte(`{"id":"a"}`)), Options{})
	if res.Passed() {
		t.Fatal("expected failure for object snapshot")
	}
	last := res.Checks[len(res.Checks)-1]
	if last.Name != "SnapshotIsArray" || last.Err == nil {
		t.Fatalf("unexpected checks %+v", res.Checks)
	}
}

type brokenBackend struct{ *memory.Store }

func (brokenBackend) Load(context.Context) ([]byte, error) { return nil, errors.New("permission denied") }

func TestVerifyReportsLoadFailure(t *testing.T) {
	res := Verify(context.Background(), brokenBackend{memory.New()}, Options{})
	if res.Passed() || len(res.Checks) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.RecommendedPolicy != "" {
		t.Fatal("policy is only suggested for aws backends")
	}
}

func TestBuildAWSPolicyScopesObject(t *testing.T) {
	policy := BuildAWSPolicy("bucket", "snapshots/stocks.json")
	if !strings.Contains(policy, "arn:aws:s3:::bucket/snapshots/stocks.json") {
		t.Fatalf("policy missing object arn: %s", policy)
	}
}
