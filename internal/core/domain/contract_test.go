package domain

import (
	"errors"
	"testing"
	"time"
)

func TestContractUpdate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		update  ContractUpdate
		wantErr bool
	}{
		{"in flight", InFlightUpdate(), false},
		{"processed compliant", ProcessedUpdate(true), false},
		{"processed non compliant", ProcessedUpdate(false), false},
		{"processed without verdict", ContractUpdate{Status: ContractStatusProcessed}, true},
		{"unknown status", ContractUpdate{Status: "DONE"}, true},
		{"unknown from status", ContractUpdate{Status: ContractStatusFailed, From: []ContractStatus{"DONE"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidUpdate) {
				t.Errorf("expected ErrInvalidUpdate, got %v", err)
			}
		})
	}
}

func TestContractUpdate_AppliesTo(t *testing.T) {
	inFlight := InFlightUpdate()
	for _, st := range []ContractStatus{ContractStatusPendingAnalysis, ContractStatusFailed, ContractStatusInFlight} {
		if !inFlight.AppliesTo(st) {
			t.Errorf("in-flight update should apply to %s", st)
		}
	}
	if inFlight.AppliesTo(ContractStatusProcessed) {
		t.Error("in-flight update must not apply to a processed contract")
	}

	processed := ProcessedUpdate(true)
	for _, st := range AllContractStatuses {
		if !processed.AppliesTo(st) {
			t.Errorf("processed update should apply to %s", st)
		}
	}
}

func TestIsEligible(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		status    ContractStatus
		updatedAt time.Time
		timeout   time.Duration
		expected  bool
	}{
		{"pending", ContractStatusPendingAnalysis, now, time.Hour, true},
		{"failed", ContractStatusFailed, now, time.Hour, true},
		{"processed", ContractStatusProcessed, now.Add(-48 * time.Hour), 0, false},
		{"in flight, no timeout", ContractStatusInFlight, now, 0, true},
		{"in flight, fresh", ContractStatusInFlight, now.Add(-time.Minute), 10 * time.Minute, false},
		{"in flight, stale", ContractStatusInFlight, now.Add(-11 * time.Minute), 10 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEligible(tt.status, tt.updatedAt, now, tt.timeout); got != tt.expected {
				t.Errorf("IsEligible(%s) = %v, want %v", tt.status, got, tt.expected)
			}
		})
	}
}

func TestBatchRoundTrip(t *testing.T) {
	in := []ContractToAnalyze{
		{ID: 1, SourceCode: "import './interfaces/IERC20.sol';"},
		{ID: 2, SourceCode: "contract A {}"},
	}

	data, err := EncodeBatch(in)
	if err != nil {
		t.Fatalf("EncodeBatch failed: %v", err)
	}

	expected := `[{"id":1,"source_code":"import './interfaces/IERC20.sol';"},{"id":2,"source_code":"contract A {}"}]`
	if string(data) != expected {
		t.Errorf("unexpected wire format:\n got %s\nwant %s", data, expected)
	}

	out, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("DecodeBatch failed: %v", err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Errorf("DecodeBatch = %+v, want %+v", out, in)
	}
}

func TestEncodeBatch_Empty(t *testing.T) {
	data, err := EncodeBatch(nil)
	if err != nil {
		t.Fatalf("EncodeBatch failed: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("EncodeBatch(nil) = %s, want []", data)
	}
}

func TestDecodeBatch_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("not json")},
		{"object", []byte(`{"id":1,"source_code":"x"}`)},
		{"null", []byte("null")},
		{"missing id", []byte(`[{"source_code":"x"}]`)},
		{"missing source", []byte(`[{"id":1}]`)},
		{"null element", []byte(`[null]`)},
		{"invalid utf8", []byte{'[', 0xff, ']'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBatch(tt.body)
			if !errors.Is(err, ErrMalformedBatch) {
				t.Errorf("DecodeBatch(%q) error = %v, want ErrMalformedBatch", tt.body, err)
			}
		})
	}
}

func TestDecodeBatch_EmptyArray(t *testing.T) {
	out, err := DecodeBatch([]byte("[]"))
	if err != nil {
		t.Fatalf("DecodeBatch failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty batch, got %d items", len(out))
	}
}
