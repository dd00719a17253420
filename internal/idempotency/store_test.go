package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
	"github.com/imrishuroy/laundry-payflow/internal/aws/awsmock"
)

const table = "idempotency-table"

var start = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func newTestStore() (*Store, *awsmock.DynamoDB) {
	mock := awsmock.NewDynamoDB(map[string][]string{table: {"idempotency_key"}})
	s := NewStore(mock, table, 48*time.Hour, 5*time.Minute)
	s.nowFunc = func() time.Time { return start }
	return s, mock
}

func TestCreateIfNotExists_Get_MarkDone(t *testing.T) {
	s, mock := newTestStore()
	ctx := context.Background()

	created, err := s.CreateIfNotExists(ctx, "k1", "1001:PAYMENT_CONFIRMED:CUSTOMER")
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, "k1", "1001:PAYMENT_CONFIRMED:CUSTOMER")
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.Status != StatusInProgress || rec.Attempts != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if want := time.Date(2025, 1, 12, 9, 0, 0, 0, time.UTC).Unix(); rec.ExpiresAt != want {
		t.Fatalf("expires_at = %d, want %d", rec.ExpiresAt, want)
	}

	if err := s.MarkDone(ctx, "k1"); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	item := mock.Item(table, map[string]types.AttributeValue{"idempotency_key": aws.StringValue("k1")})
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}

	// DONE is final
	if err := s.MarkFailed(ctx, "k1", "late"); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
	if ok, err := s.Claim(ctx, "k1", ""); err != nil || ok {
		t.Fatalf("claim of done key: ok=%v err=%v", ok, err)
	}
}

func TestClaim_ReclaimsFailed(t *testing.T) {
	s, mock := newTestStore()
	ctx := context.Background()

	if ok, err := s.Claim(ctx, "k2", "n1"); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	// in progress elsewhere
	if ok, err := s.Claim(ctx, "k2", "n1"); !errors.Is(err, ErrClaimHeld) || ok {
		t.Fatalf("claim while in progress: ok=%v err=%v", ok, err)
	}
	if err := s.MarkFailed(ctx, "k2", "sender down"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	item := mock.Item(table, map[string]types.AttributeValue{"idempotency_key": aws.StringValue("k2")})
	if n, ok := item["note"].(*types.AttributeValueMemberS); !ok || n.Value != "sender down" {
		t.Fatalf("note not set, got %+v", item["note"])
	}

	if ok, err := s.Claim(ctx, "k2", "n1"); err != nil || !ok {
		t.Fatalf("reclaim: ok=%v err=%v", ok, err)
	}
	rec, err := s.Get(ctx, "k2")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec.Status != StatusInProgress || rec.Attempts != 2 {
		t.Fatalf("unexpected record after reclaim %+v", rec)
	}
}

func TestClaim_TakesOverAbandonedClaim(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	// first worker claims and dies without finishing
	if ok, err := s.Claim(ctx, "k4", "n1"); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}

	s.nowFunc = func() time.Time { return start.Add(4 * time.Minute) }
	if ok, err := s.Claim(ctx, "k4", "n1"); !errors.Is(err, ErrClaimHeld) || ok {
		t.Fatalf("claim inside lease: ok=%v err=%v", ok, err)
	}

	s.nowFunc = func() time.Time { return start.Add(5 * time.Minute) }
	if ok, err := s.Claim(ctx, "k4", "n1"); err != nil || !ok {
		t.Fatalf("claim after lease: ok=%v err=%v", ok, err)
	}
	rec, err := s.Get(ctx, "k4")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec.Status != StatusInProgress || rec.Attempts != 2 || !rec.UpdatedAt.Equal(start.Add(5*time.Minute)) {
		t.Fatalf("unexpected record after takeover %+v", rec)
	}

	// the takeover renewed the lease
	s.nowFunc = func() time.Time { return start.Add(9 * time.Minute) }
	if ok, err := s.Claim(ctx, "k4", "n1"); !errors.Is(err, ErrClaimHeld) || ok {
		t.Fatalf("claim inside renewed lease: ok=%v err=%v", ok, err)
	}
	if err := s.MarkDone(ctx, "k4"); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	s.nowFunc = func() time.Time { return start.Add(time.Hour) }
	if ok, err := s.Claim(ctx, "k4", "n1"); err != nil || ok {
		t.Fatalf("claim of done key: ok=%v err=%v", ok, err)
	}
}

func TestCreateIfNotExists_StoreError(t *testing.T) {
	s, mock := newTestStore()
	mock.Err = errors.New("boom")
	if _, err := s.CreateIfNotExists(context.Background(), "k3", ""); err == nil {
		t.Fatalf("expected error")
	}
}
