package card

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIssueStartsFrozen(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)

	ctx := context.Background()
	issued, err := svc.Issue(ctx, IssueInput{
		CardholderName: "Jane Doe",
		Last4:          "4242",
		ExpirationDate: time.Now().AddDate(2, 0, 0),
		OwnerID:        uuid.NewString(),
		BankAccountRef: "acc-1",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.State != StateFrozen {
		t.Fatalf("expected card to start FROZEN, got %s", issued.State)
	}

	mapping, err := svc.Mapping(ctx, issued.ID)
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	if mapping.BankAccountRef != "acc-1" {
		t.Fatalf("expected mapping account ref acc-1, got %s", mapping.BankAccountRef)
	}
}

func TestActivateThenFreeze(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	issued, _ := svc.Issue(ctx, IssueInput{OwnerID: uuid.NewString(), BankAccountRef: "acc-1", ExpirationDate: time.Now().AddDate(1, 0, 0)})

	if err := svc.Activate(ctx, issued.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	got, _ := svc.Get(ctx, issued.ID)
	if got.State != StateActive {
		t.Fatalf("expected ACTIVE, got %s", got.State)
	}

	if err := svc.Freeze(ctx, issued.ID); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	got, _ = svc.Get(ctx, issued.ID)
	if got.State != StateFrozen {
		t.Fatalf("expected FROZEN, got %s", got.State)
	}
}

func TestActivateRejectsNonFrozenCard(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	issued, _ := svc.Issue(ctx, IssueInput{OwnerID: uuid.NewString(), BankAccountRef: "acc-1", ExpirationDate: time.Now().AddDate(1, 0, 0)})
	if err := svc.Activate(ctx, issued.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := svc.Activate(ctx, issued.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected re-activating an already-ACTIVE card to reject with ErrInvalidTransition, got %v", err)
	}
}

func TestClosedCardNeverTransitions(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	issued, _ := svc.Issue(ctx, IssueInput{OwnerID: uuid.NewString(), BankAccountRef: "acc-1", ExpirationDate: time.Now().AddDate(1, 0, 0)})
	if err := svc.Close(ctx, issued.ID); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := svc.Activate(ctx, issued.ID); err == nil {
		t.Fatalf("expected activating a closed card to fail")
	}

	got, _ := svc.Get(ctx, issued.ID)
	if got.State != StateClosed {
		t.Fatalf("expected card to remain CLOSED, got %s", got.State)
	}
}

func TestIsExpired(t *testing.T) {
	c := Card{ExpirationDate: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)}

	before := time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC)
	if c.IsExpired(before) {
		t.Fatalf("expected not expired just before end of day")
	}

	after := time.Date(2026, 2, 1, 0, 0, 1, 0, time.UTC)
	if !c.IsExpired(after) {
		t.Fatalf("expected expired the next day")
	}
}
