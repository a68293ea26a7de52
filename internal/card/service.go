package card

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when a lifecycle transition is
// attempted from a state that does not permit it.
var ErrInvalidTransition = errors.New("invalid card state transition")

// Service exposes card issuance and lifecycle operations.
type Service struct {
	repo Repository
}

// NewService builds a card service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IssueInput captures data required to issue a new card.
type IssueInput struct {
	CardholderName string
	Last4          string
	ExpirationDate time.Time
	OwnerID        string
	BankClientRef  string
	BankAccountRef string
	BankCoreType   string
	CreatedBy      string
}

// Issue provisions a new card in FROZEN state along with its immutable
// bank account mapping. The card must be explicitly activated before it
// can authorize.
func (s *Service) Issue(ctx context.Context, input IssueInput) (Card, error) {
	if input.OwnerID == "" {
		return Card{}, fmt.Errorf("owner id is required")
	}
	if input.BankAccountRef == "" {
		return Card{}, fmt.Errorf("bank account reference is required")
	}

	c := Card{
		ID:             uuid.NewString(),
		CardholderName: input.CardholderName,
		Last4:          input.Last4,
		ExpirationDate: input.ExpirationDate.UTC(),
		State:          StateFrozen,
		OwnerID:        input.OwnerID,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return Card{}, err
	}

	mapping := BankAccountMapping{
		ID:             uuid.NewString(),
		CardID:         c.ID,
		BankClientRef:  input.BankClientRef,
		BankAccountRef: input.BankAccountRef,
		BankCoreType:   input.BankCoreType,
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      input.CreatedBy,
	}
	if err := s.repo.CreateMapping(ctx, mapping); err != nil {
		return Card{}, err
	}

	return c, nil
}

// Get retrieves a card by id.
func (s *Service) Get(ctx context.Context, id string) (Card, error) {
	return s.repo.Get(ctx, id)
}

// Mapping retrieves the bank account mapping for a card.
func (s *Service) Mapping(ctx context.Context, cardID string) (BankAccountMapping, error) {
	return s.repo.MappingByCardID(ctx, cardID)
}

// Activate transitions a card from FROZEN to ACTIVE.
func (s *Service) Activate(ctx context.Context, id string) error {
	return s.transition(ctx, id, func(c *Card) error { return c.Activate() })
}

// Freeze transitions a card to FROZEN from any non-CLOSED state.
func (s *Service) Freeze(ctx context.Context, id string) error {
	return s.transition(ctx, id, func(c *Card) error { return c.Freeze() })
}

// Close terminally transitions a card to CLOSED.
func (s *Service) Close(ctx context.Context, id string) error {
	return s.transition(ctx, id, func(c *Card) error { return c.Close() })
}

func (s *Service) transition(ctx context.Context, id string, mutate func(*Card) error) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := mutate(&c); err != nil {
		return err
	}
	return s.repo.UpdateState(ctx, id, c.State)
}
