package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/perrona-loyalty/internal/domain"
	"github.com/diagnosis/perrona-loyalty/internal/repo/postgres"
	"github.com/diagnosis/perrona-loyalty/internal/utils"
	"github.com/diagnosis/perrona-loyalty/pkg/config"
	"github.com/diagnosis/perrona-loyalty/pkg/events"
	"github.com/diagnosis/perrona-loyalty/pkg/logger"
)

// CardSummary is what the operator sees after a lookup: the customer, their
// open card, and the reward state derived from the stamp count.
type CardSummary struct {
	Customer      *domain.Customer    `json:"customer"`
	Card          *domain.Card        `json:"card"`
	Stamps        int                 `json:"stamps"`
	Discount      domain.DiscountTier `json:"discount"`
	CanStampToday bool                `json:"can_stamp_today"`
}

type LoyaltyService interface {
	RegisterCustomer(ctx context.Context, req *domain.RegisterCustomerReq) (*CardSummary, error)
	LookupByPhone(ctx context.Context, phone string) (*CardSummary, error)
	FindOrCreateOpenCard(ctx context.Context, phone string) (*domain.Card, error)
	GrantStamp(ctx context.Context, cardID int64) (*CardSummary, error)
	ListTiers(ctx context.Context) ([]domain.DiscountTier, error)
}

type loyaltyService struct {
	customerRepo postgres.CustomerRepo
	cardRepo     postgres.CardRepo
	tierRepo     postgres.TierRepo
	eventBus     events.Publisher
	config       *config.Config
	now          func() time.Time
}

func NewLoyaltyService(
	customerRepo postgres.CustomerRepo,
	cardRepo postgres.CardRepo,
	tierRepo postgres.TierRepo,
	eventBus events.Publisher,
	config *config.Config,
) LoyaltyService {
	return &loyaltyService{
		customerRepo: customerRepo,
		cardRepo:     cardRepo,
		tierRepo:     tierRepo,
		eventBus:     eventBus,
		config:       config,
		now:          time.Now,
	}
}

func (s *loyaltyService) RegisterCustomer(ctx context.Context, req *domain.RegisterCustomerReq) (*CardSummary, error) {
	name := utils.NormalizeName(req.Name)
	phone := utils.NormalizePhone(req.Phone)
	if name == "" || !utils.IsValidPhone(phone) {
		return nil, domain.ErrInvalidInput
	}

	customer, err := s.customerRepo.Create(ctx, name, phone)
	if err != nil {
		if err == domain.ErrDuplicatePhone {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	if err := s.eventBus.Publish(ctx, events.CustomerRegistered, events.CustomerRegisteredEvent{
		CustomerID: customer.ID,
		Name:       customer.Name,
		Phone:      customer.Phone,
		CreatedAt:  customer.CreatedAt,
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to publish customer registered event", "error", err, "customer_id", customer.ID)
	}

	card, err := s.FindOrCreateOpenCard(ctx, phone)
	if err != nil {
		return nil, err
	}

	return s.summarize(ctx, customer, card)
}

func (s *loyaltyService) LookupByPhone(ctx context.Context, phone string) (*CardSummary, error) {
	phone = utils.NormalizePhone(phone)
	if phone == "" {
		return nil, domain.ErrInvalidInput
	}

	customer, err := s.customerRepo.FindByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}
	if customer == nil {
		return nil, domain.ErrNotFound
	}

	card, err := s.FindOrCreateOpenCard(ctx, phone)
	if err != nil {
		return nil, err
	}

	return s.summarize(ctx, customer, card)
}

// FindOrCreateOpenCard returns the customer's open card, opening a fresh
// one when none exists. The lookup is idempotent; creation is guarded by
// the one-open-card-per-phone index, so a concurrent create resolves by
// re-reading the winner's card.
func (s *loyaltyService) FindOrCreateOpenCard(ctx context.Context, phone string) (*domain.Card, error) {
	phone = utils.NormalizePhone(phone)
	if phone == "" {
		return nil, domain.ErrInvalidInput
	}

	card, err := s.cardRepo.FindOpenByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to find open card: %w", err)
	}
	if card != nil {
		return card, nil
	}

	card, err = s.cardRepo.Create(ctx, phone, s.now())
	if err == domain.ErrDuplicatePhone {
		// Lost the creation race; the other writer's card is the open one.
		card, err = s.cardRepo.FindOpenByPhone(ctx, phone)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read open card: %w", err)
		}
		if card == nil {
			return nil, domain.ErrNotFound
		}
		return card, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}

	if err := s.eventBus.Publish(ctx, events.CardOpened, events.CardOpenedEvent{
		CardID:     card.ID,
		CardNumber: card.CardNumber,
		Phone:      card.Phone,
		StartDate:  card.StartDate,
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to publish card opened event", "error", err, "card_id", card.ID)
	}

	return card, nil
}

// GrantStamp adds one stamp to the card for today. The storage layer keeps
// this atomic: a same-day repeat comes back as ErrAlreadyStampedToday with
// no change to the count.
func (s *loyaltyService) GrantStamp(ctx context.Context, cardID int64) (*CardSummary, error) {
	today := s.now()

	card, err := s.cardRepo.GrantStamp(ctx, cardID, today)
	if err != nil {
		switch err {
		case domain.ErrAlreadyStampedToday, domain.ErrNotFound, domain.ErrCardClosed:
			return nil, err
		}
		return nil, fmt.Errorf("failed to grant stamp: %w", err)
	}

	if err := s.eventBus.Publish(ctx, events.StampGranted, events.StampGrantedEvent{
		CardID:     card.ID,
		CardNumber: card.CardNumber,
		Phone:      card.Phone,
		Stamps:     card.Stamps,
		StampDate:  today,
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to publish stamp granted event", "error", err, "card_id", card.ID)
	}

	tiers, err := s.ListTiers(ctx)
	if err != nil {
		return nil, err
	}

	if s.config.Loyalty.CloseOnComplete && len(tiers) > 0 && card.Stamps >= len(tiers) {
		card, err = s.completeCycle(ctx, card)
		if err != nil {
			return nil, err
		}
	}

	customer, err := s.customerRepo.FindByPhone(ctx, card.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}

	return s.buildSummary(customer, card, tiers), nil
}

// completeCycle closes a card whose stamp count has reached the catalog
// length. The next lookup for the same phone opens a fresh card.
func (s *loyaltyService) completeCycle(ctx context.Context, card *domain.Card) (*domain.Card, error) {
	endDate := s.now()
	closed, err := s.cardRepo.Close(ctx, card.ID, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to close card: %w", err)
	}
	if !closed {
		return card, nil
	}

	card.Status = domain.CardClosed
	card.EndDate = &endDate

	if err := s.eventBus.Publish(ctx, events.CardClosed, events.CardClosedEvent{
		CardID:     card.ID,
		CardNumber: card.CardNumber,
		Phone:      card.Phone,
		Stamps:     card.Stamps,
		ClosedAt:   endDate,
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to publish card closed event", "error", err, "card_id", card.ID)
	}

	return card, nil
}

func (s *loyaltyService) ListTiers(ctx context.Context) ([]domain.DiscountTier, error) {
	tiers, err := s.tierRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list discount tiers: %w", err)
	}
	return tiers, nil
}

func (s *loyaltyService) summarize(ctx context.Context, customer *domain.Customer, card *domain.Card) (*CardSummary, error) {
	tiers, err := s.ListTiers(ctx)
	if err != nil {
		return nil, err
	}

	// The card counter is authoritative; the ledger should agree with it.
	if ledger, err := s.cardRepo.CountStampEvents(ctx, card.ID, &card.StartDate); err == nil && ledger != card.Stamps {
		logger.WarnContext(ctx, "Stamp ledger disagrees with card counter",
			"card_id", card.ID, "counter", card.Stamps, "ledger", ledger)
	}

	return s.buildSummary(customer, card, tiers), nil
}

func (s *loyaltyService) buildSummary(customer *domain.Customer, card *domain.Card, tiers []domain.DiscountTier) *CardSummary {
	return &CardSummary{
		Customer:      customer,
		Card:          card,
		Stamps:        card.Stamps,
		Discount:      domain.DiscountForStampCount(tiers, card.Stamps),
		CanStampToday: card.CanStampToday(s.now()),
	}
}
