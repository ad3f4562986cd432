package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diagnosis/perrona-loyalty/internal/domain"
	"github.com/diagnosis/perrona-loyalty/pkg/config"
)

// ---------- Fakes ----------

type fakeCustomerRepo struct {
	customers map[string]*domain.Customer
	nextID    int64
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{customers: make(map[string]*domain.Customer), nextID: 1}
}

func (f *fakeCustomerRepo) FindByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	c, ok := f.customers[phone]
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (f *fakeCustomerRepo) Create(_ context.Context, name, phone string) (*domain.Customer, error) {
	if _, exists := f.customers[phone]; exists {
		return nil, domain.ErrDuplicatePhone
	}
	c := &domain.Customer{ID: f.nextID, Name: name, Phone: phone, CreatedAt: time.Now()}
	f.nextID++
	f.customers[phone] = c
	return c, nil
}

// fakeCardRepo mirrors the storage-layer guarantees: one open card per
// phone, one ledger row per card per day, conditional stamp update.
type fakeCardRepo struct {
	cards   map[int64]*domain.Card
	ledger  map[int64]map[string]bool
	nextID  int64
	nextNum int64
}

func newFakeCardRepo() *fakeCardRepo {
	return &fakeCardRepo{
		cards:   make(map[int64]*domain.Card),
		ledger:  make(map[int64]map[string]bool),
		nextID:  1,
		nextNum: 1,
	}
}

func (f *fakeCardRepo) FindOpenByPhone(_ context.Context, phone string) (*domain.Card, error) {
	for _, c := range f.cards {
		if c.Phone == phone && c.Status == domain.CardOpen {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCardRepo) GetByID(_ context.Context, id int64) (*domain.Card, error) {
	c, ok := f.cards[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCardRepo) Create(_ context.Context, phone string, startDate time.Time) (*domain.Card, error) {
	for _, c := range f.cards {
		if c.Phone == phone && c.Status == domain.CardOpen {
			return nil, domain.ErrDuplicatePhone
		}
	}
	card := &domain.Card{
		ID:         f.nextID,
		CardNumber: domain.FormatCardNumber(f.nextNum),
		Phone:      phone,
		Status:     domain.CardOpen,
		StartDate:  startDate,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	f.nextID++
	f.nextNum++
	f.cards[card.ID] = card
	f.ledger[card.ID] = make(map[string]bool)
	cp := *card
	return &cp, nil
}

func (f *fakeCardRepo) GrantStamp(_ context.Context, id int64, day time.Time) (*domain.Card, error) {
	c, ok := f.cards[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if c.Status != domain.CardOpen {
		return nil, domain.ErrCardClosed
	}
	if !c.CanStampToday(day) {
		return nil, domain.ErrAlreadyStampedToday
	}
	key := day.Format("2006-01-02")
	if f.ledger[id][key] {
		return nil, domain.ErrAlreadyStampedToday
	}
	f.ledger[id][key] = true
	c.Stamps++
	d := day
	c.LastStampDate = &d
	cp := *c
	return &cp, nil
}

func (f *fakeCardRepo) Close(_ context.Context, id int64, endDate time.Time) (bool, error) {
	c, ok := f.cards[id]
	if !ok || c.Status != domain.CardOpen {
		return false, nil
	}
	c.Status = domain.CardClosed
	d := endDate
	c.EndDate = &d
	return true, nil
}

func (f *fakeCardRepo) CountStampEvents(_ context.Context, cardID int64, _ *time.Time) (int, error) {
	return len(f.ledger[cardID]), nil
}

type fakeTierRepo struct {
	tiers []domain.DiscountTier
	err   error
}

func (f *fakeTierRepo) ListActive(context.Context) ([]domain.DiscountTier, error) {
	return f.tiers, f.err
}

type fakePublisher struct {
	subjects []string
}

func (f *fakePublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	f.subjects = append(f.subjects, subject)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

// ---------- Helpers ----------

func testCatalog() []domain.DiscountTier {
	return []domain.DiscountTier{
		{Position: 0, Description: "10%", Kind: domain.TierPercentage, Value: 10, Active: true},
		{Position: 1, Description: "5%", Kind: domain.TierPercentage, Value: 5, Active: true},
		{Position: 2, Description: "Free soda", Kind: domain.TierPromotion, Active: true},
	}
}

type testEnv struct {
	svc       *loyaltyService
	customers *fakeCustomerRepo
	cards     *fakeCardRepo
	bus       *fakePublisher
}

func newTestEnv(tiers []domain.DiscountTier, closeOnComplete bool, now time.Time) *testEnv {
	customers := newFakeCustomerRepo()
	cards := newFakeCardRepo()
	bus := &fakePublisher{}
	cfg := &config.Config{}
	cfg.Loyalty.CloseOnComplete = closeOnComplete

	svc := &loyaltyService{
		customerRepo: customers,
		cardRepo:     cards,
		tierRepo:     &fakeTierRepo{tiers: tiers},
		eventBus:     bus,
		config:       cfg,
		now:          func() time.Time { return now },
	}
	return &testEnv{svc: svc, customers: customers, cards: cards, bus: bus}
}

func localDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.Local)
}

// ---------- Tests ----------

func TestRegisterCustomerOpensFirstCard(t *testing.T) {
	env := newTestEnv(testCatalog(), false, localDate(2024, 3, 1))

	sum, err := env.svc.RegisterCustomer(context.Background(), &domain.RegisterCustomerReq{
		Name:  "  Ana Torres ",
		Phone: "(555) 123-4567",
	})
	if err != nil {
		t.Fatalf("RegisterCustomer failed: %v", err)
	}

	if sum.Customer.Phone != "5551234567" {
		t.Errorf("phone not normalized: %q", sum.Customer.Phone)
	}
	if sum.Card.Status != domain.CardOpen || sum.Card.Stamps != 0 {
		t.Errorf("expected a fresh open card with zero stamps, got %+v", sum.Card)
	}
	if sum.Card.CardNumber != "T-001" {
		t.Errorf("card number = %q, want T-001", sum.Card.CardNumber)
	}
	if sum.CanStampToday {
		t.Error("registration-day lockout: stamping must be blocked on the start date")
	}
	if sum.Discount.Description != "10%" {
		t.Errorf("zero stamps should unlock the first tier, got %q", sum.Discount.Description)
	}
}

func TestRegisterCustomerValidation(t *testing.T) {
	env := newTestEnv(testCatalog(), false, localDate(2024, 3, 1))

	cases := []domain.RegisterCustomerReq{
		{Name: "", Phone: "5551234567"},
		{Name: "Ana", Phone: ""},
		{Name: "Ana", Phone: "12345"},
	}
	for _, req := range cases {
		if _, err := env.svc.RegisterCustomer(context.Background(), &req); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("RegisterCustomer(%+v) = %v, want ErrInvalidInput", req, err)
		}
	}
}

func TestRegisterCustomerDuplicatePhone(t *testing.T) {
	env := newTestEnv(testCatalog(), false, localDate(2024, 3, 1))

	if _, err := env.svc.RegisterCustomer(context.Background(), &domain.RegisterCustomerReq{Name: "Ana", Phone: "5551234567"}); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	_, err := env.svc.RegisterCustomer(context.Background(), &domain.RegisterCustomerReq{Name: "Ana Again", Phone: "555-123-4567"})
	if !errors.Is(err, domain.ErrDuplicatePhone) {
		t.Errorf("expected ErrDuplicatePhone, got %v", err)
	}
}

func TestFindOrCreateOpenCardIsIdempotent(t *testing.T) {
	env := newTestEnv(testCatalog(), false, localDate(2024, 3, 1))
	ctx := context.Background()

	first, err := env.svc.FindOrCreateOpenCard(ctx, "5551234567")
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := env.svc.FindOrCreateOpenCard(ctx, "5551234567")
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if first.CardNumber != second.CardNumber {
		t.Errorf("repeated lookups returned different cards: %q vs %q", first.CardNumber, second.CardNumber)
	}
	if len(env.cards.cards) != 1 {
		t.Errorf("expected exactly one card, got %d", len(env.cards.cards))
	}
}

func TestFindOrCreateOpenCardEmptyPhone(t *testing.T) {
	env := newTestEnv(testCatalog(), false, localDate(2024, 3, 1))
	if _, err := env.svc.FindOrCreateOpenCard(context.Background(), "  - "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLookupUnknownPhone(t *testing.T) {
	env := newTestEnv(testCatalog(), false, localDate(2024, 3, 1))
	if _, err := env.svc.LookupByPhone(context.Background(), "5550000000"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGrantStampScenario(t *testing.T) {
	// Card started 2024-02-20; stamping attempted on 2024-03-01.
	env := newTestEnv(testCatalog(), false, localDate(2024, 2, 20))
	ctx := context.Background()

	if _, err := env.svc.RegisterCustomer(ctx, &domain.RegisterCustomerReq{Name: "Ana", Phone: "5551234567"}); err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	card, err := env.svc.FindOrCreateOpenCard(ctx, "5551234567")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	today := localDate(2024, 3, 1)
	env.svc.now = func() time.Time { return today }

	sum, err := env.svc.GrantStamp(ctx, card.ID)
	if err != nil {
		t.Fatalf("GrantStamp failed: %v", err)
	}
	if sum.Stamps != 1 {
		t.Errorf("stamps = %d, want 1", sum.Stamps)
	}
	if sum.Card.LastStampDate == nil || !domain.SameDay(*sum.Card.LastStampDate, today) {
		t.Errorf("last stamp date not set to today: %v", sum.Card.LastStampDate)
	}
	if sum.Discount.Description != "5%" {
		t.Errorf("one stamp should unlock the second tier, got %q", sum.Discount.Description)
	}

	// Second grant the same calendar day nets zero additional stamps.
	if _, err := env.svc.GrantStamp(ctx, card.ID); !errors.Is(err, domain.ErrAlreadyStampedToday) {
		t.Fatalf("expected ErrAlreadyStampedToday, got %v", err)
	}
	after, err := env.svc.LookupByPhone(ctx, "5551234567")
	if err != nil {
		t.Fatalf("lookup after double grant failed: %v", err)
	}
	if after.Stamps != 1 {
		t.Errorf("stamps after same-day double grant = %d, want 1", after.Stamps)
	}
}

func TestGrantStampOnRegistrationDay(t *testing.T) {
	env := newTestEnv(testCatalog(), false, localDate(2024, 3, 1))
	ctx := context.Background()

	sum, err := env.svc.RegisterCustomer(ctx, &domain.RegisterCustomerReq{Name: "Ana", Phone: "5551234567"})
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	if _, err := env.svc.GrantStamp(ctx, sum.Card.ID); !errors.Is(err, domain.ErrAlreadyStampedToday) {
		t.Errorf("expected registration-day lockout, got %v", err)
	}
}

func TestGrantStampUnknownCard(t *testing.T) {
	env := newTestEnv(testCatalog(), false, localDate(2024, 3, 1))
	if _, err := env.svc.GrantStamp(context.Background(), 99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCycleCompletionClosesCard(t *testing.T) {
	env := newTestEnv(testCatalog(), true, localDate(2024, 2, 20))
	ctx := context.Background()

	if _, err := env.svc.RegisterCustomer(ctx, &domain.RegisterCustomerReq{Name: "Ana", Phone: "5551234567"}); err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	card, err := env.svc.FindOrCreateOpenCard(ctx, "5551234567")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	// Three stamps on three consecutive days fill the three-tier catalog.
	var last *CardSummary
	for day := 1; day <= 3; day++ {
		env.svc.now = func() time.Time { return localDate(2024, 3, day) }
		last, err = env.svc.GrantStamp(ctx, card.ID)
		if err != nil {
			t.Fatalf("grant on day %d failed: %v", day, err)
		}
	}

	if last.Card.Status != domain.CardClosed {
		t.Errorf("card status = %q, want closed after completing the cycle", last.Card.Status)
	}
	if last.Card.EndDate == nil {
		t.Error("closed card must carry an end date")
	}

	// The next lookup opens a fresh cycle.
	env.svc.now = func() time.Time { return localDate(2024, 3, 4) }
	next, err := env.svc.FindOrCreateOpenCard(ctx, "5551234567")
	if err != nil {
		t.Fatalf("lookup after close failed: %v", err)
	}
	if next.ID == card.ID || next.Stamps != 0 {
		t.Errorf("expected a fresh card, got %+v", next)
	}
}

func TestCycleCompletionDisabledCapsDiscount(t *testing.T) {
	env := newTestEnv(testCatalog(), false, localDate(2024, 2, 20))
	ctx := context.Background()

	if _, err := env.svc.RegisterCustomer(ctx, &domain.RegisterCustomerReq{Name: "Ana", Phone: "5551234567"}); err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	card, err := env.svc.FindOrCreateOpenCard(ctx, "5551234567")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	var last *CardSummary
	for day := 1; day <= 5; day++ {
		env.svc.now = func() time.Time { return localDate(2024, 3, day) }
		last, err = env.svc.GrantStamp(ctx, card.ID)
		if err != nil {
			t.Fatalf("grant on day %d failed: %v", day, err)
		}
	}

	if last.Card.Status != domain.CardOpen {
		t.Errorf("card should stay open when close-on-complete is off, got %q", last.Card.Status)
	}
	if last.Discount.Description != "Free soda" {
		t.Errorf("discount should cap at the last tier, got %q", last.Discount.Description)
	}
}

func TestGrantStampPublishesEvent(t *testing.T) {
	env := newTestEnv(testCatalog(), false, localDate(2024, 2, 20))
	ctx := context.Background()

	if _, err := env.svc.RegisterCustomer(ctx, &domain.RegisterCustomerReq{Name: "Ana", Phone: "5551234567"}); err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	card, _ := env.svc.FindOrCreateOpenCard(ctx, "5551234567")

	env.svc.now = func() time.Time { return localDate(2024, 3, 1) }
	if _, err := env.svc.GrantStamp(ctx, card.ID); err != nil {
		t.Fatalf("GrantStamp failed: %v", err)
	}

	var sawStamp bool
	for _, s := range env.bus.subjects {
		if s == "stamp.granted" {
			sawStamp = true
		}
	}
	if !sawStamp {
		t.Errorf("expected a stamp.granted event, got %v", env.bus.subjects)
	}
}
