// Package generate builds synthetic users and transactions with labelled
// fraud patterns for demos and load tests.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Pattern names the shape of a generated fraudulent transaction.
type Pattern string

const (
	PatternAmount    Pattern = "unusual_amount"
	PatternLocation  Pattern = "unusual_location"
	PatternMerchant  Pattern = "unusual_merchant"
	PatternDevice    Pattern = "unusual_device"
	PatternFrequency Pattern = "unusual_frequency"
)

// Patterns lists every fraud pattern the generator draws from.
var Patterns = []Pattern{PatternAmount, PatternLocation, PatternMerchant, PatternDevice, PatternFrequency}

var (
	everydayCategories = []string{
		"grocery", "restaurant", "retail", "electronics", "travel",
		"gas", "utilities", "healthcare", "entertainment", "subscription",
	}
	homeCountries    = []string{"US", "CA", "UK", "FR", "DE", "AU", "JP"}
	riskyCountries   = []string{"RU", "NG", "BR", "CN", "ID", "UA"}
	accountTypes     = []string{"standard", "premium", "business"}
	locationMerchant = []string{"travel", "hotel", "casino", "jewelry", "atm_withdrawal"}
	riskyMerchant    = []string{"gambling", "crypto", "money_transfer", "jewelry", "electronics"}
	deviceMerchant   = []string{"electronics", "subscription", "gaming", "digital_goods"}
	burstMerchant    = []string{"retail", "restaurant", "gas", "atm_withdrawal"}
)

// burstSize is the number of transactions in an unusual_frequency burst.
const burstSize = 3

// Config controls the generated population.
type Config struct {
	Users        int
	Transactions int

	// FraudRate is the share of transactions labelled fraudulent.
	FraudRate float64

	// Days is the length of the period ending at Now.
	Days int
	Now  time.Time

	// Seed makes output reproducible. Zero uses the clock.
	Seed int64
}

// DefaultConfig mirrors a small demo population.
func DefaultConfig() Config {
	return Config{
		Users:        1000,
		Transactions: 10000,
		FraudRate:    0.05,
		Days:         90,
	}
}

func (c *Config) validate() error {
	if c.Users <= 0 {
		return fmt.Errorf("%w: users must be positive", domain.ErrInvalidInput)
	}
	if c.Transactions < 0 {
		return fmt.Errorf("%w: transactions must not be negative", domain.ErrInvalidInput)
	}
	if c.FraudRate < 0 || c.FraudRate > 1 {
		return fmt.Errorf("%w: fraud rate must be in [0,1]", domain.ErrInvalidInput)
	}
	if c.Days <= 0 {
		return fmt.Errorf("%w: days must be positive", domain.ErrInvalidInput)
	}
	return nil
}

// Dataset is a generated population, transactions ordered by timestamp.
type Dataset struct {
	Users        []*domain.User
	Transactions []*domain.Transaction

	// Patterns records the fraud pattern used for each fraudulent transaction.
	Patterns map[string]Pattern
}

type profile struct {
	user       *domain.User
	typical    float64
	spread     float64
	categories []string
}

type generator struct {
	faker    *gofakeit.Faker
	start    time.Time
	end      time.Time
	profiles []*profile
}

// Generate builds a population according to cfg.
func Generate(cfg Config) (*Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now().UTC()
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	g := &generator{
		faker: gofakeit.New(cfg.Seed),
		end:   cfg.Now.UTC(),
	}
	g.start = g.end.Add(-time.Duration(cfg.Days) * 24 * time.Hour)

	ds := &Dataset{Patterns: make(map[string]Pattern)}
	for i := 1; i <= cfg.Users; i++ {
		p := g.newProfile(fmt.Sprintf("U%06d", i))
		g.profiles = append(g.profiles, p)
		ds.Users = append(ds.Users, p.user)
	}

	numFraud := int(float64(cfg.Transactions) * cfg.FraudRate)
	numNormal := cfg.Transactions - numFraud

	txs := make([]*domain.Transaction, 0, cfg.Transactions)
	for i := 0; i < numNormal; i++ {
		txs = append(txs, g.normal())
	}

	type labelled struct {
		tx      *domain.Transaction
		pattern Pattern
	}
	var fraud []labelled
	for len(fraud) < numFraud {
		pattern := Patterns[g.faker.Number(0, len(Patterns)-1)]
		for _, tx := range g.fraudulent(pattern, numFraud-len(fraud)) {
			fraud = append(fraud, labelled{tx: tx, pattern: pattern})
		}
	}
	for _, f := range fraud {
		txs = append(txs, f.tx)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.Before(txs[j].Timestamp)
	})
	for i, tx := range txs {
		tx.ID = fmt.Sprintf("T%08d", i)
	}
	for _, f := range fraud {
		ds.Patterns[f.tx.ID] = f.pattern
	}
	ds.Transactions = txs

	return ds, nil
}

func (g *generator) newProfile(userID string) *profile {
	f := g.faker
	categories := append([]string(nil), everydayCategories...)
	f.ShuffleStrings(categories)

	return &profile{
		user: &domain.User{
			ID:                 userID,
			AccountAgeDays:     f.Number(30, 3650),
			CountryOfResidence: f.RandomString(homeCountries),
			NumPaymentMethods:  f.Number(1, 5),
			AccountType:        f.RandomString(accountTypes),
			HasVerifiedEmail:   f.Float64Range(0, 1) < 0.95,
			HasVerifiedPhone:   f.Float64Range(0, 1) < 0.85,
			RiskScore:          round2(f.Float64Range(0, 100)),
		},
		typical:    f.Float64Range(10, 500),
		spread:     f.Float64Range(5, 100),
		categories: categories[:f.Number(3, 6)],
	}
}

func (g *generator) pick() *profile {
	return g.profiles[g.faker.Number(0, len(g.profiles)-1)]
}

func (g *generator) timestamp() time.Time {
	return g.faker.DateRange(g.start, g.end).UTC().Truncate(time.Second)
}

func (g *generator) homeDevice(p *profile) string {
	return "DEV" + p.user.ID[1:]
}

func (g *generator) privateIP() string {
	return fmt.Sprintf("192.168.%d.%d", g.faker.Number(0, 255), g.faker.Number(1, 254))
}

func (g *generator) normal() *domain.Transaction {
	f := g.faker
	p := g.pick()
	amount := math.Max(0.01, p.typical+f.Rand.NormFloat64()*p.spread)
	notFraud := false

	return &domain.Transaction{
		UserID:           p.user.ID,
		Timestamp:        g.timestamp(),
		Amount:           round2(amount),
		MerchantCategory: f.RandomString(p.categories),
		Country:          p.user.CountryOfResidence,
		DeviceID:         g.homeDevice(p),
		IPAddress:        g.privateIP(),
		IsFraud:          &notFraud,
	}
}

// fraudulent returns up to limit transactions following pattern.
func (g *generator) fraudulent(pattern Pattern, limit int) []*domain.Transaction {
	f := g.faker
	p := g.pick()
	base := domain.Transaction{
		UserID:           p.user.ID,
		Timestamp:        g.timestamp(),
		MerchantCategory: f.RandomString(p.categories),
		Country:          p.user.CountryOfResidence,
		DeviceID:         g.homeDevice(p),
	}

	n := 1
	switch pattern {
	case PatternAmount:
		base.Amount = p.typical * f.Float64Range(5, 20)
	case PatternLocation:
		base.Amount = f.Float64Range(50, 5000)
		base.MerchantCategory = f.RandomString(locationMerchant)
		for base.Country == p.user.CountryOfResidence {
			base.Country = f.RandomString(riskyCountries)
		}
	case PatternMerchant:
		base.Amount = f.Float64Range(100, 2000)
		base.MerchantCategory = f.RandomString(riskyMerchant)
	case PatternDevice:
		base.Amount = f.Float64Range(50, 500)
		base.MerchantCategory = f.RandomString(deviceMerchant)
		base.DeviceID = fmt.Sprintf("NEW%d", f.Number(10000, 99999))
	case PatternFrequency:
		base.MerchantCategory = f.RandomString(burstMerchant)
		n = min(burstSize, limit)
	}

	out := make([]*domain.Transaction, 0, n)
	at := base.Timestamp
	for i := 0; i < n; i++ {
		tx := base
		tx.Timestamp = at
		if pattern == PatternFrequency {
			tx.Amount = f.Float64Range(10, 200)
			at = at.Add(time.Duration(f.Number(1, 15)) * time.Minute)
		}
		tx.Amount = round2(tx.Amount)

		// Most fraud comes from outside the user's usual network.
		if f.Float64Range(0, 1) < 0.7 {
			tx.IPAddress = fmt.Sprintf("%d.%d.%d.%d",
				f.Number(1, 255), f.Number(1, 255), f.Number(0, 255), f.Number(1, 254))
		} else {
			tx.IPAddress = g.privateIP()
		}
		isFraud := true
		tx.IsFraud = &isFraud
		out = append(out, &tx)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Store is where a dataset is loaded.
type Store interface {
	SaveUsers(ctx context.Context, users []*domain.User) error
	SaveTransactions(ctx context.Context, txs []*domain.Transaction) error
}

// Load writes users then transactions to store.
func Load(ctx context.Context, store Store, ds *Dataset) error {
	if err := store.SaveUsers(ctx, ds.Users); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	if err := store.SaveTransactions(ctx, ds.Transactions); err != nil {
		return fmt.Errorf("save transactions: %w", err)
	}
	slog.Info("synthetic population loaded",
		"users", len(ds.Users),
		"transactions", len(ds.Transactions),
		"fraudulent", len(ds.Patterns),
	)
	return nil
}
