// Package generator produces a synthetic but internally consistent sales
// history: recurring event series over several years, repeat buyers, and
// daily ad spend. It feeds demo environments and local development.
package generator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"pacer/internal/models"
)

// Sink receives generated records
type Sink interface {
	UpsertEvent(ctx context.Context, e *models.Event) error
	UpsertOrder(ctx context.Context, o *models.Order) error
	UpsertAdSpend(ctx context.Context, a *models.AdSpend) error
}

type Options struct {
	Years     int
	Customers int
	Seed      int64
	Now       time.Time
}

type Stats struct {
	Events  int `json:"events"`
	Orders  int `json:"orders"`
	AdSpend int `json:"ad_spend"`
}

// series is a recurring event template
type series struct {
	name     string
	category string
	city     string
	capacity int
	month    time.Month
	day      int
	hours    []int // session start hours; more than one makes a timed-entry show
	price    float64
	fill     float64 // typical final sell-through
	saleDays int
}

var catalog = []series{
	{name: "City Beer Fest", category: "beer", city: "Philadelphia", capacity: 800, month: time.July, day: 12, hours: []int{14}, price: 45, fill: 0.92, saleDays: 75},
	{name: "Harbor Wine Walk", category: "wine", city: "Baltimore", capacity: 400, month: time.June, day: 21, hours: []int{17}, price: 60, fill: 0.85, saleDays: 60},
	{name: "Spring Cocktail Classic", category: "cocktail", city: "DC", capacity: 300, month: time.April, day: 26, hours: []int{19}, price: 75, fill: 0.78, saleDays: 45},
	{name: "Lantern Night Market", category: "food", city: "New York", capacity: 250, month: time.August, day: 9, hours: []int{18, 20}, price: 35, fill: 0.9, saleDays: 40},
	{name: "Fall Cider Festival", category: "cider", city: "Philadelphia", capacity: 600, month: time.October, day: 4, hours: []int{13}, price: 40, fill: 0.7, saleDays: 60},
}

type Generator struct {
	sink Sink
	opts Options
	rng  *rand.Rand
}

func New(sink Sink, opts Options) *Generator {
	if opts.Years < 1 {
		opts.Years = 3
	}
	if opts.Customers < 1 {
		opts.Customers = 500
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	return &Generator{sink: sink, opts: opts, rng: rand.New(rand.NewSource(opts.Seed))}
}

// Run writes every series for the configured years, the current one included.
// Editions dated before now are completed; orders never postdate now.
func (g *Generator) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	first := g.opts.Now.Year() - g.opts.Years + 1
	for year := first; year <= g.opts.Now.Year(); year++ {
		for _, s := range catalog {
			for _, hour := range s.hours {
				if err := ctx.Err(); err != nil {
					return stats, err
				}
				if err := g.edition(ctx, s, year, hour, &stats); err != nil {
					return stats, err
				}
			}
		}
	}
	return stats, nil
}

func (g *Generator) edition(ctx context.Context, s series, year, hour int, stats *Stats) error {
	date := time.Date(year, s.month, s.day, hour, 0, 0, 0, time.UTC)
	name := fmt.Sprintf("%s %d", s.name, year)
	if len(s.hours) > 1 {
		name = fmt.Sprintf("%s %d - %d:00 Entry", s.name, year, hour)
	}

	status := models.StatusUpcoming
	if date.Before(g.opts.Now) {
		status = models.StatusCompleted
	}
	capacity := s.capacity / len(s.hours)
	e := &models.Event{
		ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String(),
		Name:     name,
		Category: s.category,
		City:     s.city,
		Date:     date,
		Capacity: capacity,
		Status:   status,
		Platform: "eventbrite",
	}
	if err := g.sink.UpsertEvent(ctx, e); err != nil {
		return fmt.Errorf("failed to write event %s: %w", name, err)
	}
	stats.Events++

	// editions drift a little year over year
	fill := math.Min(1, s.fill*(0.9+0.2*g.rng.Float64()))
	target := int(float64(capacity) * fill)
	onSale := date.AddDate(0, 0, -s.saleDays)

	sold, n := 0, 0
	for sold < target {
		// sales accelerate towards the event: u^0.4 skews draws late
		offset := time.Duration(math.Pow(g.rng.Float64(), 0.4) * float64(date.Sub(onSale)))
		ts := onSale.Add(offset).Truncate(time.Minute)
		tickets := min(1+g.rng.Intn(4), target-sold)
		sold += tickets
		n++
		if !ts.Before(g.opts.Now) {
			continue
		}
		o := &models.Order{
			ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s#%d", e.ID, n))).String(),
			EventID:     e.ID,
			Email:       fmt.Sprintf("buyer%04d@example.com", g.rng.Intn(g.opts.Customers)),
			Timestamp:   ts,
			TicketCount: tickets,
			GrossAmount: float64(tickets) * s.price,
		}
		if err := g.sink.UpsertOrder(ctx, o); err != nil {
			return fmt.Errorf("failed to write order for %s: %w", name, err)
		}
		stats.Orders++
	}

	for day := onSale; !day.After(date) && day.Before(g.opts.Now); day = day.AddDate(0, 0, 7) {
		a := &models.AdSpend{
			EventID:      e.ID,
			CampaignID:   "meta-" + e.ID[:8],
			CampaignName: s.name + " awareness",
			SpendDate:    day,
			Spend:        math.Round((20+g.rng.Float64()*80)*100) / 100,
			Impressions:  1000 + g.rng.Intn(9000),
			Clicks:       20 + g.rng.Intn(200),
		}
		if err := g.sink.UpsertAdSpend(ctx, a); err != nil {
			return fmt.Errorf("failed to write ad spend for %s: %w", name, err)
		}
		stats.AdSpend++
	}
	return nil
}
