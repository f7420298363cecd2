package models

import (
	"math"
	"strings"
	"time"
)

// EventStatus is the lifecycle state of an event
type EventStatus string

const (
	StatusUpcoming  EventStatus = "upcoming"
	StatusLive      EventStatus = "live"
	StatusCompleted EventStatus = "completed"
)

// Event represents one edition of a (possibly recurring) live event
type Event struct {
	ID       string      `json:"event_id" db:"event_id"`
	Name     string      `json:"name" db:"name"`
	Category string      `json:"event_type" db:"event_type"`
	City     string      `json:"city" db:"city"`
	Date     time.Time   `json:"event_date" db:"event_date"`
	Capacity int         `json:"capacity" db:"capacity"`
	Status   EventStatus `json:"status" db:"status"`
	Platform string      `json:"platform" db:"platform"`
}

// Order represents a ticket purchase. Orders are immutable once recorded;
// re-ingestion overwrites by order id.
type Order struct {
	ID              string    `json:"order_id" db:"order_id"`
	EventID         string    `json:"event_id" db:"event_id"`
	Email           string    `json:"email" db:"email"`
	Timestamp       time.Time `json:"order_timestamp" db:"order_timestamp"`
	TicketCount     int       `json:"ticket_count" db:"ticket_count"`
	GrossAmount     float64   `json:"gross_amount" db:"gross_amount"`
	TicketType      *string   `json:"ticket_type,omitempty" db:"ticket_type"`
	PromoCode       *string   `json:"promo_code,omitempty" db:"promo_code"`
	DaysBeforeEvent int       `json:"days_before_event" db:"days_before_event"`
}

// CustomerOrder is an order joined with the metadata of its event
type CustomerOrder struct {
	Order
	EventName string    `json:"event_name"`
	EventType string    `json:"event_type"`
	City      string    `json:"city"`
	EventDate time.Time `json:"event_date"`
}

// DailySnapshot holds the cumulative sales state of an event at the end of one calendar day
type DailySnapshot struct {
	EventID           string    `json:"event_id" db:"event_id"`
	SnapshotDate      time.Time `json:"snapshot_date" db:"snapshot_date"`
	DaysBeforeEvent   int       `json:"days_before_event" db:"days_before_event"`
	TicketsCumulative int       `json:"tickets_cumulative" db:"tickets_cumulative"`
	RevenueCumulative float64   `json:"revenue_cumulative" db:"revenue_cumulative"`
	TicketsThatDay    int       `json:"tickets_that_day" db:"tickets_that_day"`
	RevenueThatDay    float64   `json:"revenue_that_day" db:"revenue_that_day"`
	OrdersThatDay     int       `json:"orders_that_day" db:"orders_that_day"`
	SellThroughPct    float64   `json:"sell_through_pct" db:"sell_through_pct"`
	AdSpendCumulative float64   `json:"ad_spend_cumulative" db:"ad_spend_cumulative"`
}

// CurvePoint is the distribution of sell-through observed at one days-before-event bucket
type CurvePoint struct {
	Median  float64 `json:"median"`
	P25     float64 `json:"p25"`
	P75     float64 `json:"p75"`
	Samples int     `json:"samples"`
}

// PacingCurve is the historical sell-through curve of one event series
type PacingCurve struct {
	Pattern             string             `json:"pattern" db:"pattern"`
	EventType           string             `json:"event_type" db:"event_type"`
	SourceEvents        []string           `json:"source_events" db:"source_events"`
	Points              map[int]CurvePoint `json:"curve_data" db:"curve_data"`
	AvgFinalSellThrough float64            `json:"avg_final_sell_through" db:"avg_final_sell_through"`
	SampleCount         int                `json:"sample_count" db:"sample_count"`
	UpdatedAt           time.Time          `json:"updated_at" db:"updated_at"`
}

// AdSpend is the advertising spend of one campaign on one day
type AdSpend struct {
	EventID      string    `json:"event_id" db:"event_id"`
	CampaignID   string    `json:"campaign_id" db:"campaign_id"`
	CampaignName string    `json:"campaign_name" db:"campaign_name"`
	SpendDate    time.Time `json:"spend_date" db:"spend_date"`
	Spend        float64   `json:"spend" db:"spend"`
	Impressions  int       `json:"impressions" db:"impressions"`
	Clicks       int       `json:"clicks" db:"clicks"`
}

// Customer is the scored lifetime profile of one buyer, keyed by canonical email
type Customer struct {
	Email string `json:"email" db:"email"`

	TotalOrders         int     `json:"total_orders" db:"total_orders"`
	TotalTickets        int     `json:"total_tickets" db:"total_tickets"`
	TotalSpent          float64 `json:"total_spent" db:"total_spent"`
	TotalEventsAttended int     `json:"total_events_attended" db:"total_events"`

	FirstOrderDate     time.Time `json:"first_order_date" db:"first_order_date"`
	LastOrderDate      time.Time `json:"last_order_date" db:"last_order_date"`
	DaysSinceLastOrder int       `json:"days_since_last_order" db:"days_since_last"`
	TenureDays         int       `json:"customer_tenure_days" db:"tenure_days"`

	AvgOrderValue        float64 `json:"avg_order_value" db:"avg_order_value"`
	AvgTicketsPerOrder   float64 `json:"avg_tickets_per_order" db:"avg_tickets_per_order"`
	AvgDaysBetweenOrders float64 `json:"avg_days_between_orders" db:"avg_days_between_orders"`

	FavoriteEventType string         `json:"favorite_event_type" db:"favorite_event_type"`
	FavoriteCity      string         `json:"favorite_city" db:"favorite_city"`
	EventTypes        map[string]int `json:"event_types" db:"event_types"`
	Cities            map[string]int `json:"cities" db:"cities"`

	AvgDaysBeforeEvent float64 `json:"avg_days_before_event" db:"avg_days_before_event"`
	TimingSegment      string  `json:"timing_segment" db:"timing_segment"`

	RFMRecency   int    `json:"rfm_recency" db:"rfm_r"`
	RFMFrequency int    `json:"rfm_frequency" db:"rfm_f"`
	RFMMonetary  int    `json:"rfm_monetary" db:"rfm_m"`
	RFMSegment   string `json:"rfm_segment" db:"rfm_segment"`

	LTVScore     float64 `json:"ltv_score" db:"ltv_score"`
	LTVProjected float64 `json:"ltv_projected" db:"ltv_projected"`

	EventsAttended []string  `json:"events_attended" db:"events_attended"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// EventFilter narrows an event listing. Zero values disable a condition.
type EventFilter struct {
	Status EventStatus
	From   time.Time // event date on or after
	Before time.Time // event date strictly before
}

// CustomerFilter narrows high-value customer queries
type CustomerFilter struct {
	EventType    string
	City         string
	FavoriteCity string
	MinLTV       float64
	Limit        int
}

// NormalizeEmail canonicalizes a buyer identity
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DateOf truncates t to its UTC calendar day
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetweenDates returns the number of calendar days from a to b
func DaysBetweenDates(a, b time.Time) int {
	return int(math.Round(DateOf(b).Sub(DateOf(a)).Hours() / 24))
}

// WholeDays returns the whole days elapsed from a to b, floored like a calendar duration
func WholeDays(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}

// DaysBefore returns the non-negative number of whole days between an order and its event
func DaysBefore(eventDate, orderTime time.Time) int {
	return max(0, WholeDays(orderTime, eventDate))
}
