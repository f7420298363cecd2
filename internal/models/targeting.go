package models

import "time"

// Attendance summarizes one buyer's orders across a set of events
type Attendance struct {
	Email        string    `json:"email"`
	Editions     int       `json:"editions"`
	Spent        float64   `json:"spent"`
	LastPurchase time.Time `json:"last_purchase"`
}

// TypeAttendance lists the event types a buyer has bought in one city
type TypeAttendance struct {
	Email string   `json:"email"`
	Types []string `json:"types"`
}

// Prospect is a customer profile annotated for one event's outreach
type Prospect struct {
	Customer

	PastEditions      int        `json:"past_editions,omitempty"`
	PastEventSpent    float64    `json:"past_event_spent,omitempty"`
	LastEventPurchase *time.Time `json:"last_event_purchase,omitempty"`
	AttendedTypes     []string   `json:"attended_types,omitempty"`
	PriorityScore     float64    `json:"priority_score,omitempty"`
}

type TimingBucket struct {
	Count   int  `json:"count"`
	Overdue bool `json:"overdue"`
}

// Audience is one outreach list; Customers holds at most the first page
type Audience struct {
	Label            string                  `json:"label"`
	Description      string                  `json:"description"`
	Count            int                     `json:"count"`
	HistoricalValue  float64                 `json:"historical_value"`
	Customers        []Prospect              `json:"customers"`
	SegmentBreakdown map[string]int          `json:"segment_breakdown,omitempty"`
	TimingBreakdown  map[string]TimingBucket `json:"timing_breakdown,omitempty"`
}

type Audiences struct {
	PastAttendees Audience `json:"past_attendees"`
	CityProspects Audience `json:"city_prospects"`
	TypeFans      Audience `json:"type_fans"`
	AtRisk        Audience `json:"at_risk"`
	CrossSell     Audience `json:"cross_sell"`
}

// RevenueGap compares current sales with the most recent past edition
type RevenueGap struct {
	LastYear         int     `json:"last_year"`
	LastYearEvent    string  `json:"last_year_event"`
	LastYearTickets  int     `json:"last_year_tickets"`
	LastYearRevenue  float64 `json:"last_year_revenue"`
	LastYearCapacity int     `json:"last_year_capacity"`
	TicketsGap       int     `json:"tickets_gap"`
	RevenueGap       float64 `json:"revenue_gap"`
	AvgTicketPrice   float64 `json:"avg_ticket_price"`
	PctOfLastYear    float64 `json:"pct_of_last_year"`
}

type RepeatBuyers struct {
	Count                int     `json:"count"`
	TotalPastBuyers      int     `json:"total_past_buyers"`
	Rate                 float64 `json:"rate"`
	LastYearBuyers       int     `json:"last_year_buyers"`
	ReboughtFromLastYear int     `json:"rebought_from_last_year"`
	LastYearRebuyRate    float64 `json:"last_year_rebuy_rate"`
}

// QuickWin estimates the return of emailing the best past attendees
type QuickWin struct {
	Audience           string  `json:"audience"`
	EmailsToSend       int     `json:"emails_to_send"`
	ExpectedTickets    int     `json:"expected_tickets"`
	ExpectedRevenue    float64 `json:"expected_revenue"`
	ConversionRateUsed float64 `json:"conversion_rate_used"`
}

type TimingRecommendation struct {
	Urgency        string   `json:"urgency"`
	Action         string   `json:"action"`
	Count          int      `json:"count"`
	TimingSegments []string `json:"timing_segments"`
}

// PromoCodeStat is the usage of one promo code on an event
type PromoCodeStat struct {
	Code         string  `json:"promo_code"`
	Uses         int     `json:"uses"`
	Tickets      int     `json:"tickets"`
	Revenue      float64 `json:"revenue"`
	AvgOrder     float64 `json:"avg_order"`
	UniqueBuyers int     `json:"unique_buyers"`
}

// VelocityBucket is the sales made at one days-before-event point
type VelocityBucket struct {
	DaysBeforeEvent int     `json:"days_before_event"`
	Orders          int     `json:"order_count"`
	Tickets         int     `json:"tickets"`
	Revenue         float64 `json:"revenue"`
}

// Targeting is the outreach plan for one event or merged session day
type Targeting struct {
	EventID             string   `json:"event_id"`
	EventName           string   `json:"event_name"`
	EventDate           string   `json:"event_date"`
	Category            string   `json:"event_type"`
	City                string   `json:"city"`
	Capacity            int      `json:"capacity"`
	ConstituentEventIDs []string `json:"constituent_event_ids"`
	SiblingEventIDs     []string `json:"sibling_event_ids"`

	DaysUntil      int     `json:"days_until"`
	CurrentBuyers  int     `json:"current_buyers"`
	CurrentTickets int     `json:"current_tickets"`
	CurrentRevenue float64 `json:"current_revenue"`
	AvgTicketPrice float64 `json:"avg_ticket_price"`

	PastEditionIDs        []string               `json:"past_edition_ids"`
	RevenueGap            *RevenueGap            `json:"revenue_gap"`
	RepeatBuyers          RepeatBuyers           `json:"repeat_buyers"`
	QuickWin              QuickWin               `json:"quick_win"`
	TimingRecommendations []TimingRecommendation `json:"timing_recommendations"`
	Audiences             Audiences              `json:"audiences"`

	PromoCodes []PromoCodeStat  `json:"promo_codes"`
	Velocity   []VelocityBucket `json:"velocity"`
}
