package models

// Decision is the recommended action for an event
type Decision string

const (
	DecisionPivot      Decision = "PIVOT"
	DecisionPush       Decision = "PUSH"
	DecisionMaintain   Decision = "MAINTAIN"
	DecisionCoast      Decision = "COAST"
	DecisionNotStarted Decision = "NOT_STARTED"
)

// Range is a closed [Low, High] interval of sell-through percentages
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// TicketRange is a closed [Low, High] interval of ticket counts
type TicketRange struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// AtDaysOut is the state of a past edition at the same days-before-event point
type AtDaysOut struct {
	Days        int     `json:"days"`
	Tickets     int     `json:"tickets"`
	Revenue     float64 `json:"revenue"`
	SellThrough float64 `json:"sell_through"`
	AdSpend     float64 `json:"ad_spend"`
}

// HistoricalComparison is one past edition row of the year-over-year table
type HistoricalComparison struct {
	EventName        string     `json:"event_name"`
	EventDate        string     `json:"event_date"`
	Year             int        `json:"year"`
	DayOfWeek        string     `json:"day_of_week,omitempty"`
	FinalTickets     int        `json:"final_tickets"`
	FinalRevenue     float64    `json:"final_revenue"`
	Capacity         int        `json:"capacity"`
	FinalSellThrough float64    `json:"final_sell_through"`
	AdSpendTotal     float64    `json:"ad_spend_total"`
	AtDaysOut        *AtDaysOut `json:"at_days_out"`
}

// EventPacingResult is the engine output for one event or one merged session day
type EventPacingResult struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	EventDate string `json:"event_date"`
	Category  string `json:"event_type"`
	City      string `json:"city"`
	DaysUntil int    `json:"days_until"`

	TicketsSold int     `json:"tickets_sold"`
	Capacity    int     `json:"capacity"`
	Revenue     float64 `json:"revenue"`
	AdSpend     float64 `json:"ad_spend"`
	SellThrough float64 `json:"sell_through"`
	CAC         float64 `json:"cac"`

	HistoricalMedian float64  `json:"historical_median_at_point"`
	HistoricalRange  Range    `json:"historical_range"`
	Pace             float64  `json:"pace_vs_historical"`
	ComparisonEvents []string `json:"comparison_events"`
	ComparisonYears  []int    `json:"comparison_years"`

	ProjectedFinal int         `json:"projected_final"`
	ProjectedRange TicketRange `json:"projected_range"`
	Confidence     float64     `json:"confidence"`

	Decision  Decision `json:"decision"`
	Urgency   int      `json:"urgency"`
	Rationale string   `json:"rationale"`
	Actions   []string `json:"actions"`

	HighValueTargets    int `json:"high_value_targets"`
	ReactivationTargets int `json:"reactivation_targets"`

	HistoricalComparisons []HistoricalComparison `json:"historical_comparisons"`
	ConstituentEventIDs   []string               `json:"constituent_event_ids,omitempty"`
}

// PortfolioSummary aggregates a ranked portfolio
type PortfolioSummary struct {
	TotalTickets  int     `json:"total_tickets"`
	TotalCapacity int     `json:"total_capacity"`
	TotalRevenue  float64 `json:"total_revenue"`
	TotalSpend    float64 `json:"total_spend"`
	PortfolioCAC  float64 `json:"portfolio_cac"`
	EventCount    int     `json:"event_count"`
}

// PortfolioResponse is the payload served for a portfolio view
type PortfolioResponse struct {
	Portfolio PortfolioSummary     `json:"portfolio"`
	Decisions map[Decision]int     `json:"decisions"`
	Events    []*EventPacingResult `json:"events"`
	AsOf      string               `json:"as_of"`
}

// RebuildResult reports the counts of one full batch rebuild
type RebuildResult struct {
	Snapshots int `json:"snapshots"`
	Curves    int `json:"curves"`
	Customers int `json:"customers"`
}

// Summarize builds the portfolio totals and decision histogram
func Summarize(results []*EventPacingResult) (PortfolioSummary, map[Decision]int) {
	var s PortfolioSummary
	decisions := make(map[Decision]int)
	for _, r := range results {
		s.TotalTickets += r.TicketsSold
		s.TotalCapacity += r.Capacity
		s.TotalRevenue += r.Revenue
		s.TotalSpend += r.AdSpend
		decisions[r.Decision]++
	}
	if s.TotalTickets > 0 {
		s.PortfolioCAC = s.TotalSpend / float64(s.TotalTickets)
	}
	s.EventCount = len(results)
	return s, decisions
}
