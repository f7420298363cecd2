package targeting

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pacer/internal/models"
	"pacer/internal/pacing"
	"pacer/internal/scoring"
)

var segmentWeights = map[string]float64{
	scoring.SegmentChampion:    100,
	scoring.SegmentLoyal:       80,
	scoring.SegmentPotential:   60,
	scoring.SegmentAtRisk:      40,
	scoring.SegmentHibernating: 20,
	scoring.SegmentOther:       30,
}

// overdueBefore is the days-until point after which a timing segment has
// usually bought already
var overdueBefore = map[string]int{
	scoring.TimingSuperEarlyBird: 60,
	scoring.TimingEarlyBird:      45,
	scoring.TimingPlanner:        30,
}

// PriorityScore ranks a lapsed attendee: segment weight, 0.3 per LTV point,
// a timing bonus when their usual buying window has opened or passed, and 10
// per past edition attended.
func PriorityScore(c models.Customer, pastEditions, daysUntil int) float64 {
	weight, ok := segmentWeights[c.RFMSegment]
	if !ok {
		weight = segmentWeights[scoring.SegmentOther]
	}

	timing := 0.0
	switch {
	case c.TimingSegment == scoring.TimingSuperEarlyBird && daysUntil < 60:
		timing = 30
	case c.TimingSegment == scoring.TimingEarlyBird && daysUntil < 45:
		timing = 25
	case c.TimingSegment == scoring.TimingPlanner && daysUntil < 30:
		timing = 15
	case c.TimingSegment == scoring.TimingLastMinute && daysUntil < 14:
		timing = 10
	}

	return weight + c.LTVScore*0.3 + timing + float64(max(pastEditions, 1))*10
}

// lapsedAttendees returns past-edition buyers with no order on the current
// run, highest priority first.
func (p *Planner) lapsedAttendees(ctx context.Context, pastIDs []string, current map[string]bool, daysUntil int) ([]models.Prospect, error) {
	if len(pastIDs) == 0 {
		return nil, nil
	}
	attendance, err := p.store.SeriesAttendance(ctx, pastIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load past attendance: %w", err)
	}

	var eligible []models.Attendance
	for _, a := range attendance {
		if !current[a.Email] {
			eligible = append(eligible, a)
		}
	}
	if len(eligible) > PastAttendeeLimit*2 {
		eligible = eligible[:PastAttendeeLimit*2]
	}

	emails := make([]string, len(eligible))
	for i, a := range eligible {
		emails[i] = a.Email
	}
	profiles, err := p.profiles(ctx, emails)
	if err != nil {
		return nil, err
	}

	var out []models.Prospect
	for _, a := range eligible {
		c, ok := profiles[a.Email]
		if !ok {
			continue
		}
		last := a.LastPurchase
		out = append(out, models.Prospect{
			Customer:          c,
			PastEditions:      a.Editions,
			PastEventSpent:    round(a.Spent, 2),
			LastEventPurchase: &last,
			PriorityScore:     round(PriorityScore(c, a.Editions, daysUntil), 1),
		})
		if len(out) >= PastAttendeeLimit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriorityScore > out[j].PriorityScore })
	return out, nil
}

func (p *Planner) profiles(ctx context.Context, emails []string) (map[string]models.Customer, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	list, err := p.store.GetCustomers(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer profiles: %w", err)
	}
	out := make(map[string]models.Customer, len(list))
	for _, c := range list {
		out[c.Email] = c
	}
	return out, nil
}

// prospects fills the category, city and win-back audiences. Category fans
// are drawn first since every one of them also favors the city; each later
// audience leaves out everyone listed before it.
func (p *Planner) prospects(ctx context.Context, out *models.Targeting, t *Target, listed map[string]bool, pageSize int) error {
	var fans []models.Prospect
	if t.Category != "" {
		list, err := p.store.ListHighValueCustomers(ctx, models.CustomerFilter{
			EventType:    t.Category,
			FavoriteCity: t.City,
			MinLTV:       ProspectMinLTV,
			Limit:        ProspectLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list category fans: %w", err)
		}
		fans = unlisted(list, listed)
	}
	out.Audiences.TypeFans = audience(cases.Title(language.English).String(orDefault(t.Category, "similar"))+" Lovers",
		fmt.Sprintf("Customers who love %s events but have not attended this one", orDefault(t.Category, "this type of")),
		fans, pageSize)
	markListed(listed, fans)

	var city []models.Prospect
	if t.City != "" {
		list, err := p.store.ListHighValueCustomers(ctx, models.CustomerFilter{
			FavoriteCity: t.City,
			MinLTV:       ProspectMinLTV,
			Limit:        ProspectLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list city prospects: %w", err)
		}
		city = unlisted(list, listed)
	}
	out.Audiences.CityProspects = audience(orDefault(t.City, "Local")+" Event Fans",
		fmt.Sprintf("High-value customers who attend events in %s but never attended this one", orDefault(t.City, "this city")),
		city, pageSize)
	markListed(listed, city)

	atRisk, err := p.store.ListAtRiskCustomers(ctx, pacing.AtRiskMinOrders, pacing.AtRiskMinDaysInactive)
	if err != nil {
		return fmt.Errorf("failed to list at-risk customers: %w", err)
	}
	var winBack []models.Prospect
	for _, c := range atRisk {
		if listed[c.Email] || c.Cities[t.City] == 0 || c.EventTypes[t.Category] == 0 {
			continue
		}
		winBack = append(winBack, models.Prospect{Customer: c})
	}
	sort.SliceStable(winBack, func(i, j int) bool { return winBack[i].TotalSpent > winBack[j].TotalSpent })
	out.Audiences.AtRisk = audience("Win-Back Targets",
		"Previously active customers going cold with a history in this city and category",
		winBack, pageSize)
	return nil
}

// crossSell finds buyers of other kinds of events in the same city
func (p *Planner) crossSell(ctx context.Context, t *Target, current map[string]bool) ([]models.Prospect, error) {
	if t.City == "" {
		return nil, nil
	}
	buyers, err := p.store.OtherTypeBuyers(ctx, t.City, t.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to list cross-sell buyers: %w", err)
	}

	var candidates []models.TypeAttendance
	for _, b := range buyers {
		if !current[b.Email] {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) > CrossSellLimit*2 {
		candidates = candidates[:CrossSellLimit*2]
	}
	emails := make([]string, len(candidates))
	for i, b := range candidates {
		emails[i] = b.Email
	}
	profiles, err := p.profiles(ctx, emails)
	if err != nil {
		return nil, err
	}

	var out []models.Prospect
	for _, b := range candidates {
		c, ok := profiles[b.Email]
		if !ok {
			continue
		}
		out = append(out, models.Prospect{Customer: c, AttendedTypes: b.Types})
		if len(out) >= CrossSellLimit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LTVScore > out[j].LTVScore })
	return out, nil
}

func unlisted(list []models.Customer, listed map[string]bool) []models.Prospect {
	var out []models.Prospect
	for _, c := range list {
		if !listed[c.Email] {
			out = append(out, models.Prospect{Customer: c})
		}
	}
	return out
}

func markListed(listed map[string]bool, list []models.Prospect) {
	for _, pr := range list {
		listed[pr.Email] = true
	}
}

func audience(label, description string, list []models.Prospect, pageSize int) models.Audience {
	a := models.Audience{
		Label:       label,
		Description: description,
		Count:       len(list),
		Customers:   []models.Prospect{},
	}
	for _, pr := range list {
		a.HistoricalValue += pr.TotalSpent
	}
	a.HistoricalValue = round(a.HistoricalValue, 2)
	if len(list) > 0 {
		a.Customers = list[:min(len(list), pageSize)]
	}
	return a
}

func pastAttendeeAudience(list []models.Prospect, daysUntil, pageSize int) models.Audience {
	a := audience("Past Attendees Not Purchased",
		"Attended previous editions but no ticket this year, sorted by conversion likelihood",
		list, pageSize)
	if len(list) == 0 {
		return a
	}
	a.SegmentBreakdown = make(map[string]int)
	a.TimingBreakdown = make(map[string]models.TimingBucket)
	for _, pr := range list {
		a.SegmentBreakdown[orDefault(pr.RFMSegment, scoring.SegmentOther)]++
		ts := orDefault(pr.TimingSegment, "unknown")
		b := a.TimingBreakdown[ts]
		b.Count++
		a.TimingBreakdown[ts] = b
	}
	for ts, before := range overdueBefore {
		if b, ok := a.TimingBreakdown[ts]; ok && daysUntil < before {
			b.Overdue = true
			a.TimingBreakdown[ts] = b
		}
	}
	return a
}

// quickWin estimates the tickets won by emailing champion and loyal past
// attendees at the series rebuy rate, lifted by half and capped at 25%.
func quickWin(past models.Audience, repeatRate, avgPrice float64) models.QuickWin {
	rebuy := 0.10
	if repeatRate > 0 {
		rebuy = repeatRate / 100
	}
	emails := past.SegmentBreakdown[scoring.SegmentChampion] + past.SegmentBreakdown[scoring.SegmentLoyal]
	if emails == 0 {
		emails = past.Count
	}
	conversion := math.Min(rebuy*1.5, 0.25)
	tickets := int(float64(emails) * conversion)
	price := avgPrice
	if price == 0 {
		price = 45
	}
	return models.QuickWin{
		Audience:           "Champion & Loyal past attendees",
		EmailsToSend:       emails,
		ExpectedTickets:    tickets,
		ExpectedRevenue:    round(float64(tickets)*price, 2),
		ConversionRateUsed: round(conversion*100, 1),
	}
}

func timingRecommendations(past models.Audience, daysUntil int) []models.TimingRecommendation {
	count := func(segments ...string) int {
		n := 0
		for _, s := range segments {
			n += past.TimingBreakdown[s].Count
		}
		return n
	}

	recs := []models.TimingRecommendation{}
	switch {
	case daysUntil > 45:
		if n := count(scoring.TimingSuperEarlyBird); n > 0 {
			recs = append(recs, models.TimingRecommendation{
				Urgency:        "now",
				Action:         fmt.Sprintf("Email %d super-early-bird past attendees, they usually buy 60+ days out", n),
				Count:          n,
				TimingSegments: []string{scoring.TimingSuperEarlyBird},
			})
		}
	case daysUntil > 14:
		if n := count(scoring.TimingSuperEarlyBird, scoring.TimingEarlyBird); n > 0 {
			recs = append(recs, models.TimingRecommendation{
				Urgency:        "now",
				Action:         fmt.Sprintf("Email %d early birds now, they are overdue to buy", n),
				Count:          n,
				TimingSegments: []string{scoring.TimingSuperEarlyBird, scoring.TimingEarlyBird},
			})
		}
		if n := count(scoring.TimingPlanner); n > 0 {
			recs = append(recs, models.TimingRecommendation{
				Urgency:        "soon",
				Action:         fmt.Sprintf("%d planners typically buy 14-28 days out, email this week", n),
				Count:          n,
				TimingSegments: []string{scoring.TimingPlanner},
			})
		}
	default:
		recs = append(recs, models.TimingRecommendation{
			Urgency:        "critical",
			Action:         fmt.Sprintf("Final push: email all %d past attendees with scarcity messaging", past.Count),
			Count:          past.Count,
			TimingSegments: []string{"all"},
		})
		if n := count(scoring.TimingLastMinute, scoring.TimingSpontaneous); n > 0 {
			recs = append(recs, models.TimingRecommendation{
				Urgency:        "now",
				Action:         fmt.Sprintf("%d last-minute buyers are entering their buying window", n),
				Count:          n,
				TimingSegments: []string{scoring.TimingLastMinute, scoring.TimingSpontaneous},
			})
		}
	}
	return recs
}

// PromoStats summarizes promo code usage, most used first
func PromoStats(orders []models.Order) []models.PromoCodeStat {
	byCode := make(map[string]*models.PromoCodeStat)
	buyers := make(map[string]map[string]bool)
	for _, o := range orders {
		if o.PromoCode == nil || *o.PromoCode == "" {
			continue
		}
		code := *o.PromoCode
		s, ok := byCode[code]
		if !ok {
			s = &models.PromoCodeStat{Code: code}
			byCode[code] = s
			buyers[code] = make(map[string]bool)
		}
		s.Uses++
		s.Tickets += o.TicketCount
		s.Revenue += o.GrossAmount
		buyers[code][models.NormalizeEmail(o.Email)] = true
	}

	out := make([]models.PromoCodeStat, 0, len(byCode))
	for code, s := range byCode {
		s.AvgOrder = round(s.Revenue/float64(s.Uses), 2)
		s.Revenue = round(s.Revenue, 2)
		s.UniqueBuyers = len(buyers[code])
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Uses != out[j].Uses {
			return out[i].Uses > out[j].Uses
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Velocity buckets sales by days before the event, furthest out first
func Velocity(orders []models.Order) []models.VelocityBucket {
	byDay := make(map[int]*models.VelocityBucket)
	for _, o := range orders {
		b, ok := byDay[o.DaysBeforeEvent]
		if !ok {
			b = &models.VelocityBucket{DaysBeforeEvent: o.DaysBeforeEvent}
			byDay[o.DaysBeforeEvent] = b
		}
		b.Orders++
		b.Tickets += o.TicketCount
		b.Revenue += o.GrossAmount
	}
	out := make([]models.VelocityBucket, 0, len(byDay))
	for _, b := range byDay {
		b.Revenue = round(b.Revenue, 2)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DaysBeforeEvent > out[j].DaysBeforeEvent })
	return out
}
