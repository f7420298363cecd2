package pacing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"pacer/internal/curve"
	"pacer/internal/models"
	"pacer/internal/pattern"
)

// maxClusterSpanDays bounds how far apart the sessions of one show may be
const maxClusterSpanDays = 3

// minPrefixLen is the shortest shared slot-name prefix worth using as a label
const minPrefixLen = 10

// Analysis pairs a per-event result with the event it was computed for
type Analysis struct {
	Event  models.Event
	Result *models.EventPacingResult
}

// DetectClusters finds timed-entry shows: two or more sessions of the same
// series at distinct times within a few calendar days of each other.
// Clusters and their members are ordered by start time.
func DetectClusters(analyses []Analysis) [][]Analysis {
	var keys []string
	byKey := make(map[string][]Analysis)
	for _, an := range analyses {
		k := pattern.Key(an.Event.Name)
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], an)
	}

	var clusters [][]Analysis
	for _, k := range keys {
		group := byKey[k]
		if len(group) < 2 {
			continue
		}
		sortByStart(group)
		first, last := group[0].Event.Date, group[len(group)-1].Event.Date
		if !last.After(first) || models.DaysBetweenDates(first, last) > maxClusterSpanDays {
			continue
		}
		clusters = append(clusters, group)
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i][0].Event.Date.Before(clusters[j][0].Event.Date)
	})
	return clusters
}

// GroupSessions replaces every timed-entry cluster by one merged result per
// calendar day. Results outside any cluster pass through unchanged.
func (a *Analyzer) GroupSessions(ctx context.Context, analyses []Analysis) ([]*models.EventPacingResult, error) {
	clusters := DetectClusters(analyses)
	grouped := make(map[string]bool)
	for _, cl := range clusters {
		for _, an := range cl {
			grouped[an.Event.ID] = true
		}
	}

	var out []*models.EventPacingResult
	for _, an := range analyses {
		if !grouped[an.Event.ID] {
			out = append(out, an.Result)
		}
	}

	for _, cl := range clusters {
		for _, day := range splitByDay(cl) {
			merged, err := a.mergeDay(ctx, day, cl)
			if err != nil {
				return nil, err
			}
			out = append(out, merged)
		}
	}
	return out, nil
}

func (a *Analyzer) mergeDay(ctx context.Context, day, cluster []Analysis) (*models.EventPacingResult, error) {
	date := models.DateOf(day[0].Event.Date)
	name := sessionLabel(cluster) + " - " + date.Weekday().String()

	res := &models.EventPacingResult{
		EventID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte(name+"_"+date.Format("2006-01-02"))).String(),
		EventName: name,
		EventDate: day[0].Result.EventDate,
		Category:  day[0].Event.Category,
		City:      day[0].Event.City,
		DaysUntil: day[0].Result.DaysUntil,
	}
	for _, an := range day {
		r := an.Result
		res.TicketsSold += r.TicketsSold
		res.Revenue += r.Revenue
		res.AdSpend += r.AdSpend
		res.Capacity = max(res.Capacity, r.Capacity)
		res.HighValueTargets = max(res.HighValueTargets, r.HighValueTargets)
		res.ReactivationTargets = max(res.ReactivationTargets, r.ReactivationTargets)
		res.ConstituentEventIDs = append(res.ConstituentEventIDs, an.Event.ID)
	}
	res.SellThrough = sellThrough(res.TicketsSold, res.Capacity)
	res.CAC = cac(res.AdSpend, res.TicketsSold)

	comps, err := a.ordinalComparisons(ctx, date, res.DaysUntil, cluster)
	if err != nil {
		return nil, err
	}
	res.HistoricalComparisons = comps
	for _, c := range comps {
		res.ComparisonEvents = append(res.ComparisonEvents, c.EventName)
		res.ComparisonYears = append(res.ComparisonYears, c.Year)
	}

	var atPoint []float64
	for _, c := range comps {
		if c.AtDaysOut != nil {
			atPoint = append(atPoint, c.AtDaysOut.SellThrough)
		}
	}
	if len(atPoint) > 0 {
		sort.Float64s(atPoint)
		res.HistoricalMedian = curve.Median(atPoint)
		res.HistoricalRange = models.Range{Low: atPoint[0], High: atPoint[len(atPoint)-1]}
		res.Pace = pace(res.SellThrough, res.HistoricalMedian)
	}

	res.ProjectedFinal, res.ProjectedRange, res.Confidence = project(res.TicketsSold, res.Capacity, comps)
	a.classify(res, len(comps))
	return res, nil
}

// ordinalComparisons matches a merged day against the same day of each past
// year: the n-th distinct date of this year's run compares to the n-th
// distinct date of every earlier run.
func (a *Analyzer) ordinalComparisons(ctx context.Context, date time.Time, daysUntil int, cluster []Analysis) ([]models.HistoricalComparison, error) {
	dates := distinctDates(cluster)
	ordinal := sort.Search(len(dates), func(i int) bool { return !dates[i].Before(date) })

	exclude := make(map[string]bool, len(cluster))
	for _, an := range cluster {
		exclude[an.Event.ID] = true
	}
	key := pattern.Key(cluster[0].Event.Name)
	past, err := a.pastEditions(ctx, key, models.DateOf(a.now()), exclude)
	if err != nil {
		return nil, err
	}

	var years []int
	byYear := make(map[int][]models.Event)
	for _, e := range past {
		y := e.Date.Year()
		if _, ok := byYear[y]; !ok {
			years = append(years, y)
		}
		byYear[y] = append(byYear[y], e)
	}
	sort.Ints(years)

	var comps []models.HistoricalComparison
	for _, y := range years {
		editions := byYear[y]
		var yearDates []time.Time
		for _, e := range editions {
			d := models.DateOf(e.Date)
			if len(yearDates) == 0 || !yearDates[len(yearDates)-1].Equal(d) {
				yearDates = append(yearDates, d)
			}
		}
		if ordinal >= len(yearDates) {
			continue
		}
		target := yearDates[ordinal]
		var onDate []models.Event
		for _, e := range editions {
			if models.DateOf(e.Date).Equal(target) {
				onDate = append(onDate, e)
			}
		}
		c, err := a.compare(ctx, onDate, daysUntil)
		if err != nil {
			return nil, fmt.Errorf("failed to compare %d editions: %w", y, err)
		}
		c.EventDate = target.Format("2006-01-02")
		c.DayOfWeek = target.Weekday().String()
		comps = append(comps, c)
	}
	return comps, nil
}

func splitByDay(cluster []Analysis) [][]Analysis {
	var days [][]Analysis
	for _, an := range cluster {
		d := models.DateOf(an.Event.Date)
		n := len(days)
		if n > 0 && models.DateOf(days[n-1][0].Event.Date).Equal(d) {
			days[n-1] = append(days[n-1], an)
			continue
		}
		days = append(days, []Analysis{an})
	}
	return days
}

func distinctDates(cluster []Analysis) []time.Time {
	var out []time.Time
	for _, an := range cluster {
		d := models.DateOf(an.Event.Date)
		if len(out) == 0 || !out[len(out)-1].Equal(d) {
			out = append(out, d)
		}
	}
	return out
}

func sortByStart(group []Analysis) {
	sort.SliceStable(group, func(i, j int) bool {
		if !group[i].Event.Date.Equal(group[j].Event.Date) {
			return group[i].Event.Date.Before(group[j].Event.Date)
		}
		return group[i].Event.ID < group[j].Event.ID
	})
}

// sessionLabel is a display name for a cluster, not an identity
func sessionLabel(cluster []Analysis) string {
	prefix := cluster[0].Event.Name
	for _, an := range cluster[1:] {
		prefix = commonPrefix(prefix, an.Event.Name)
	}
	prefix = strings.TrimRight(prefix, " -:/")
	if utf8.RuneCountInString(prefix) > minPrefixLen {
		return prefix
	}
	return cluster[0].Event.Name
}

func commonPrefix(a, b string) string {
	i := 0
	for i < len(a) && i < len(b) {
		ra, size := utf8.DecodeRuneInString(a[i:])
		rb, _ := utf8.DecodeRuneInString(b[i:])
		if ra != rb {
			break
		}
		i += size
	}
	return a[:i]
}
