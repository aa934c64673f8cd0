package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/clinic/clinic/pkg/dates"
)

const (
	priorityLevel   = "Priority"
	regularLevel    = "Regular"
	completedStatus = "Completed"
)

// ParseRange reads the optional start_date and end_date parameters. Without
// them the range covers the twelve months ending with the current month.
func ParseRange(start, end string, now time.Time, loc *time.Location) (Range, error) {
	thisMonth := dates.MonthStart(now, loc)
	r := Range{
		Start: thisMonth.AddDate(0, -11, 0),
		End:   thisMonth.AddDate(0, 1, -1),
	}
	if s := strings.TrimSpace(start); s != "" {
		t, err := dates.ParseDate(s, loc)
		if err != nil {
			return Range{}, ErrInvalidDate
		}
		r.Start, r.Explicit = t, true
	}
	if s := strings.TrimSpace(end); s != "" {
		t, err := dates.ParseDate(s, loc)
		if err != nil {
			return Range{}, ErrInvalidDate
		}
		r.End, r.Explicit = t, true
	}
	if r.End.Before(r.Start) {
		return Range{}, fmt.Errorf("end_date must not be before start_date")
	}
	return r, nil
}

// MonthRange is the calendar month given as "YYYY-MM", defaulting to the
// current month.
func MonthRange(month string, now time.Time, loc *time.Location) (Range, error) {
	start := dates.MonthStart(now, loc)
	if strings.TrimSpace(month) != "" {
		t, err := dates.ParseMonth(month, loc)
		if err != nil {
			return Range{}, err
		}
		start = t
	}
	return Range{Start: start, End: start.AddDate(0, 1, -1), Explicit: true}, nil
}

// CountByMonth buckets times by month. Every month of r appears, oldest
// first, including empty ones.
func CountByMonth(times []time.Time, r Range, loc *time.Location) []MonthCount {
	counts := make(map[string]int)
	for _, t := range times {
		counts[dates.MonthKey(t, loc)]++
	}
	months := dates.Months(r.Start, r.End, loc)
	out := make([]MonthCount, len(months))
	for i, m := range months {
		out[i] = MonthCount{Month: m, Count: counts[m]}
	}
	return out
}

func visitTime(v Visit) time.Time {
	if v.VisitCreatedAt != nil {
		return *v.VisitCreatedAt
	}
	return v.VisitDate.Time
}

// GroupVisits keys visits by month, newest first within a month.
func GroupVisits(visits []Visit, loc *time.Location) map[string][]Visit {
	out := make(map[string][]Visit)
	for _, v := range visits {
		key := dates.MonthKey(visitTime(v), loc)
		out[key] = append(out[key], v)
	}
	for _, vs := range out {
		sort.SliceStable(vs, func(i, j int) bool { return visitTime(vs[i]).After(visitTime(vs[j])) })
	}
	return out
}

// AverageWaitMinutes is the mean time from check-in to treatment, rounded
// to the nearest minute. Visits missing either timestamp are ignored and a
// negative wait counts as zero.
func AverageWaitMinutes(visits []Visit) int {
	var total time.Duration
	n := 0
	for _, v := range visits {
		if v.VisitCreatedAt == nil || v.TreatmentCreatedAt == nil {
			continue
		}
		wait := v.TreatmentCreatedAt.Sub(*v.VisitCreatedAt)
		if wait < 0 {
			wait = 0
		}
		total += wait
		n++
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(total.Minutes() / float64(n)))
}

// PriorityDistribution always carries both priority levels.
func PriorityDistribution(visits []Visit) map[string]int {
	out := map[string]int{regularLevel: 0, priorityLevel: 0}
	for _, v := range visits {
		level := v.PriorityLevel
		if level == "" {
			level = regularLevel
		}
		out[level]++
	}
	return out
}

func StatusBreakdown(visits []Visit) map[string]int {
	out := make(map[string]int)
	for _, v := range visits {
		out[v.Status]++
	}
	return out
}

// CompletionRate formats completed/total as "NN.NN%".
func CompletionRate(completed, total int) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(completed)*100/float64(total))
}

// Summarize builds one summary per month of r plus the overall totals.
func Summarize(visits []Visit, r Range, loc *time.Location) VisitSummary {
	grouped := GroupVisits(visits, loc)
	months := dates.Months(r.Start, r.End, loc)

	s := VisitSummary{Months: make([]MonthSummary, 0, len(months))}
	for _, m := range months {
		vs := grouped[m]
		s.Months = append(s.Months, MonthSummary{
			Month:                m,
			TotalVisits:          len(vs),
			AverageWaitMinutes:   AverageWaitMinutes(vs),
			PriorityDistribution: PriorityDistribution(vs),
			StatusBreakdown:      StatusBreakdown(vs),
		})
	}

	// Overall figures cover only months that had at least one visit.
	var o Overall
	for _, m := range months {
		if len(grouped[m]) > 0 {
			o.TotalMonths++
		}
		for _, v := range grouped[m] {
			o.TotalVisits++
			if v.PriorityLevel == priorityLevel {
				o.PriorityCases++
			}
			if v.Status == completedStatus {
				o.Completed++
			}
		}
	}
	if o.TotalMonths > 0 {
		o.AverageVisitsPerMonth = math.Round(float64(o.TotalVisits)/float64(o.TotalMonths)*100) / 100
	}
	o.CompletionRate = CompletionRate(o.Completed, o.TotalVisits)
	s.Overall = o
	return s
}

// GroupLabDetails keys lab requests by the month they were made, newest
// first within a month.
func GroupLabDetails(items []LabDetail, loc *time.Location) map[string][]LabDetail {
	out := make(map[string][]LabDetail)
	for _, it := range items {
		key := dates.MonthKey(it.CreatedAt, loc)
		out[key] = append(out[key], it)
	}
	for _, list := range out {
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	}
	return out
}

// RankDiseases counts diagnoses by description, most frequent first with
// ties broken alphabetically. limit <= 0 keeps everything.
func RankDiseases(rows []DiagnosisRow, limit int) []DiseaseCount {
	counts := make(map[string]int)
	for _, r := range rows {
		d := strings.TrimSpace(r.Description)
		if d == "" {
			continue
		}
		counts[d]++
	}
	out := make([]DiseaseCount, 0, len(counts))
	for d, n := range counts {
		out = append(out, DiseaseCount{Description: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Description < out[j].Description
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DiseasesByMonth ranks diagnoses within each month.
func DiseasesByMonth(rows []DiagnosisRow, loc *time.Location) map[string][]DiseaseCount {
	byMonth := make(map[string][]DiagnosisRow)
	for _, r := range rows {
		key := dates.MonthKey(r.Date, loc)
		byMonth[key] = append(byMonth[key], r)
	}
	out := make(map[string][]DiseaseCount, len(byMonth))
	for m, rs := range byMonth {
		out[m] = RankDiseases(rs, 0)
	}
	return out
}

// SortByQueueNumber orders visits by queue number with unnumbered visits
// last.
func SortByQueueNumber(visits []Visit) {
	sort.SliceStable(visits, func(i, j int) bool {
		a, b := visits[i].QueueNumber, visits[j].QueueNumber
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return *a < *b
	})
}

// MonthLabel renders "2024-03" as "March 2024".
func MonthLabel(key string) string {
	t, err := time.Parse(dates.MonthLayout, key)
	if err != nil {
		return key
	}
	return t.Format("January 2006")
}
