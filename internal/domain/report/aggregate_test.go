package report

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/export"
	"github.com/clinic/clinic/pkg/dates"
)

var testNow = time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func num(n int64) *int64 { return &n }

func visit(created, treated *time.Time, priority, status string) Visit {
	v := Visit{ID: uuid.New(), PriorityLevel: priority, Status: status, VisitCreatedAt: created, TreatmentCreatedAt: treated}
	if created != nil {
		v.VisitDate = dates.Date{Time: *created}
	}
	return v
}

func TestParseRange_Default(t *testing.T) {
	r, err := ParseRange("", "", testNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.July, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC), r.End)
	assert.False(t, r.Explicit)
	assert.Len(t, dates.Months(r.Start, r.End, time.UTC), 12)
}

func TestParseRange_Explicit(t *testing.T) {
	r, err := ParseRange("2024-01-10", "2024-03-05", testNow, time.UTC)
	require.NoError(t, err)
	assert.True(t, r.Explicit)
	assert.Equal(t, time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC), r.EndExclusive())

	_, err = ParseRange("01/10/2024", "", testNow, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ParseRange("2024-03-01", "2024-02-01", testNow, time.UTC)
	assert.Error(t, err)
}

func TestMonthRange(t *testing.T) {
	r, err := MonthRange("2024-02", testNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), r.End)

	r, err = MonthRange("", testNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.June, r.Start.Month())

	_, err = MonthRange("June", testNow, time.UTC)
	assert.Error(t, err)
}

func TestCountByMonth_IncludesEmptyMonths(t *testing.T) {
	r := Range{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)}
	times := []time.Time{*ts("2024-01-03T08:00:00Z"), *ts("2024-01-20T08:00:00Z"), *ts("2024-03-31T23:30:00Z")}

	got := CountByMonth(times, r, time.UTC)
	want := []MonthCount{{"2024-01", 2}, {"2024-02", 0}, {"2024-03", 1}, {"2024-04", 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CountByMonth mismatch (-want +got):\n%s", diff)
	}
}

func TestCountByMonth_UsesClinicTimezone(t *testing.T) {
	manila := time.FixedZone("PHT", 8*3600)
	r := Range{Start: time.Date(2024, 3, 1, 0, 0, 0, 0, manila), End: time.Date(2024, 4, 30, 0, 0, 0, 0, manila)}
	// 20:00 UTC on March 31 is already April 1 in the clinic.
	got := CountByMonth([]time.Time{*ts("2024-03-31T20:00:00Z")}, r, manila)
	want := []MonthCount{{"2024-03", 0}, {"2024-04", 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestAverageWaitMinutes(t *testing.T) {
	tests := []struct {
		name   string
		visits []Visit
		want   int
	}{
		{"none", nil, 0},
		{"missing timestamps", []Visit{visit(ts("2024-01-01T08:00:00Z"), nil, "Regular", "Waiting")}, 0},
		{"rounded", []Visit{
			visit(ts("2024-01-01T08:00:00Z"), ts("2024-01-01T08:10:00Z"), "Regular", "Completed"),
			visit(ts("2024-01-01T09:00:00Z"), ts("2024-01-01T09:25:00Z"), "Regular", "Completed"),
		}, 18},
		{"negative wait counts as zero", []Visit{
			visit(ts("2024-01-01T08:00:00Z"), ts("2024-01-01T07:00:00Z"), "Regular", "Completed"),
			visit(ts("2024-01-01T09:00:00Z"), ts("2024-01-01T09:30:00Z"), "Regular", "Completed"),
		}, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AverageWaitMinutes(tt.visits))
		})
	}
}

func TestCompletionRate(t *testing.T) {
	assert.Equal(t, "0.00%", CompletionRate(0, 0))
	assert.Equal(t, "66.67%", CompletionRate(2, 3))
	assert.Equal(t, "100.00%", CompletionRate(4, 4))
}

func TestSummarize(t *testing.T) {
	r := Range{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)}
	visits := []Visit{
		visit(ts("2024-01-05T08:00:00Z"), ts("2024-01-05T08:20:00Z"), "Priority", "Completed"),
		visit(ts("2024-01-06T08:00:00Z"), nil, "Regular", "Waiting"),
		visit(ts("2024-03-01T08:00:00Z"), ts("2024-03-01T08:40:00Z"), "Regular", "Completed"),
	}

	got := Summarize(visits, r, time.UTC)

	want := VisitSummary{
		Months: []MonthSummary{
			{
				Month: "2024-01", TotalVisits: 2, AverageWaitMinutes: 20,
				PriorityDistribution: map[string]int{"Regular": 1, "Priority": 1},
				StatusBreakdown:      map[string]int{"Completed": 1, "Waiting": 1},
			},
			{
				Month: "2024-02", PriorityDistribution: map[string]int{"Regular": 0, "Priority": 0},
				StatusBreakdown: map[string]int{},
			},
			{
				Month: "2024-03", TotalVisits: 1, AverageWaitMinutes: 40,
				PriorityDistribution: map[string]int{"Regular": 1, "Priority": 0},
				StatusBreakdown:      map[string]int{"Completed": 1},
			},
		},
		Overall: Overall{
			TotalMonths: 2, TotalVisits: 3, AverageVisitsPerMonth: 1.5,
			PriorityCases: 1, Completed: 2, CompletionRate: "66.67%",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize_OverallSkipsEmptyMonths(t *testing.T) {
	r := Range{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)}
	visits := []Visit{visit(ts("2024-03-12T09:00:00Z"), nil, "Regular", "Waiting")}

	got := Summarize(visits, r, time.UTC)

	assert.Len(t, got.Months, 12)
	assert.Equal(t, 1, got.Overall.TotalMonths)
	assert.Equal(t, 1, got.Overall.TotalVisits)
	assert.Equal(t, 1.0, got.Overall.AverageVisitsPerMonth)
}

func TestSummarize_NoVisits(t *testing.T) {
	r := Range{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)}

	got := Summarize(nil, r, time.UTC)

	assert.Len(t, got.Months, 2)
	assert.Zero(t, got.Overall.TotalMonths)
	assert.Zero(t, got.Overall.AverageVisitsPerMonth)
	assert.Equal(t, "0.00%", got.Overall.CompletionRate)
}

func TestQueueSummary(t *testing.T) {
	visits := []Visit{
		{PriorityLevel: "Priority", Status: "Waiting"},
		{PriorityLevel: "Regular", Status: "Queued for Treatment"},
		{PriorityLevel: "Regular", Status: "Completed"},
	}

	got := queueSummary(visits)

	want := []export.SummaryItem{
		{Label: "Total Patients", Value: "3"},
		{Label: "Priority Cases", Value: "1"},
		{Label: "Currently Waiting", Value: "1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("queueSummary mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupVisits_NewestFirst(t *testing.T) {
	a := visit(ts("2024-02-01T08:00:00Z"), nil, "Regular", "Waiting")
	b := visit(ts("2024-02-10T08:00:00Z"), nil, "Regular", "Waiting")
	c := visit(ts("2024-03-02T08:00:00Z"), nil, "Regular", "Waiting")

	got := GroupVisits([]Visit{a, b, c}, time.UTC)
	require.Len(t, got, 2)
	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, []uuid.UUID{got["2024-02"][0].ID, got["2024-02"][1].ID})
	assert.Len(t, got["2024-03"], 1)
}

func TestRankDiseases(t *testing.T) {
	rows := []DiagnosisRow{
		{Description: "Hypertension"}, {Description: "Influenza"}, {Description: "Hypertension"},
		{Description: "Asthma"}, {Description: "Influenza"}, {Description: " "},
	}
	got := RankDiseases(rows, 2)
	want := []DiseaseCount{{"Hypertension", 2}, {"Influenza", 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RankDiseases mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, RankDiseases(rows, 0), 3)
}

func TestDiseasesByMonth(t *testing.T) {
	rows := []DiagnosisRow{
		{Description: "Influenza", Date: *ts("2024-01-03T08:00:00Z")},
		{Description: "Influenza", Date: *ts("2024-01-09T08:00:00Z")},
		{Description: "Asthma", Date: *ts("2024-02-01T08:00:00Z")},
	}
	got := DiseasesByMonth(rows, time.UTC)
	want := map[string][]DiseaseCount{
		"2024-01": {{"Influenza", 2}},
		"2024-02": {{"Asthma", 1}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DiseasesByMonth mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupLabDetails(t *testing.T) {
	older := LabDetail{ID: uuid.New(), CreatedAt: *ts("2024-05-01T08:00:00Z")}
	newer := LabDetail{ID: uuid.New(), CreatedAt: *ts("2024-05-20T08:00:00Z")}
	got := GroupLabDetails([]LabDetail{older, newer}, time.UTC)
	require.Len(t, got["2024-05"], 2)
	assert.Equal(t, newer.ID, got["2024-05"][0].ID)
}

func TestSortByQueueNumber_NilsLast(t *testing.T) {
	visits := []Visit{{QueueNumber: nil}, {QueueNumber: num(7)}, {QueueNumber: num(2)}}
	SortByQueueNumber(visits)
	assert.Equal(t, "2", queueNumber(visits[0].QueueNumber))
	assert.Equal(t, "7", queueNumber(visits[1].QueueNumber))
	assert.Equal(t, "N/A", queueNumber(visits[2].QueueNumber))
}

func TestMonthLabel(t *testing.T) {
	assert.Equal(t, "March 2024", MonthLabel("2024-03"))
	assert.Equal(t, "bogus", MonthLabel("bogus"))
}
