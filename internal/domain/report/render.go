package report

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/platform/export"
	"github.com/clinic/clinic/pkg/dates"
)

const (
	timeLayout     = "Jan 2, 2006 3:04 PM"
	dayLayout      = "Jan 2, 2006"
	notAvailable   = "N/A"
	footerTemplate = "Report generated from %s"
)

func (s *Service) footer() string {
	return fmt.Sprintf(footerTemplate, s.clinicName)
}

func (s *Service) formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return notAvailable
	}
	return t.In(s.loc).Format(timeLayout)
}

func queueNumber(n *int64) string {
	if n == nil {
		return notAvailable
	}
	return strconv.FormatInt(*n, 10)
}

func boardVisit(b *queue.BoardEntry) Visit {
	v := Visit{
		ID:            b.ID,
		PatientID:     b.PatientID,
		PatientCode:   b.PatientCode,
		PatientName:   b.PatientName(),
		PriorityLevel: b.PriorityLevel,
		Status:        b.Status,
		Complaint:     b.Complaint,
		VisitDate:     dates.Date{Time: b.QueueDate},
	}
	if b.QueueNumber > 0 {
		n := b.QueueNumber
		v.QueueNumber = &n
	}
	if !b.CreatedAt.IsZero() {
		created := b.CreatedAt
		v.VisitCreatedAt = &created
	}
	return v
}

// queueSummary counts the board header figures. Only entries still in
// Waiting count as currently waiting.
func queueSummary(visits []Visit) []export.SummaryItem {
	priority, waiting := 0, 0
	for _, v := range visits {
		if v.PriorityLevel == priorityLevel {
			priority++
		}
		if v.Status == queue.StatusWaiting {
			waiting++
		}
	}
	return []export.SummaryItem{
		{Label: "Total Patients", Value: strconv.Itoa(len(visits))},
		{Label: "Priority Cases", Value: strconv.Itoa(priority)},
		{Label: "Currently Waiting", Value: strconv.Itoa(waiting)},
	}
}

// QueuePDF renders the monthly queue report and returns its file name.
func (s *Service) QueuePDF(ctx context.Context, r Range, w io.Writer) (string, error) {
	entries, err := s.src.Queue.ListByMonth(ctx, r.Start)
	if err != nil {
		return "", err
	}
	visits := make([]Visit, len(entries))
	for i, e := range entries {
		visits[i] = boardVisit(e)
	}
	SortByQueueNumber(visits)

	key := dates.MonthKey(r.Start, s.loc)
	doc := export.NewPDFReport("Patient Queue Report", MonthLabel(key), s.now().In(s.loc), s.footer())
	doc.Summary(queueSummary(visits))

	rows := make([][]string, len(visits))
	for i, v := range visits {
		rows[i] = []string{
			queueNumber(v.QueueNumber), v.PatientCode, v.PatientName, v.PriorityLevel,
			v.Complaint, v.Status, s.formatTime(v.VisitCreatedAt),
		}
	}
	doc.Table(export.Table{
		Columns: []export.Column{
			{Header: "Queue #", Width: 0.08, Align: export.AlignCenter},
			{Header: "Patient ID", Width: 0.11},
			{Header: "Patient Name", Width: 0.19},
			{Header: "Priority", Width: 0.1},
			{Header: "Complaint", Width: 0.18},
			{Header: "Status", Width: 0.16},
			{Header: "Check-in Time", Width: 0.18},
		},
		Rows:      rows,
		Highlight: func(i int) bool { return visits[i].PriorityLevel == priorityLevel },
	})

	if err := doc.Render(w); err != nil {
		return "", err
	}
	return "queue-report-" + key + ".pdf", nil
}

// LabPDF renders the lab requests made during the month of r.
func (s *Service) LabPDF(ctx context.Context, r Range, w io.Writer) (string, error) {
	items, err := s.repo.ListLabRequests(ctx, r.Start, r.EndExclusive())
	if err != nil {
		return "", err
	}

	completed := 0
	rows := make([][]string, len(items))
	for i, it := range items {
		if it.Status == "Completed" {
			completed++
		}
		rows[i] = []string{
			it.PatientName, it.TestName, it.Status, valueOr(it.RequestedBy),
			it.CreatedAt.In(s.loc).Format(dayLayout), s.formatTime(it.UploadedAt),
		}
	}

	key := dates.MonthKey(r.Start, s.loc)
	doc := export.NewPDFReport("Laboratory Results Report", MonthLabel(key), s.now().In(s.loc), s.footer())
	doc.Summary([]export.SummaryItem{
		{Label: "Total Requests", Value: strconv.Itoa(len(items))},
		{Label: "Completed", Value: strconv.Itoa(completed)},
		{Label: "Pending", Value: strconv.Itoa(len(items) - completed)},
	})
	doc.Table(export.Table{
		Columns: []export.Column{
			{Header: "Patient Name", Width: 0.2},
			{Header: "Test", Width: 0.2},
			{Header: "Status", Width: 0.12},
			{Header: "Requested By", Width: 0.18},
			{Header: "Requested On", Width: 0.13},
			{Header: "Uploaded", Width: 0.17},
		},
		Rows: rows,
	})

	if err := doc.Render(w); err != nil {
		return "", err
	}
	return "lab-results-" + key + ".pdf", nil
}

// PatientPDF renders the full patient report.
func (s *Service) PatientPDF(ctx context.Context, patientID uuid.UUID, w io.Writer) (string, error) {
	rep, err := s.PatientReport(ctx, patientID)
	if err != nil {
		return "", err
	}
	p := rep.Patient

	doc := export.NewPDFReport("Patient Medical Report", p.FullName(), s.now().In(s.loc), s.footer())

	doc.Section("Patient Information")
	doc.KeyValues([][2]string{
		{"Patient ID", p.PatientCode},
		{"Name", p.FullName()},
		{"Date of Birth", p.DateOfBirth.String()},
		{"Age", strconv.Itoa(p.Age)},
		{"Phone", p.PhoneNumber},
		{"Email", p.Email},
		{"Address", joinNonEmpty(", ", p.StreetAddress, p.Barangay, p.MunicipalCity)},
	})

	doc.Section("Preliminary Assessment")
	if a := rep.PreliminaryAssessment; a != nil {
		pain := ""
		if a.PainScale != nil {
			pain = strconv.Itoa(*a.PainScale) + "/10"
		}
		doc.KeyValues([][2]string{
			{"Date", a.AssessmentDate.In(s.loc).Format(timeLayout)},
			{"Blood Pressure", a.BloodPressure},
			{"Temperature", a.Temperature},
			{"Heart Rate", a.HeartRate},
			{"Respiratory Rate", a.RespiratoryRate},
			{"Pulse Rate", a.PulseRate},
			{"Allergies", a.Allergies},
			{"Medical History", a.MedicalHistory},
			{"Symptoms", a.Symptoms},
			{"Pain", joinNonEmpty(" ", pain, a.PainLocation)},
			{"Assessment", a.Assessment},
		})
	} else {
		doc.Paragraph("No preliminary assessment recorded.")
	}

	doc.Section("Most Recent Treatment")
	if t := rep.RecentTreatment; t != nil {
		doc.KeyValues([][2]string{
			{"Date", t.CreatedAt.In(s.loc).Format(timeLayout)},
			{"Doctor", t.DoctorInfo.Name},
			{"Specialization", t.DoctorInfo.Specialization},
			{"Notes", t.TreatmentNotes},
		})
		rows := make([][]string, len(t.Prescriptions))
		for i, rx := range t.Prescriptions {
			name := ""
			if rx.Medication != nil {
				name = rx.Medication.Name
			}
			rows[i] = []string{name, rx.Dosage, rx.Frequency, strconv.Itoa(rx.Quantity), rx.Status}
		}
		doc.Table(export.Table{
			Columns: []export.Column{
				{Header: "Medication", Width: 0.3},
				{Header: "Dosage", Width: 0.18},
				{Header: "Frequency", Width: 0.24},
				{Header: "Qty", Width: 0.1, Align: export.AlignCenter},
				{Header: "Status", Width: 0.18},
			},
			Rows: rows,
		})
	} else {
		doc.Paragraph("No treatments recorded.")
	}

	doc.Section("Diagnoses")
	diag := make([][]string, len(rep.AllDiagnoses))
	for i, d := range rep.AllDiagnoses {
		diag[i] = []string{d.Date.In(s.loc).Format(dayLayout), valueOr(d.Code), d.Description}
	}
	doc.Table(export.Table{
		Columns: []export.Column{
			{Header: "Date", Width: 0.2},
			{Header: "Code", Width: 0.15},
			{Header: "Description", Width: 0.65},
		},
		Rows: diag,
	})

	doc.Section("Laboratory Results")
	labs := make([][]string, len(rep.Laboratories))
	for i, l := range rep.Laboratories {
		by := ""
		if l.Submitter != nil {
			by = joinNonEmpty(" ", l.Submitter.FirstName, l.Submitter.LastName)
		}
		labs[i] = []string{l.TestName, l.FileName, valueOr(by), l.UploadedAt.In(s.loc).Format(timeLayout)}
	}
	doc.Table(export.Table{
		Columns: []export.Column{
			{Header: "Test", Width: 0.3},
			{Header: "File", Width: 0.3},
			{Header: "Submitted By", Width: 0.2},
			{Header: "Uploaded", Width: 0.2},
		},
		Rows: labs,
	})

	doc.Section("Treatment Notes")
	if len(rep.AllTreatmentNotes) == 0 {
		doc.Paragraph("No treatment notes recorded.")
	}
	for _, n := range rep.AllTreatmentNotes {
		doc.Paragraph(fmt.Sprintf("%s (%s): %s", n.CreatedAt.In(s.loc).Format(dayLayout), valueOr(n.Doctor), n.Notes))
	}

	if err := doc.Render(w); err != nil {
		return "", err
	}
	return "patient-report-" + p.PatientCode + ".pdf", nil
}

var visitHeaders = []string{"Queue #", "Patient ID", "Patient Name", "Priority", "Status", "Complaint", "Visit Date", "Check-in", "Treated At"}

// VisitsWorkbook writes a Summary sheet followed by one sheet per month that
// had visits.
func (s *Service) VisitsWorkbook(ctx context.Context, r Range, w io.Writer) error {
	visits, err := s.visits(ctx, r)
	if err != nil {
		return err
	}
	summary := Summarize(visits, r, s.loc)
	grouped := GroupVisits(visits, s.loc)

	wb, err := export.NewWorkbook()
	if err != nil {
		return err
	}

	rows := make([][]interface{}, 0, len(summary.Months)+1)
	for _, m := range summary.Months {
		rows = append(rows, []interface{}{
			m.Month, m.TotalVisits, m.AverageWaitMinutes,
			m.PriorityDistribution[regularLevel], m.PriorityDistribution[priorityLevel],
			m.StatusBreakdown[completedStatus],
		})
	}
	o := summary.Overall
	rows = append(rows, []interface{}{"Total", o.TotalVisits, "", o.TotalVisits - o.PriorityCases, o.PriorityCases, o.Completed})
	if err := wb.AddSheet("Summary", []string{"Month", "Total Visits", "Average Wait (min)", "Regular", "Priority", "Completed"}, rows); err != nil {
		return err
	}

	for _, m := range summary.Months {
		vs := grouped[m.Month]
		if len(vs) == 0 {
			continue
		}
		sheet := make([][]interface{}, len(vs))
		for i, v := range vs {
			sheet[i] = []interface{}{
				queueNumber(v.QueueNumber), v.PatientCode, v.PatientName, v.PriorityLevel, v.Status,
				v.Complaint, v.VisitDate.String(), s.formatTime(v.VisitCreatedAt), s.formatTime(v.TreatmentCreatedAt),
			}
		}
		if err := wb.AddSheet(m.Month, visitHeaders, sheet); err != nil {
			return err
		}
	}
	return wb.Write(w)
}

// VisitsChart draws monthly visit counts as a bar chart.
func (s *Service) VisitsChart(ctx context.Context, r Range, w io.Writer) error {
	counts, err := s.MonthlyVisits(ctx, r)
	if err != nil {
		return err
	}
	bars := make([]export.Bar, len(counts))
	for i, c := range counts {
		label := c.Month
		if t, err := time.Parse(dates.MonthLayout, c.Month); err == nil {
			label = t.Format("Jan 06")
		}
		bars[i] = export.Bar{Label: label, Value: float64(c.Count)}
	}
	return export.BarChartPNG(w, "Monthly Patient Visits", bars)
}

func valueOr(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
