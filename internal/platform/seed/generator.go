package seed

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/domain/treatment"
	"github.com/clinic/clinic/pkg/dates"
	"github.com/clinic/clinic/pkg/shortcode"
)

type codeEntry struct {
	Code    string
	Display string
}

var (
	firstNames = []string{
		"Juan", "Jose", "Mark", "John Paul", "Christian", "Angelo", "Miguel",
		"Rafael", "Carlo", "Paolo", "Gabriel", "Joshua", "Kenneth", "Ramon",
		"Maria", "Ana", "Kristine", "Angelica", "Patricia", "Camille",
		"Jasmine", "Nicole", "Andrea", "Joy", "Rowena", "Liza", "Grace",
	}
	middleNames = []string{"", "", "Dela Cruz", "Santos", "Reyes", "Garcia", "Mendoza", "Ramos"}
	lastNames   = []string{
		"Dela Cruz", "Santos", "Reyes", "Cruz", "Bautista", "Ocampo",
		"Garcia", "Mendoza", "Torres", "Castillo", "Flores", "Villanueva",
		"Ramos", "Aquino", "Navarro", "Gonzales", "Lopez", "Fernandez",
	}
	streets = []string{
		"12 Rizal St", "45 Mabini St", "78 Bonifacio Ave", "3 Luna St",
		"101 Aguinaldo Hwy", "9 Quezon Blvd", "27 Del Pilar St",
	}
	barangays = []string{
		"San Isidro", "Poblacion", "San Roque", "Santa Cruz", "Bagong Silang",
		"San Antonio", "Malinis", "Santo Niño",
	}
	cities = []string{
		"Quezon City", "Manila", "Pasig", "Makati", "Caloocan", "Antipolo",
		"Taguig", "Marikina",
	}
	complaints = []string{
		"General Illness", "Fever", "Cough and colds", "Headache", "Abdominal pain",
		"Hypertension follow-up", "Skin rash", "Back pain", "Diarrhea", "Sore throat",
	}
	diagnoses = []codeEntry{
		{"J06.9", "Acute upper respiratory infection"},
		{"I10", "Essential hypertension"},
		{"E11.9", "Type 2 diabetes mellitus"},
		{"A09", "Gastroenteritis"},
		{"J02.9", "Acute pharyngitis"},
		{"R51", "Headache"},
		{"M54.5", "Low back pain"},
		{"L30.9", "Dermatitis"},
		{"J45.909", "Asthma"},
		{"N39.0", "Urinary tract infection"},
	}
	treatmentNotes = []string{
		"Advised rest and increased fluid intake.",
		"Continue maintenance medication. Return in two weeks.",
		"Prescribed medication. Monitor temperature.",
		"Lifestyle modification discussed. Low salt diet.",
		"Symptoms improving. Follow up if no relief in 3 days.",
	}
	frequencies = []string{"Once a day", "Twice a day", "Three times a day", "Every 6 hours as needed"}
	dosages     = []string{"250mg", "500mg", "1 tablet", "5ml", "2 puffs"}
	habits      = []string{"Never", "Former", "Occasional", "Daily"}
)

// DataGenerator produces reproducible synthetic patients and visit
// histories. Equal seeds give equal output.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator returns a generator for seed. A zero seed picks a
// time-based one.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) between(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

func (g *DataGenerator) uuid() uuid.UUID {
	var b [16]byte
	g.rng.Read(b[:])
	id, _ := uuid.FromBytes(b[:])
	// Version 4, RFC 4122 variant.
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// Record is one synthetic patient with their visits, oldest first.
type Record struct {
	Patient patient.Patient
	Visits  []Visit
}

// Visit is a queue entry with the assessment and treatment it produced.
// Unfinished visits have neither.
type Visit struct {
	Entry      queue.Entry
	Assessment *queue.Assessment
	Treatment  *treatment.Treatment
}

// GeneratePatient produces a patient registered some time before now.
func (g *DataGenerator) GeneratePatient(now time.Time) patient.Patient {
	first, last := g.pick(firstNames), g.pick(lastNames)
	dob := time.Date(g.between(1945, 2020), time.Month(g.between(1, 12)), g.between(1, 28), 0, 0, 0, 0, time.UTC)
	return patient.Patient{
		ID:            g.uuid(),
		PatientCode:   shortcode.NewFrom(g.rng.Intn),
		FirstName:     first,
		MiddleName:    g.pick(middleNames),
		LastName:      last,
		Email:         fmt.Sprintf("%s.%s%d@example.com", slug(first), slug(last), g.rng.Intn(1000)),
		PhoneNumber:   fmt.Sprintf("09%09d", g.rng.Intn(1000000000)),
		DateOfBirth:   dates.Date{Time: dob},
		StreetAddress: g.pick(streets),
		Barangay:      g.pick(barangays),
		MunicipalCity: g.pick(cities),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// GenerateRecord produces a patient with up to maxVisits visits spread over
// the months before now. Visits on earlier days are completed and treated
// by one of doctors; prescriptions draw from medicines.
func (g *DataGenerator) GenerateRecord(now time.Time, months, maxVisits int, doctors, medicines []uuid.UUID) *Record {
	if months < 1 {
		months = 1
	}
	if maxVisits < 1 {
		maxVisits = 1
	}
	windowStart := now.AddDate(0, -months, 0)
	window := now.Sub(windowStart)

	n := g.between(1, maxVisits)
	times := make([]time.Time, n)
	for i := range times {
		day := windowStart.Add(time.Duration(g.rng.Int63n(int64(window))))
		day = time.Date(day.Year(), day.Month(), day.Day(), g.between(7, 16), g.between(0, 59), 0, 0, day.Location())
		if day.After(now) {
			day = now
		}
		times[i] = day
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	p := g.GeneratePatient(times[0].Add(-time.Duration(g.between(1, 30)) * time.Minute))
	rec := &Record{Patient: p}

	today := dates.Today(now, now.Location())
	for _, at := range times {
		rec.Visits = append(rec.Visits, g.visit(p.ID, at, !at.Before(today), doctors, medicines))
	}
	return rec
}

func (g *DataGenerator) visit(patientID uuid.UUID, at time.Time, isToday bool, doctors, medicines []uuid.UUID) Visit {
	priority := queue.PriorityRegular
	if g.rng.Intn(5) == 0 {
		priority = queue.PriorityPriority
	}
	status := queue.StatusCompleted
	if isToday {
		status = g.pick([]string{queue.StatusWaiting, queue.StatusQueuedAssessment, queue.StatusQueuedTreatment, queue.StatusCompleted})
	}

	v := Visit{Entry: queue.Entry{
		ID:            g.uuid(),
		PatientID:     patientID,
		PriorityLevel: priority,
		Status:        status,
		Complaint:     g.pick(complaints),
		QueueDate:     time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC),
		CreatedAt:     at,
		UpdatedAt:     at,
	}}

	if status == queue.StatusWaiting || status == queue.StatusQueuedAssessment {
		return v
	}
	v.Assessment = g.assessment(patientID, v.Entry.ID, at.Add(time.Duration(g.between(5, 30))*time.Minute))

	if status != queue.StatusCompleted {
		return v
	}
	treatedAt := v.Assessment.AssessmentDate.Add(time.Duration(g.between(5, 90)) * time.Minute)
	v.Treatment = g.treatment(patientID, v.Entry.ID, treatedAt, doctors, medicines)
	v.Entry.UpdatedAt = treatedAt
	return v
}

func (g *DataGenerator) assessment(patientID, entryID uuid.UUID, at time.Time) *queue.Assessment {
	pain := g.between(0, 6)
	entry := entryID
	return &queue.Assessment{
		ID:              g.uuid(),
		PatientID:       patientID,
		QueueEntryID:    &entry,
		BloodPressure:   fmt.Sprintf("%d/%d", g.between(100, 150), g.between(60, 95)),
		Temperature:     fmt.Sprintf("%.1f", 36.0+float64(g.rng.Intn(30))/10),
		HeartRate:       fmt.Sprint(g.between(60, 110)),
		RespiratoryRate: fmt.Sprint(g.between(12, 24)),
		PulseRate:       fmt.Sprint(g.between(60, 110)),
		Symptoms:        g.pick(complaints),
		PainScale:       &pain,
		SmokingStatus:   g.pick(habits),
		AlcoholUse:      g.pick(habits),
		Assessment:      "Stable for doctor consultation.",
		AssessmentDate:  at,
	}
}

func (g *DataGenerator) treatment(patientID, entryID uuid.UUID, at time.Time, doctors, medicines []uuid.UUID) *treatment.Treatment {
	entry := entryID
	t := &treatment.Treatment{
		ID:             g.uuid(),
		PatientID:      patientID,
		QueueEntryID:   &entry,
		TreatmentNotes: g.pick(treatmentNotes),
		CreatedAt:      at,
	}
	if len(doctors) > 0 {
		d := doctors[g.rng.Intn(len(doctors))]
		t.DoctorID = &d
	}

	dx := diagnoses[g.rng.Intn(len(diagnoses))]
	t.Diagnoses = []*treatment.Diagnosis{{
		ID:          g.uuid(),
		PatientID:   patientID,
		TreatmentID: &t.ID,
		Code:        dx.Code,
		Description: dx.Display,
		Date:        at,
	}}

	if len(medicines) > 0 {
		for i := g.rng.Intn(3); i > 0; i-- {
			start := dates.Date{Time: time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)}
			end := dates.Date{Time: start.AddDate(0, 0, g.between(3, 14))}
			dispensed := at.Add(15 * time.Minute)
			t.Prescriptions = append(t.Prescriptions, &treatment.Prescription{
				ID:          g.uuid(),
				PatientID:   patientID,
				TreatmentID: &t.ID,
				MedicineID:  medicines[g.rng.Intn(len(medicines))],
				Dosage:      g.pick(dosages),
				Frequency:   g.pick(frequencies),
				Quantity:    g.between(1, 30),
				StartDate:   &start,
				EndDate:     &end,
				Status:      treatment.PrescriptionDispensed,
				DispensedAt: &dispensed,
				CreatedAt:   at,
			})
		}
	}
	return t
}

func slug(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+'a'-'A')
		case r >= 'a' && r <= 'z':
			out = append(out, r)
		}
	}
	return string(out)
}
