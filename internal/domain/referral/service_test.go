package referral

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/platform/auth"
)

// -- Mock Repositories --

type mockReferralRepo struct {
	items  map[uuid.UUID]*Referral
	clock  time.Time
	locked []uuid.UUID
}

func (m *mockReferralRepo) Create(_ context.Context, r *Referral) error {
	r.ID = uuid.New()
	m.clock = m.clock.Add(time.Minute)
	r.CreatedAt = m.clock
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *mockReferralRepo) GetByID(_ context.Context, id uuid.UUID) (*Referral, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockReferralRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Referral, error) {
	m.locked = append(m.locked, id)
	return m.GetByID(ctx, id)
}

func (m *mockReferralRepo) GetByAppointment(_ context.Context, apptID uuid.UUID) (*Referral, error) {
	for _, r := range m.items {
		if r.AppointmentID != nil && *r.AppointmentID == apptID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockReferralRepo) sorted(keep func(*Referral) bool) []*Referral {
	var out []*Referral
	for _, r := range m.items {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *mockReferralRepo) ListByStatus(_ context.Context, status string) ([]*Referral, error) {
	return m.sorted(func(r *Referral) bool { return r.Status == status }), nil
}

func (m *mockReferralRepo) ListForDoctor(_ context.Context, doctorID uuid.UUID, pastOnly bool) ([]*Referral, error) {
	return m.sorted(func(r *Referral) bool {
		return r.IsParticipant(doctorID) && (!pastOnly || r.Status != StatusPending)
	}), nil
}

func (m *mockReferralRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string, apptID *uuid.UUID) error {
	r, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.AppointmentID = apptID
	return nil
}

type mockAppointmentRepo struct {
	items     map[uuid.UUID]*Appointment
	createErr error
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	if m.createErr != nil {
		return m.createErr
	}
	a.ID = uuid.New()
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) BookedTimes(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, a := range m.items {
		if a.DoctorID == doctorID && a.Status == AppointmentScheduled &&
			!a.AppointmentDate.Before(from) && a.AppointmentDate.Before(to) {
			out = append(out, a.AppointmentDate)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) ListUpcoming(_ context.Context, doctorID *uuid.UUID, from time.Time) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.items {
		if a.Status != AppointmentScheduled || a.AppointmentDate.Before(from) {
			continue
		}
		if doctorID != nil && a.DoctorID != *doctorID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.Before(out[j].AppointmentDate) })
	return out, nil
}

func (m *mockAppointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.items {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	a, ok := m.items[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.Status = status
	return nil
}

type fakeStaff struct {
	users     map[uuid.UUID]*staff.User
	schedules map[uuid.UUID][]*staff.Schedule
}

func (f *fakeStaff) Get(_ context.Context, id uuid.UUID) (*staff.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, staff.ErrNotFound
	}
	return u, nil
}

func (f *fakeStaff) ListSchedules(_ context.Context, doctorID uuid.UUID) ([]*staff.Schedule, error) {
	return f.schedules[doctorID], nil
}

type fakePatients struct {
	patients map[uuid.UUID]*patient.Patient
}

func (f *fakePatients) Get(_ context.Context, id uuid.UUID) (*patient.View, error) {
	p, ok := f.patients[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	return &patient.View{Patient: p}, nil
}

// testNow is Monday 2024-05-06 08:00 UTC.
var testNow = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc          *Service
	referrals    *mockReferralRepo
	appointments *mockAppointmentRepo
	staff        *fakeStaff
	referring    uuid.UUID
	receiving    uuid.UUID
	secretary    uuid.UUID
	patientID    uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		referrals:    &mockReferralRepo{items: map[uuid.UUID]*Referral{}, clock: testNow},
		appointments: &mockAppointmentRepo{items: map[uuid.UUID]*Appointment{}},
		referring:    uuid.New(),
		receiving:    uuid.New(),
		secretary:    uuid.New(),
		patientID:    uuid.New(),
	}
	f.staff = &fakeStaff{
		users: map[uuid.UUID]*staff.User{
			f.referring: {ID: f.referring, Role: auth.RoleDoctor, IsActive: true},
			f.receiving: {ID: f.receiving, Role: auth.RoleOnCallDoctor, IsActive: true},
			f.secretary: {ID: f.secretary, Role: auth.RoleSecretary, IsActive: true},
		},
		schedules: map[uuid.UUID][]*staff.Schedule{
			f.receiving: {{DoctorID: f.receiving, DayOfWeek: "Monday", StartTime: "09:00", EndTime: "11:00"}},
		},
	}
	patients := &fakePatients{patients: map[uuid.UUID]*patient.Patient{
		f.patientID: {ID: f.patientID, FirstName: "Lito", LastName: "Santos"},
	}}
	f.svc = NewService(f.referrals, f.appointments, f.staff, patients, nil, time.UTC, 30*time.Minute, zerolog.Nop())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) refer(t *testing.T) *Referral {
	t.Helper()
	r := &Referral{PatientID: f.patientID, ReceivingDoctorID: f.receiving, Reason: " cardiology consult "}
	if err := f.svc.Create(context.Background(), f.referring, r); err != nil {
		t.Fatalf("create referral: %v", err)
	}
	return r
}

func TestService_CreateReferral(t *testing.T) {
	f := newFixture()
	r := f.refer(t)
	if r.Status != StatusPending || r.ReferringDoctorID != f.referring || r.Reason != "cardiology consult" {
		t.Errorf("unexpected referral %+v", r)
	}
}

func TestService_CreateReferral_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tests := []struct {
		name string
		r    Referral
		want error
	}{
		{"missing reason", Referral{PatientID: f.patientID, ReceivingDoctorID: f.receiving}, nil},
		{"secretary as receiver", Referral{PatientID: f.patientID, ReceivingDoctorID: f.secretary, Reason: "x"}, ErrReceivingNotDoctor},
		{"unknown receiver", Referral{PatientID: f.patientID, ReceivingDoctorID: uuid.New(), Reason: "x"}, ErrReceivingNotDoctor},
		{"unknown patient", Referral{PatientID: uuid.New(), ReceivingDoctorID: f.receiving, Reason: "x"}, patient.ErrNotFound},
		{"self referral", Referral{PatientID: f.patientID, ReceivingDoctorID: f.referring, Reason: "x"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.r
			err := f.svc.Create(ctx, f.referring, &r)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_Decline(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.refer(t)

	if _, err := f.svc.Decline(ctx, r.ID, f.referring); !errors.Is(err, ErrNotReceivingDoctor) {
		t.Fatalf("expected ErrNotReceivingDoctor, got %v", err)
	}
	got, err := f.svc.Decline(ctx, r.ID, f.receiving)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	if _, err := f.svc.Decline(ctx, r.ID, f.receiving); !errors.Is(err, ErrNotPending) {
		t.Errorf("expected ErrNotPending, got %v", err)
	}

	past, _ := f.svc.ListPast(ctx, f.referring)
	if len(past) != 1 {
		t.Errorf("expected declined referral in past list, got %d", len(past))
	}
}

func TestService_ListsForParticipants(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first := f.refer(t)
	second := f.refer(t)

	items, _ := f.svc.ListForParticipant(ctx, f.receiving)
	if len(items) != 2 || items[0].ID != second.ID || items[1].ID != first.ID {
		t.Errorf("expected newest first, got %+v", items)
	}
	items, _ = f.svc.ListForParticipant(ctx, f.secretary)
	if len(items) != 0 {
		t.Errorf("non-participant should see nothing, got %d", len(items))
	}
	pending, _ := f.svc.ListPending(ctx)
	if len(pending) != 2 {
		t.Errorf("expected 2 pending, got %d", len(pending))
	}
	past, _ := f.svc.ListPast(ctx, f.receiving)
	if len(past) != 0 {
		t.Errorf("expected no past referrals, got %d", len(past))
	}
}

func TestService_PatientInfo(t *testing.T) {
	f := newFixture()
	r := f.refer(t)
	if _, err := f.svc.PatientInfo(context.Background(), r.ID, f.referring); !errors.Is(err, ErrNotReceivingDoctor) {
		t.Fatalf("expected ErrNotReceivingDoctor, got %v", err)
	}
	info, err := f.svc.PatientInfo(context.Background(), r.ID, f.receiving)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Patient.FirstName != "Lito" || info.Appointments == nil {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestService_ScheduleAndCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.refer(t)
	slot := time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)

	res, err := f.svc.ScheduleAppointment(ctx, r.ID, slot, f.secretary, "bring old records")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Message != "Appointment scheduled successfully" || !res.AppointmentDate.Equal(slot) {
		t.Errorf("unexpected result %+v", res)
	}
	stored, _ := f.referrals.GetByID(ctx, r.ID)
	if stored.Status != StatusScheduled || stored.AppointmentID == nil || *stored.AppointmentID != res.AppointmentID {
		t.Errorf("referral not linked: %+v", stored)
	}

	slots, _ := f.svc.Availability(ctx, f.receiving, testNow, testNow)
	if SlotFree(slots, slot) {
		t.Error("booked slot should not be offered")
	}
	if len(slots) != 3 {
		t.Errorf("expected 3 remaining slots, got %d", len(slots))
	}

	other := f.refer(t)
	if _, err := f.svc.ScheduleAppointment(ctx, other.ID, slot, f.secretary, ""); !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable for double booking, got %v", err)
	}
	if _, err := f.svc.ScheduleAppointment(ctx, r.ID, slot.Add(time.Hour), f.secretary, ""); !errors.Is(err, ErrNotPending) {
		t.Errorf("expected ErrNotPending, got %v", err)
	}

	upcoming, _ := f.svc.Upcoming(ctx, f.receiving, []string{auth.RoleOnCallDoctor})
	if len(upcoming) != 1 {
		t.Errorf("doctor should see own appointment, got %d", len(upcoming))
	}
	upcoming, _ = f.svc.Upcoming(ctx, f.referring, []string{auth.RoleDoctor})
	if len(upcoming) != 0 {
		t.Errorf("other doctor should see none, got %d", len(upcoming))
	}
	upcoming, _ = f.svc.Upcoming(ctx, f.secretary, []string{auth.RoleSecretary})
	if len(upcoming) != 1 {
		t.Errorf("secretary should see all, got %d", len(upcoming))
	}

	a, err := f.svc.CancelAppointment(ctx, res.AppointmentID)
	if err != nil || a.Status != AppointmentCancelled {
		t.Fatalf("cancel: %v %v", a, err)
	}
	stored, _ = f.referrals.GetByID(ctx, r.ID)
	if stored.Status != StatusPending || stored.AppointmentID != nil {
		t.Errorf("expected referral reopened, got %+v", stored)
	}
	if _, err := f.svc.CancelAppointment(ctx, res.AppointmentID); !errors.Is(err, ErrNotScheduled) {
		t.Errorf("expected ErrNotScheduled, got %v", err)
	}
}

func TestService_ScheduleLocksReferral(t *testing.T) {
	f := newFixture()
	r := f.refer(t)
	if _, err := f.svc.ScheduleAppointment(context.Background(), r.ID, time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC), f.secretary, ""); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(f.referrals.locked) != 1 || f.referrals.locked[0] != r.ID {
		t.Errorf("expected referral row lock, got %v", f.referrals.locked)
	}
}

func TestService_ScheduleConcurrentSlotTaken(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.refer(t)
	f.appointments.createErr = &pgconn.PgError{Code: "23505", ConstraintName: "uq_appointments_doctor_slot"}

	_, err := f.svc.ScheduleAppointment(ctx, r.ID, time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC), f.secretary, "")
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if got := errorStatus(err); got != http.StatusConflict {
		t.Errorf("status = %d, want %d", got, http.StatusConflict)
	}
	stored, _ := f.referrals.GetByID(ctx, r.ID)
	if stored.Status != StatusPending {
		t.Errorf("referral should stay pending, got %s", stored.Status)
	}
}

func TestService_ScheduleOutsideSchedule(t *testing.T) {
	f := newFixture()
	r := f.refer(t)
	_, err := f.svc.ScheduleAppointment(context.Background(), r.ID, time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC), f.secretary, "")
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable on a day off, got %v", err)
	}
}

func TestService_CompleteAppointment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.refer(t)
	res, err := f.svc.ScheduleAppointment(ctx, r.ID, time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC), f.secretary, "")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if _, err := f.svc.CompleteAppointment(ctx, res.AppointmentID, f.referring, []string{auth.RoleDoctor}); !errors.Is(err, ErrNotAppointmentDoctor) {
		t.Fatalf("expected ErrNotAppointmentDoctor, got %v", err)
	}
	a, err := f.svc.CompleteAppointment(ctx, res.AppointmentID, f.receiving, []string{auth.RoleOnCallDoctor})
	if err != nil || a.Status != AppointmentCompleted {
		t.Fatalf("complete: %v %v", a, err)
	}
	if _, err := f.svc.CancelAppointment(ctx, res.AppointmentID); !errors.Is(err, ErrNotScheduled) {
		t.Errorf("completed appointment cannot be cancelled, got %v", err)
	}
}
