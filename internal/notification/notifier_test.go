package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/internal/events"
	"imovelhub_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeDirectory struct {
	brokerName  string
	brokerEmail string
	brokerErr   error
	lead        *domain.Lead
	property    *domain.Property
}

func (d *fakeDirectory) GetBrokerContact(context.Context, uuid.UUID) (string, string, error) {
	return d.brokerName, d.brokerEmail, d.brokerErr
}

func (d *fakeDirectory) GetLead(context.Context, uuid.UUID) (*domain.Lead, error) {
	return d.lead, nil
}

func (d *fakeDirectory) GetProperty(context.Context, uuid.UUID) (*domain.Property, error) {
	return d.property, nil
}

type fakeMailer struct {
	mu      sync.Mutex
	to      []string
	subject []string
	body    []string
	err     error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.to = append(m.to, to)
	m.subject = append(m.subject, subject)
	m.body = append(m.body, body)
	return nil
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{
		brokerName:  "Carla",
		brokerEmail: "carla@imobiliaria.com",
		lead:        &domain.Lead{ID: uuid.New(), Phone: "+5541999990000", Name: "João"},
		property: &domain.Property{
			ID: uuid.New(), Code: "AP101", Title: "Apartamento 2 quartos",
			Street: "Rua das Flores, 100", Neighborhood: "Jardim América", City: "Curitiba",
		},
	}
}

func confirmedEvent() events.VisitConfirmed {
	return events.VisitConfirmed{
		BaseEvent:   events.NewBaseEvent(),
		VisitID:     uuid.New(),
		LeadID:      uuid.New(),
		PropertyID:  uuid.New(),
		BrokerID:    uuid.New(),
		ScheduledAt: time.Date(2026, 1, 24, 17, 0, 0, 0, time.UTC),
	}
}

func TestVisitConfirmedMailsBroker(t *testing.T) {
	dir := testDirectory()
	mailer := &fakeMailer{}
	bus := events.NewInMemoryBus(logger.New("test"))
	New(dir, mailer, logger.New("test")).BindBus(bus)

	if err := bus.PublishSync(context.Background(), confirmedEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(mailer.to) != 1 {
		t.Fatalf("sent %d mails, want 1", len(mailer.to))
	}
	if mailer.to[0] != "carla@imobiliaria.com" {
		t.Errorf("to = %q", mailer.to[0])
	}
	if !strings.Contains(mailer.subject[0], "AP101") {
		t.Errorf("subject missing listing code: %q", mailer.subject[0])
	}
	for _, want := range []string{"João", "+5541999990000", "Rua das Flores", "Curitiba"} {
		if !strings.Contains(mailer.body[0], want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestMailFailureIsSwallowed(t *testing.T) {
	dir := testDirectory()
	mailer := &fakeMailer{err: fmt.Errorf("smtp down")}
	bus := events.NewInMemoryBus(logger.New("test"))
	New(dir, mailer, logger.New("test")).BindBus(bus)

	if err := bus.PublishSync(context.Background(), confirmedEvent()); err != nil {
		t.Fatalf("mail failure leaked to publisher: %v", err)
	}
}

func TestNilMailerLogsOnly(t *testing.T) {
	dir := testDirectory()
	bus := events.NewInMemoryBus(logger.New("test"))
	New(dir, nil, logger.New("test")).BindBus(bus)

	if err := bus.PublishSync(context.Background(), confirmedEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
