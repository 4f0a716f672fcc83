package notification

import (
	"context"
	"fmt"
	"time"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/internal/events"
	"imovelhub_backend/internal/scheduling"
	"imovelhub_backend/platform/logger"

	"github.com/google/uuid"
)

// Directory resolves the people and listing behind a confirmed visit.
type Directory interface {
	GetBrokerContact(ctx context.Context, brokerID uuid.UUID) (name, email string, err error)
	GetLead(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	GetProperty(ctx context.Context, id uuid.UUID) (*domain.Property, error)
}

// Mailer sends one notification mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Notifier mails the broker when a lead confirms a visit. Delivery is best
// effort; a mail failure never touches the conversation turn.
type Notifier struct {
	directory Directory
	mailer    Mailer
	log       *logger.Logger
}

// New creates the notifier. A nil mailer makes it log-only.
func New(directory Directory, mailer Mailer, log *logger.Logger) *Notifier {
	return &Notifier{directory: directory, mailer: mailer, log: log}
}

// BindBus subscribes the notifier to visit confirmations.
func (n *Notifier) BindBus(bus events.Bus) {
	bus.Subscribe(events.VisitConfirmed{}.EventName(), events.HandlerFunc(n.handleVisitConfirmed))
}

func (n *Notifier) handleVisitConfirmed(ctx context.Context, ev events.Event) error {
	confirmed, ok := ev.(events.VisitConfirmed)
	if !ok {
		return nil
	}

	if err := n.notifyBroker(ctx, confirmed); err != nil {
		n.log.Error("broker notification failed",
			"visit_id", confirmed.VisitID,
			"broker_id", confirmed.BrokerID,
			"error", err,
		)
	}
	return nil
}

func (n *Notifier) notifyBroker(ctx context.Context, ev events.VisitConfirmed) error {
	brokerName, brokerEmail, err := n.directory.GetBrokerContact(ctx, ev.BrokerID)
	if err != nil {
		return err
	}

	lead, err := n.directory.GetLead(ctx, ev.LeadID)
	if err != nil {
		return err
	}
	property, err := n.directory.GetProperty(ctx, ev.PropertyID)
	if err != nil {
		return err
	}
	if property == nil {
		return fmt.Errorf("property %s not found", ev.PropertyID)
	}

	if n.mailer == nil {
		n.log.Info("visit confirmed, mail disabled",
			"visit_id", ev.VisitID,
			"broker", brokerEmail,
			"lead", lead.Phone,
		)
		return nil
	}

	subject := fmt.Sprintf("Visita confirmada: %s em %s", property.Code, formatVisitTime(ev.ScheduledAt))
	body := visitMailBody(brokerName, lead, property, ev.ScheduledAt)
	if err := n.mailer.Send(ctx, brokerEmail, subject, body); err != nil {
		return err
	}

	n.log.Info("broker notified of confirmed visit", "visit_id", ev.VisitID, "broker", brokerEmail)
	return nil
}

func visitMailBody(brokerName string, lead *domain.Lead, property *domain.Property, at time.Time) string {
	return fmt.Sprintf(
		"Olá %s,\n\n"+
			"O lead %s (%s) confirmou uma visita.\n\n"+
			"Imóvel: %s (%s)\n"+
			"Endereço: %s, %s, %s\n"+
			"Data: %s\n\n"+
			"Entre em contato para combinar os detalhes.",
		brokerName,
		lead.Name, lead.Phone,
		property.Title, property.Code,
		property.Street, property.Neighborhood, property.City,
		formatVisitTime(at),
	)
}

func formatVisitTime(at time.Time) string {
	return at.In(scheduling.Location).Format("02/01/2006 às 15h04")
}
