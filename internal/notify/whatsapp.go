package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/pathakanu/mealremind/internal/reminder"
	"github.com/pathakanu/mealremind/internal/repository"
	"github.com/rs/zerolog"
	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"
)

// messageCreator is the part of the Twilio API the notifier uses.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// WhatsApp delivers reminders as WhatsApp messages through Twilio.
type WhatsApp struct {
	api          messageCreator
	fromWhatsApp string
	contacts     repository.ContactRepository
	limiter      *rate.Limiter
	log          zerolog.Logger
}

// NewWhatsApp creates a notifier bound to the configured WhatsApp sender number.
// ratePerSec caps outbound messages; values below one allow one per second.
func NewWhatsApp(accountSID, authToken, fromWhatsApp string, contacts repository.ContactRepository, ratePerSec int, log zerolog.Logger) *WhatsApp {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
	return newWhatsApp(client.Api, fromWhatsApp, contacts, ratePerSec, log)
}

func newWhatsApp(api messageCreator, fromWhatsApp string, contacts repository.ContactRepository, ratePerSec int, log zerolog.Logger) *WhatsApp {
	if ratePerSec < 1 {
		ratePerSec = 1
	}
	return &WhatsApp{
		api:          api,
		fromWhatsApp: fromWhatsApp,
		contacts:     contacts,
		limiter:      rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:          log,
	}
}

// Notify sends the reminder message to the owner's registered number.
func (w *WhatsApp) Notify(ctx context.Context, fire reminder.Fire) error {
	contact, err := w.contacts.Find(ctx, fire.OwnerUserID)
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}

	sender := normalizeWhatsAppAddress(w.fromWhatsApp)
	if sender == "" {
		return fmt.Errorf("twilio sender WhatsApp number is not configured")
	}
	recipient := normalizeWhatsAppAddress(contact.WhatsAppNumber)
	if recipient == "" {
		return fmt.Errorf("recipient number missing or invalid")
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	params.SetBody(fire.Message)

	resp, err := w.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send message error: %w", err)
	}

	ev := w.log.Info().Str("reminder_id", fire.ReminderID).Str("to", recipient)
	if resp != nil && resp.Sid != nil {
		ev = ev.Str("sid", *resp.Sid)
	}
	ev.Msg("whatsapp reminder sent")
	return nil
}

func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "whatsapp:") {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "+") {
		return "whatsapp:" + trimmed
	}
	return "whatsapp:+" + trimmed
}
