package billing

import (
	"encoding/json"
	"fmt"

	"github.com/terraincognita07/whiteboar/internal/services"
)

type paymentIntentPayload struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

type invoicePayload struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	Subscription  string            `json:"subscription"`
	PaymentIntent string            `json:"payment_intent"`
	Status        string            `json:"status"`
	Currency      string            `json:"currency"`
	AmountPaid    int64             `json:"amount_paid"`
	Metadata      map[string]string `json:"metadata"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Payments *struct {
		Data []struct {
			Payment struct {
				PaymentIntent string `json:"payment_intent"`
			} `json:"payment"`
		} `json:"data"`
	} `json:"payments"`
}

type subscriptionPayload struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Schedule string            `json:"schedule"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

type schedulePayload struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
}

type chargePayload struct {
	ID             string `json:"id"`
	Customer       string `json:"customer"`
	PaymentIntent  string `json:"payment_intent"`
	Currency       string `json:"currency"`
	AmountRefunded int64  `json:"amount_refunded"`
}

// decodeEvent maps a verified event's data.object onto the service-level event shape.
// Unknown event types decode to an event with only ID and Type set.
func decodeEvent(eventID string, eventType string, raw []byte) (services.BillingEvent, error) {
	event := services.BillingEvent{ID: eventID, Type: eventType}
	if len(raw) == 0 {
		return event, nil
	}

	switch eventType {
	case services.EventPaymentIntentSucceeded, services.EventPaymentIntentFailed:
		var payload paymentIntentPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return services.BillingEvent{}, fmt.Errorf("decode payment intent: %w", err)
		}
		event.PaymentIntent = &services.PaymentIntent{
			ID:           payload.ID,
			Status:       payload.Status,
			ClientSecret: payload.ClientSecret,
			Amount:       payload.Amount,
			Currency:     payload.Currency,
			Metadata:     payload.Metadata,
		}
	case services.EventInvoicePaid, services.EventInvoicePaymentSuccess:
		var payload invoicePayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return services.BillingEvent{}, fmt.Errorf("decode invoice: %w", err)
		}
		event.Invoice = invoiceEventFromPayload(payload)
	case services.EventSubscriptionCreated, services.EventSubscriptionUpdated, services.EventSubscriptionDeleted:
		var payload subscriptionPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return services.BillingEvent{}, fmt.Errorf("decode subscription: %w", err)
		}
		event.Subscription = &services.SubscriptionEvent{
			ID:         payload.ID,
			CustomerID: payload.Customer,
			ScheduleID: payload.Schedule,
			Status:     payload.Status,
			Metadata:   payload.Metadata,
		}
	case services.EventScheduleCompleted, services.EventScheduleCanceled, services.EventScheduleReleased:
		var payload schedulePayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return services.BillingEvent{}, fmt.Errorf("decode subscription schedule: %w", err)
		}
		event.Schedule = &services.ScheduleEvent{
			ID:             payload.ID,
			CustomerID:     payload.Customer,
			SubscriptionID: payload.Subscription,
			Status:         payload.Status,
			Metadata:       payload.Metadata,
		}
	case services.EventChargeRefunded:
		var payload chargePayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return services.BillingEvent{}, fmt.Errorf("decode charge: %w", err)
		}
		event.Charge = &services.ChargeEvent{
			ID:              payload.ID,
			CustomerID:      payload.Customer,
			PaymentIntentID: payload.PaymentIntent,
			Currency:        payload.Currency,
			AmountRefunded:  payload.AmountRefunded,
		}
	}
	return event, nil
}

func invoiceEventFromPayload(payload invoicePayload) *services.InvoiceEvent {
	invoice := &services.InvoiceEvent{
		ID:              payload.ID,
		CustomerID:      payload.Customer,
		SubscriptionID:  payload.Subscription,
		PaymentIntentID: payload.PaymentIntent,
		Status:          payload.Status,
		Currency:        payload.Currency,
		AmountPaid:      payload.AmountPaid,
		Metadata:        map[string]string{},
	}
	for key, value := range payload.Metadata {
		invoice.Metadata[key] = value
	}

	if payload.Parent != nil && payload.Parent.SubscriptionDetails != nil {
		details := payload.Parent.SubscriptionDetails
		if invoice.SubscriptionID == "" {
			invoice.SubscriptionID = details.Subscription
		}
		for key, value := range details.Metadata {
			if _, exists := invoice.Metadata[key]; !exists {
				invoice.Metadata[key] = value
			}
		}
	}
	if invoice.PaymentIntentID == "" && payload.Payments != nil {
		for _, entry := range payload.Payments.Data {
			if entry.Payment.PaymentIntent != "" {
				invoice.PaymentIntentID = entry.Payment.PaymentIntent
				break
			}
		}
	}
	return invoice
}
