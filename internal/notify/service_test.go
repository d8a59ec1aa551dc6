package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/runcall/platform/pkg/logging"
)

type captureSender struct {
	sent    []EmailMessage
	failFor string
}

func (c *captureSender) Send(_ context.Context, msg EmailMessage) error {
	if c.failFor != "" && msg.To == c.failFor {
		return errors.New("smtp down")
	}
	c.sent = append(c.sent, msg)
	return nil
}

func testConfirmation() BookingConfirmation {
	return BookingConfirmation{
		BookingID:      "b-1",
		ExpertName:     "Dana Reyes",
		ExpertEmail:    "dana@example.com",
		ExpertTimezone: "America/New_York",
		ClientName:     "Sam Okafor",
		ClientEmail:    "sam@example.com",
		ClientTimezone: "Europe/Berlin",
		SlotStart:      time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		SlotEnd:        time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC),
		MeetLink:       "https://meet.google.com/abc-defg-hij",
		AmountCents:    4900,
		Currency:       "usd",
	}
}

func TestSendBookingConfirmed_BothParties(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, logging.Default())

	err := svc.SendBookingConfirmed(context.Background(), testConfirmation())
	require.NoError(t, err)
	require.Len(t, sender.sent, 2)

	client := sender.sent[0]
	assert.Equal(t, "sam@example.com", client.To)
	assert.Contains(t, client.Subject, "Dana Reyes")
	// 15:00 UTC is 16:00 in Berlin in March (CET).
	assert.Contains(t, client.Body, "4:00 PM")
	assert.Contains(t, client.Body, "https://meet.google.com/abc-defg-hij")
	assert.Contains(t, client.Body, "49.00 usd")

	expert := sender.sent[1]
	assert.Equal(t, "dana@example.com", expert.To)
	assert.Contains(t, expert.Subject, "Sam Okafor")
	// 15:00 UTC is 11:00 in New York during EDT.
	assert.Contains(t, expert.Body, "11:00 AM")
	assert.Contains(t, expert.Body, "sam@example.com")
}

func TestSendBookingConfirmed_UnknownZoneFallsBackToUTC(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, logging.Default())

	c := testConfirmation()
	c.ClientTimezone = "Nowhere/Nonexistent"

	err := svc.SendBookingConfirmed(context.Background(), c)
	require.NoError(t, err)
	assert.Contains(t, sender.sent[0].Body, "3:00 PM")
}

func TestSendBookingConfirmed_PartialFailureStillSendsOther(t *testing.T) {
	sender := &captureSender{failFor: "sam@example.com"}
	svc := NewService(sender, logging.Default())

	err := svc.SendBookingConfirmed(context.Background(), testConfirmation())
	require.Error(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "dana@example.com", sender.sent[0].To)
}

func TestSendBookingConfirmed_NoSenderIsNoop(t *testing.T) {
	svc := NewService(nil, logging.Default())
	assert.NoError(t, svc.SendBookingConfirmed(context.Background(), testConfirmation()))
}
