package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/runcall/platform/pkg/logging"
)

var stripeTracer = otel.Tracer("runcall.internal.payments.stripe")

// CheckoutParams describes the session to create for one booking hold.
type CheckoutParams struct {
	BookingID     uuid.UUID
	Description   string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	// DestinationAccount routes funds to the expert's connected Stripe
	// account when set.
	DestinationAccount string
	SuccessURL         string
	CancelURL          string
	// ExpiresAt caps the session lifetime so Stripe stops accepting
	// payment once the hold has lapsed.
	ExpiresAt time.Time
}

// CheckoutSession is the subset of the created session callers need.
type CheckoutSession struct {
	ID  string
	URL string
}

// StripeCheckoutService creates Stripe Checkout Sessions for booking
// payments. Funds can go to the expert's connected account via Connect.
type StripeCheckoutService struct {
	secretKey  string
	successURL string
	cancelURL  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

// NewStripeCheckoutService creates a new Stripe checkout service.
func NewStripeCheckoutService(secretKey, successURL, cancelURL string, logger *logging.Logger) *StripeCheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	dryRun := strings.EqualFold(os.Getenv("STRIPE_DRY_RUN"), "true") || os.Getenv("STRIPE_DRY_RUN") == "1"
	return &StripeCheckoutService{
		secretKey:  secretKey,
		successURL: successURL,
		cancelURL:  cancelURL,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		dryRun:     dryRun,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *StripeCheckoutService) WithBaseURL(baseURL string) *StripeCheckoutService {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// WithDryRun enables dry-run mode (returns fake URLs without calling Stripe).
func (s *StripeCheckoutService) WithDryRun(enabled bool) *StripeCheckoutService {
	s.dryRun = enabled
	return s
}

// CreateSession creates a Checkout Session for the given booking.
func (s *StripeCheckoutService) CreateSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("runcall.booking_id", params.BookingID.String()),
		attribute.Int("runcall.amount_cents", int(params.AmountCents)),
	)

	if s.dryRun {
		fakeID := "cs_dryrun_" + uuid.New().String()[:8]
		s.logger.Info("stripe dry run: skipping checkout session creation",
			"booking_id", params.BookingID, "amount_cents", params.AmountCents)
		return &CheckoutSession{
			ID:  fakeID,
			URL: fmt.Sprintf("https://checkout.stripe.com/dry-run/%s", fakeID),
		}, nil
	}

	successURL := params.SuccessURL
	if successURL == "" {
		successURL = s.successURL
	}
	cancelURL := params.CancelURL
	if cancelURL == "" {
		cancelURL = s.cancelURL
	}

	description := strings.TrimSpace(params.Description)
	if description == "" {
		description = "30-minute session"
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", params.AmountCents))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("line_items[0][quantity]", "1")

	if successURL != "" {
		form.Set("success_url", successURL)
	}
	if cancelURL != "" {
		form.Set("cancel_url", cancelURL)
	}
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}
	if !params.ExpiresAt.IsZero() {
		// Stripe enforces a 30 minute floor on session expiry.
		expires := params.ExpiresAt
		if min := time.Now().Add(30*time.Minute + time.Minute); expires.Before(min) {
			expires = min
		}
		form.Set("expires_at", fmt.Sprintf("%d", expires.Unix()))
	}

	// Metadata for webhook processing
	form.Set("metadata[booking_id]", params.BookingID.String())
	form.Set("payment_intent_data[metadata][booking_id]", params.BookingID.String())

	// Transfer to connected account (Stripe Connect)
	if params.DestinationAccount != "" {
		form.Set("payment_intent_data[transfer_data][destination]", params.DestinationAccount)
	}

	apiURL := s.baseURL + "/v1/checkout/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Stripe-Version", s.apiVersion)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, string(body))
	}

	var parsed stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("payments: stripe decode: %w", err)
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("payments: stripe response missing checkout url")
	}

	return &CheckoutSession{
		ID:  parsed.ID,
		URL: parsed.URL,
	}, nil
}

// stripeCheckoutSession is the subset of Stripe's Checkout Session we need.
type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
