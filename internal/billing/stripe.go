// Package billing wraps the Stripe API as an opaque redirect-URL generator.
// One client is constructed at startup and reused for the process lifetime.
package billing

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// ErrNoCustomer means no billing account exists for the given email yet.
var ErrNoCustomer = errors.New("no billing customer for email")

type Config struct {
	SecretKey  string
	PriceID    string
	SuccessURL string
	CancelURL  string
	ReturnURL  string
}

type Client struct {
	api *client.API
	cfg Config
}

func New(cfg Config) *Client {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &Client{api: api, cfg: cfg}
}

// CreateCheckoutSession starts a subscription checkout for the given email
// and returns the checkout session id.
func (c *Client) CreateCheckoutSession(ctx context.Context, email string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail: stripe.String(email),
		SuccessURL:    stripe.String(c.cfg.SuccessURL),
		CancelURL:     stripe.String(c.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.cfg.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.ID, nil
}

// CreateBillingPortalSession returns the portal URL for the customer that
// matches the given email.
func (c *Client) CreateBillingPortalSession(ctx context.Context, email string) (string, error) {
	listParams := &stripe.CustomerListParams{}
	listParams.Context = ctx
	listParams.Email = stripe.String(email)
	listParams.Limit = stripe.Int64(1)

	iter := c.api.Customers.List(listParams)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return "", fmt.Errorf("list customers: %w", err)
		}
		return "", ErrNoCustomer
	}
	customer := iter.Customer()

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customer.ID),
		ReturnURL: stripe.String(c.cfg.ReturnURL),
	}
	params.Context = ctx

	sess, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}
