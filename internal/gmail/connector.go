// Package gmail implements mailbox.Mailbox on top of the Gmail REST API.
package gmail

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/znz-systems/sortbox/internal/mailbox"
	"github.com/znz-systems/sortbox/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	defaultCallTimeout = 30 * time.Second
	// Refreshed credentials are recorded as valid for this long.
	credentialLookahead = time.Hour
)

// CredentialStore persists refreshed access tokens.
type CredentialStore interface {
	UpdateAccountCredentials(ctx context.Context, id uuid.UUID, accessToken string, expiresAt time.Time) error
}

// Pacer throttles calls per account.
type Pacer interface {
	Wait(ctx context.Context, key string) error
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	CallTimeout  time.Duration

	// Endpoint and TokenURL override Google's endpoints; used by tests.
	Endpoint string
	TokenURL string
}

type Connector struct {
	oauth       *oauth2.Config
	accounts    CredentialStore
	pacer       Pacer
	breaker     *gobreaker.CircuitBreaker
	callTimeout time.Duration
	endpoint    string
	now         func() time.Time
}

func NewConnector(cfg Config, accounts CredentialStore, pacer Pacer) *Connector {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmailapi.GmailModifyScope,
			"openid",
			"email",
			"profile",
		},
		Endpoint: google.Endpoint,
	}
	if cfg.TokenURL != "" {
		oauthCfg.Endpoint.TokenURL = cfg.TokenURL
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	return &Connector{
		oauth:       oauthCfg,
		accounts:    accounts,
		pacer:       pacer,
		breaker:     newBreaker(),
		callTimeout: timeout,
		endpoint:    cfg.Endpoint,
		now:         time.Now,
	}
}

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		// Client errors say nothing about the health of the API.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Open binds a client to account. No network call is made until the first
// mailbox operation.
func (c *Connector) Open(_ context.Context, account *models.Account) (mailbox.Mailbox, error) {
	if account == nil {
		return nil, errors.New("account is required")
	}
	return &Client{conn: c, account: *account}, nil
}

func (c *Connector) newService(ctx context.Context, accessToken string) (*gmailapi.Service, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: accessToken,
			TokenType:   "Bearer",
		})),
	}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	return gmailapi.NewService(context.WithoutCancel(ctx), opts...)
}
