package mail

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	gomail "github.com/wneessen/go-mail"
	"golang.org/x/time/rate"

	"nudge/pkg/logx"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// SendsPerMinute bounds outbound throughput. 0 means a conservative
	// default; the relay, not this engine, is the real bottleneck.
	SendsPerMinute int
}

// SMTP sends via a single relay using authenticated submission.
type SMTP struct {
	client  *gomail.Client
	from    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     logx.Logger
}

func NewSMTP(cfg Config, log logx.Logger) (*SMTP, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("mail: smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mail: from address is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	opts := []gomail.Option{
		gomail.WithTimeout(15 * time.Second),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, err
	}

	perMin := cfg.SendsPerMinute
	if perMin <= 0 {
		perMin = 30
	}

	s := &SMTP{
		client:  client,
		from:    cfg.From,
		limiter: rate.NewLimiter(rate.Limit(float64(perMin)/60.0), 5),
		log:     log,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "smtp",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			log.Warn("smtp breaker state change",
				logx.String("from", from.String()), logx.String("to", to.String()))
		},
	})
	return s, nil
}

func (s *SMTP) Send(ctx context.Context, to, subject, text, html string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	m := gomail.NewMsg()
	if err := m.From(s.from); err != nil {
		return err
	}
	if err := m.To(to); err != nil {
		return err
	}
	m.Subject(subject)
	m.SetBodyString(gomail.TypeTextPlain, text)
	if html != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, html)
	}

	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.client.DialAndSendWithContext(ctx, m)
	})
	return err
}
