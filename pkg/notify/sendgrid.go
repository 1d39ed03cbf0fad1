package notify

import (
	"net/http"
	"net/mail"
	"sync"

	"github.com/mcclellann/fredSavings/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type SendgridMailer struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

var _ Mailer = (*SendgridMailer)(nil)

func NewSendgridMailer(apiKey string, from mail.Address, appName string, logger zerolog.Logger) *SendgridMailer {
	return &SendgridMailer{
		key:        apiKey,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + appName + "] ",
		logger:     logger,
	}
}

func (svc *SendgridMailer) SendMessages(messages ...*Message) {
	for _, msg := range messages {
		if !msg.HasRecipients() || !msg.HasContent() {
			continue
		}
		msg := *msg
		svc.wg.Add(1)
		go func() {
			defer svc.wg.Done()
			svc.send(msg)
		}()
	}
}

// Wait blocks until in-flight sends finish. Used on shutdown.
func (svc *SendgridMailer) Wait() {
	svc.wg.Wait()
}

func (svc *SendgridMailer) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	if msg.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

func (svc *SendgridMailer) send(msg Message) {
	req := sendgrid.GetRequest(svc.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		metrics.EmailsSent.WithLabelValues("sendgrid", "error").Inc()
		svc.logger.Error().Err(err).Str("subject", msg.Subject).Msg("sending email")
		return
	}
	if res.StatusCode >= http.StatusBadRequest {
		metrics.EmailsSent.WithLabelValues("sendgrid", "rejected").Inc()
		svc.logger.Error().Int("status", res.StatusCode).Str("body", res.Body).Str("subject", msg.Subject).Msg("sending email")
		return
	}
	metrics.EmailsSent.WithLabelValues("sendgrid", "sent").Inc()
}
