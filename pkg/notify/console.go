package notify

import (
	"strings"
	"sync"

	"github.com/mcclellann/fredSavings/pkg/metrics"
	"github.com/rs/zerolog"
)

// ConsoleMailer logs messages instead of sending them and keeps a copy of each.
// It is used in development and tests.
type ConsoleMailer struct {
	subjPrefix string
	logger     zerolog.Logger

	mu   sync.Mutex
	sent []Message
}

var _ Mailer = (*ConsoleMailer)(nil)

func NewConsoleMailer(appName string, logger zerolog.Logger) *ConsoleMailer {
	return &ConsoleMailer{subjPrefix: "[" + appName + "] ", logger: logger}
}

// SendMessages delivers synchronously so tests can inspect Sent right away.
func (svc *ConsoleMailer) SendMessages(messages ...*Message) {
	for _, msg := range messages {
		if !msg.HasRecipients() || !msg.HasContent() {
			continue
		}
		to := make([]string, 0, len(msg.To))
		for _, addr := range msg.To {
			to = append(to, addr.String())
		}
		svc.logger.Info().
			Str("to", strings.Join(to, ", ")).
			Str("subject", svc.subjPrefix+msg.Subject).
			Msg(msg.Text)
		metrics.EmailsSent.WithLabelValues("console", "sent").Inc()

		svc.mu.Lock()
		svc.sent = append(svc.sent, *msg)
		svc.mu.Unlock()
	}
}

func (svc *ConsoleMailer) Sent() []Message {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]Message, len(svc.sent))
	copy(out, svc.sent)
	return out
}
