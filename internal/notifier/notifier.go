package notifier

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ibeckermayer/prayerkit/internal/config"
	"github.com/ibeckermayer/prayerkit/internal/kit"
	"github.com/ibeckermayer/prayerkit/internal/logger"
	"github.com/ibeckermayer/prayerkit/internal/notifier/providers"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// Notifier tells the operator when a kit is ready
type Notifier struct {
	sender  Sender
	builder *kit.Builder
	to      string
	log     *zap.SugaredLogger
}

// Sender defines the interface for email sending
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody, plainBody string) error
}

// New creates a new notifier with the given sender
func New(sender Sender, builder *kit.Builder, to string) *Notifier {
	return &Notifier{
		sender:  sender,
		builder: builder,
		to:      to,
		log:     logger.Named("notifier"),
	}
}

// NewFromConfig creates a notifier based on configuration. It returns
// nil, nil when no provider is configured.
func NewFromConfig(cfg config.EmailConfig, builder *kit.Builder) (*Notifier, error) {
	var sender Sender

	switch cfg.Provider {
	case "":
		return nil, nil
	case "smtp":
		if cfg.SMTPHost == "" || cfg.ToAddr == "" {
			return nil, errors.New("smtp provider needs smtp_host and to_address")
		}
		sender = providers.NewSMTPSender(
			cfg.SMTPHost,
			cfg.SMTPPort,
			cfg.SMTPUser,
			cfg.SMTPPass,
			cfg.FromAddr,
		)
	default:
		return nil, errors.Newf("unknown email provider: %s", cfg.Provider)
	}

	return New(sender, builder, cfg.ToAddr), nil
}

// KitReady sends the notification for a freshly generated item.
func (n *Notifier) KitReady(ctx context.Context, item types.HistoryItem) error {
	msg, err := n.builder.Email(item)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, n.to, msg.Subject, msg.HTMLBody, msg.PlainBody); err != nil {
		return errors.Wrapf(err, "notify %s", item.ID)
	}
	n.log.Infow("Kit ready notification sent", logger.FieldItemID, item.ID, "to", n.to)
	return nil
}
