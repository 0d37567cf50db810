package emailsvc

import (
	"net/mail"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
)

// Notifier turns offer digests into reminder emails.
type Notifier struct {
	email  core.EmailService
	logger core.Logger
}

func NewNotifier(email core.EmailService, logger core.Logger) *Notifier {
	return &Notifier{email: email, logger: logger}
}

// NotifyPendingOffers queues one email per digest and returns how many were queued.
// Invigilators without an email address are skipped.
func (n *Notifier) NotifyPendingOffers(digests []schedule.OfferDigest) int {
	msgs := make([]*core.EmailMessage, 0, len(digests))
	for _, dg := range digests {
		if len(dg.Offers) == 0 {
			continue
		}
		if dg.Email == "" {
			n.logger.Warn("reminder: no email address", map[string]interface{}{"invigilator_id": dg.InvigilatorID})
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: dg.Name, Address: dg.Email}},
			Subject:      "Invigilation offers awaiting your response",
			TemplateName: "pending_offers",
			TemplateData: dg,
		})
	}
	if len(msgs) > 0 {
		n.email.SendMessages(msgs...)
	}
	return len(msgs)
}
