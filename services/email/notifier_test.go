package emailsvc_test

import (
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/services/email"
	"github.com/trezcool/invigil/tests"
)

func TestNotifier_NotifyPendingOffers(t *testing.T) {
	conf := testutil.NewConfig()
	mailer := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf))
	notifier := emailsvc.NewNotifier(mailer, testutil.NewLogger(conf))

	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	digests := []schedule.OfferDigest{
		{
			InvigilatorID: "u1",
			Name:          "Aina",
			Email:         "aina@example.com",
			Offers: []schedule.Offer{{
				AssignmentID: "a1",
				CourseCode:   "TCP1101",
				VenueID:      "CNMX1001",
				StartAt:      start,
				EndAt:        start.Add(2 * time.Hour),
				TimeExpire:   start.Add(-24 * time.Hour),
			}},
		},
		{InvigilatorID: "u2", Name: "No Mail", Offers: []schedule.Offer{{AssignmentID: "a2"}}},
		{InvigilatorID: "u3", Name: "Nothing", Email: "nothing@example.com"},
	}

	assert.Equal(t, 1, notifier.NotifyPendingOffers(digests))

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "aina@example.com", msg.To[0].Address)
	assert.True(t, strings.HasPrefix(msg.TextContent, "Hello Aina,"))
	assert.Contains(t, msg.TextContent, "TCP1101 at CNMX1001, Mon 03 Jun 2024 09:00 - 11:00")
	assert.Contains(t, msg.TextContent, "respond before 02 Jun 09:00")
	assert.Contains(t, msg.TextContent, "\nInvigil\n")
}

func TestConsoleService_SkipsEmptyMessages(t *testing.T) {
	conf := testutil.NewConfig()
	mailer := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf))

	mailer.SendMessages(
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hi"},
		&core.EmailMessage{To: []mail.Address{{Address: "a@example.com"}}, Subject: "empty"},
		&core.EmailMessage{To: []mail.Address{{Address: "a@example.com"}}, Subject: "plain", BodyStr: "hi"},
		&core.EmailMessage{To: []mail.Address{{Address: "a@example.com"}}, Subject: "bad", TemplateName: "missing"},
	)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "plain", sent[0].Subject)
	assert.Equal(t, "hi", sent[0].TextContent)
}
