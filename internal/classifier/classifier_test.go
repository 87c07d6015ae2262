package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teemow/inboxdigest/internal/mailbox"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		body    string
		want    mailbox.Category
	}{
		{name: "invoice", subject: "Your invoice #123", body: "payment due", want: mailbox.CategoryPaid},
		{name: "percent off", subject: "50% off today only!", body: "", want: mailbox.CategoryPromotional},
		{name: "no keywords", subject: "hello", body: "", want: mailbox.CategoryUnknown},
		{name: "empty", subject: "", body: "", want: mailbox.CategoryUnknown},
		{name: "whitespace", subject: "  ", body: "\n", want: mailbox.CategoryUnknown},
		{name: "newsletter", subject: "Weekly Newsletter", body: "", want: mailbox.CategoryFree},
		{name: "keyword in body", subject: "Update", body: "Your RECEIPT is attached", want: mailbox.CategoryPaid},
		{name: "paid beats free", subject: "Free trial ended", body: "you were charged", want: mailbox.CategoryPaid},
		{name: "free beats promotional", subject: "Welcome! Here is a discount", body: "", want: mailbox.CategoryFree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.subject, tt.body))
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Equal(t, mailbox.CategoryPaid, Classify("Your invoice #123", "payment due"))
	}
}

func TestCustomPolicy(t *testing.T) {
	c := New(Policy{
		Paid:        []string{"Statement"},
		Free:        []string{"digest"},
		Promotional: []string{"coupon"},
	})

	assert.Equal(t, mailbox.CategoryPaid, c.Classify("Monthly statement", ""))
	assert.Equal(t, mailbox.CategoryPromotional, c.Classify("Your coupon", ""))
	assert.Equal(t, mailbox.CategoryUnknown, c.Classify("Your invoice", ""))
}

func TestNilClassifierUsesDefault(t *testing.T) {
	var c *Classifier
	assert.Equal(t, mailbox.CategoryPaid, c.Classify("invoice", ""))
}

func TestClassifyMessageFallsBackToSnippet(t *testing.T) {
	m := mailbox.RawMessage{Subject: "Hi", Snippet: "limited time only"}
	assert.Equal(t, mailbox.CategoryPromotional, Default().ClassifyMessage(m))
}

func TestIsSubscription(t *testing.T) {
	assert.True(t, IsSubscription(mailbox.RawMessage{ListUnsubscribe: "<mailto:u@example.com>"}))
	assert.False(t, IsSubscription(mailbox.RawMessage{}))
	assert.False(t, IsSubscription(mailbox.RawMessage{ListUnsubscribe: "   "}))
}
