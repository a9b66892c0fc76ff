package email

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	subject, body, err := Render(&Message{Kind: KindVerification, Name: "Alice", Params: map[string]string{"code": "A1B2C3"}})
	require.NoError(t, err)
	assert.Contains(t, subject, "邮箱验证")
	assert.Contains(t, body, "A1B2C3")
	assert.Contains(t, body, "Alice")

	_, body, err = Render(&Message{Kind: KindPaymentFailed, Name: "<b>x</b>", Params: map[string]string{"plan": "Pro"}})
	require.NoError(t, err)
	assert.Contains(t, body, "&lt;b&gt;x&lt;/b&gt;")
	assert.Contains(t, body, "Pro")

	subject, body, err = Render(&Message{Kind: KindPasswordReset, Params: map[string]string{"link": "https://app.example.com/reset-password?token=abc"}})
	require.NoError(t, err)
	assert.Equal(t, "重置密码 - Toolbox", subject)
	assert.Contains(t, body, `href="https://app.example.com/reset-password?token=abc"`)
	assert.Contains(t, body, "24 小时")

	_, _, err = Render(&Message{Kind: "newsletter"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestService_Send(t *testing.T) {
	var sent *mail.SGMailV3
	svc := &Service{
		from: mail.NewEmail("Toolbox", "noreply@example.com"),
		send: func(ctx context.Context, m *mail.SGMailV3) (int, error) {
			sent = m
			return 202, nil
		},
	}

	err := svc.Send(context.Background(), &Message{
		Kind:   KindSubscriptionCanceled,
		To:     "bob@example.com",
		Name:   "Bob",
		Params: map[string]string{"plan": "Pro", "end_date": "2026-05-01"},
	})
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, "订阅已取消 - Toolbox", sent.Subject)
	assert.Equal(t, "bob@example.com", sent.Personalizations[0].To[0].Address)
}

func TestService_SendErrors(t *testing.T) {
	svc := &Service{
		from: mail.NewEmail("Toolbox", "noreply@example.com"),
		send: func(ctx context.Context, m *mail.SGMailV3) (int, error) {
			return 0, errors.New("network down")
		},
	}
	err := svc.Send(context.Background(), &Message{Kind: KindWelcome, To: "a@example.com"})
	assert.ErrorContains(t, err, "network down")

	svc.send = func(ctx context.Context, m *mail.SGMailV3) (int, error) {
		return 401, nil
	}
	err = svc.Send(context.Background(), &Message{Kind: KindWelcome, To: "a@example.com"})
	assert.ErrorContains(t, err, "401")
}
