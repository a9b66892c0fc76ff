package email

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/qs3c/toolbox_server/config"
)

var ErrUnknownKind = errors.New("unknown email kind")

type Kind string

const (
	KindVerification         Kind = "verification"
	KindWelcome              Kind = "welcome"
	KindPaymentFailed        Kind = "payment_failed"
	KindSubscriptionCanceled Kind = "subscription_canceled"
	KindPasswordReset        Kind = "password_reset"
)

// Message 待发送的通知邮件，经队列传递
type Message struct {
	Kind   Kind              `json:"kind"`
	To     string            `json:"to"`
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
	// 已失败的发送次数
	Attempts int `json:"attempts,omitempty"`
}

type sendFunc func(ctx context.Context, m *mail.SGMailV3) (int, error)

type Service struct {
	from *mail.Email
	send sendFunc
}

func NewService(cfg *config.EmailConfig) *Service {
	client := sendgrid.NewSendClient(cfg.SendgridAPIKey)
	return &Service{
		from: mail.NewEmail(cfg.FromName, cfg.From),
		send: func(ctx context.Context, m *mail.SGMailV3) (int, error) {
			resp, err := client.SendWithContext(ctx, m)
			if err != nil {
				return 0, err
			}
			return resp.StatusCode, nil
		},
	}
}

// Send 渲染并发送邮件
func (s *Service) Send(ctx context.Context, msg *Message) error {
	subject, body, err := Render(msg)
	if err != nil {
		return err
	}

	to := mail.NewEmail(msg.Name, msg.To)
	m := mail.NewSingleEmail(s.from, subject, to, subject, body)

	status, err := s.send(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if status >= 300 {
		return fmt.Errorf("sendgrid: unexpected status %d", status)
	}
	return nil
}

// Render 生成邮件标题与 HTML 正文
func Render(msg *Message) (string, string, error) {
	name := html.EscapeString(msg.Name)
	if name == "" {
		name = "您好"
	}
	param := func(key string) string {
		return html.EscapeString(msg.Params[key])
	}

	switch msg.Kind {
	case KindVerification:
		return "邮箱验证 - Toolbox", layout("邮箱验证", fmt.Sprintf(
			`<p>%s，</p><p>您的验证码为：</p><div style="font-size:24px;font-weight:bold;letter-spacing:5px;">%s</div><p>验证码 30 分钟内有效。</p>`,
			name, param("code"))), nil
	case KindWelcome:
		return "欢迎使用 Toolbox", layout("欢迎", fmt.Sprintf(
			`<p>%s，</p><p>您的账号已激活，免费套餐每月可使用每个工具 %s 次。</p>`,
			name, param("free_limit"))), nil
	case KindPaymentFailed:
		return "订阅扣款失败 - Toolbox", layout("扣款失败", fmt.Sprintf(
			`<p>%s，</p><p>您的 %s 套餐本期扣款失败，请尽快在账单页面更新支付方式，以免订阅被取消。</p>`,
			name, param("plan"))), nil
	case KindSubscriptionCanceled:
		return "订阅已取消 - Toolbox", layout("订阅已取消", fmt.Sprintf(
			`<p>%s，</p><p>您的 %s 套餐已于 %s 取消，账号已回到免费套餐。</p>`,
			name, param("plan"), param("end_date"))), nil
	case KindPasswordReset:
		return "重置密码 - Toolbox", layout("重置密码", fmt.Sprintf(
			`<p>%s，</p><p>我们收到了重置密码的请求，请点击下面的链接设置新密码：</p><p><a href="%s">重置密码</a></p><p>链接 24 小时内有效。如果不是您本人操作，请忽略此邮件。</p>`,
			name, param("link"))), nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnknownKind, msg.Kind)
	}
}

func layout(title, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">%s</h2>
        %s
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>`, title, content)
}
