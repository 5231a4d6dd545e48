// Package mailer transmits one digest email per subscriber over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/0x0BSoD/dailyDigest/internal/model"
)

const senderName = "Daily AI Digest"

type SMTPMailer struct {
	host     string
	port     string
	from     string
	password string
}

func New(host, port, from, password string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, from: from, password: password}
}

// SendDigest renders and transmits the article list to a single address.
// Transport failures come back as ordinary errors so the caller can record
// the outcome and move on to the next recipient. The context deadline is
// applied to the whole SMTP conversation.
func (m *SMTPMailer) SendDigest(ctx context.Context, email string, articles []model.Article) error {
	client, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	auth := smtp.PlainAuth("", m.from, m.password, m.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(email); err != nil {
		return fmt.Errorf("smtp rcpt to %s: %w", email, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(buildMessage(m.from, email, articles))); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}

// dial connects using implicit TLS on port 465 and STARTTLS otherwise,
// falling back to the other method if the first refuses the connection.
func (m *SMTPMailer) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(m.host, m.port)

	var client *smtp.Client
	var err error
	if m.port == "465" {
		client, err = m.dialTLS(ctx, addr)
		if err != nil {
			client, err = m.dialSTARTTLS(ctx, net.JoinHostPort(m.host, "587"))
		}
	} else {
		client, err = m.dialSTARTTLS(ctx, addr)
		if err != nil {
			client, err = m.dialTLS(ctx, net.JoinHostPort(m.host, "465"))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("smtp connect: %w", err)
	}
	return client, nil
}

func (m *SMTPMailer) dialTLS(ctx context.Context, addr string) (*smtp.Client, error) {
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tls dial %s: %w", addr, err)
	}
	return m.newClient(ctx, conn)
}

func (m *SMTPMailer) dialSTARTTLS(ctx context.Context, addr string) (*smtp.Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	client, err := m.newClient(ctx, conn)
	if err != nil {
		return nil, err
	}
	if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
		client.Close()
		return nil, fmt.Errorf("starttls: %w", err)
	}
	return client, nil
}

func (m *SMTPMailer) newClient(ctx context.Context, conn net.Conn) (*smtp.Client, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return client, nil
}

func encodeRFC2047(s string) string {
	return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
}

func buildMessage(from, to string, articles []model.Article) string {
	subject := fmt.Sprintf("Daily AI News Digest - %s", time.Now().Format("Monday, January 2, 2006"))

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s <%s>\r\n", encodeRFC2047(senderName), from))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", encodeRFC2047(subject)))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	sb.WriteString("Content-Transfer-Encoding: base64\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(base64.StdEncoding.EncodeToString([]byte(buildHTML(to, articles))))

	return sb.String()
}

func buildHTML(to string, articles []model.Article) string {
	var sb strings.Builder
	sb.WriteString("<h2>Your daily AI news</h2>\n<ul>\n")
	for _, article := range articles {
		sb.WriteString(fmt.Sprintf(
			"<li><a href=%q>%s</a><br>%s</li>\n",
			article.URL,
			html.EscapeString(article.Title),
			html.EscapeString(article.Description),
		))
	}
	sb.WriteString("</ul>\n")
	sb.WriteString(fmt.Sprintf(
		"<p><small>You are receiving this because %s is subscribed to the daily digest.</small></p>\n",
		html.EscapeString(to),
	))
	return sb.String()
}
