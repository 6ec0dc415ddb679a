package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"festpass/internal/model"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// PortalURL is linked from the email so attendees can open their pass.
	PortalURL string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Mailer struct {
	cfg  Config
	log  *zerolog.Logger
	send sendFunc
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Mailer{cfg: cfg, log: log, send: smtp.SendMail}
}

// Enabled reports whether an SMTP host is configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Host != ""
}

// SendConfirmation emails the attendee their ticket id and registered events.
func (m *Mailer) SendConfirmation(ctx context.Context, reg *model.Registration, events []model.Event) error {
	if !m.Enabled() {
		m.log.Debug().Str("ticket_id", reg.TicketID).Msg("mail disabled, confirmation skipped")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := m.compose(reg, events)
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := m.send(addr, auth, m.cfg.From, []string{reg.Email}, msg); err != nil {
		m.log.Warn().Err(err).Str("ticket_id", reg.TicketID).Msg("failed to send confirmation email")
		return fmt.Errorf("send email: %w", err)
	}
	m.log.Info().Str("ticket_id", reg.TicketID).Msg("confirmation email sent")
	return nil
}

func (m *Mailer) compose(reg *model.Registration, events []model.Event) []byte {
	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\r\n\r\n", reg.Name)
	body.WriteString("Your payment has been received and your registration is confirmed.\r\n\r\n")
	fmt.Fprintf(&body, "Ticket ID: %s\r\n", reg.TicketID)
	fmt.Fprintf(&body, "Amount paid: Rs. %d.%02d\r\n\r\n", reg.TotalAmount/100, reg.TotalAmount%100)
	body.WriteString("Events:\r\n")
	for _, e := range events {
		line := "  - " + e.Name
		if e.EventDate != nil {
			line += " (" + e.EventDate.Format("02 Jan 2006, 15:04") + ")"
		}
		if e.Venue != "" {
			line += " at " + e.Venue
		}
		body.WriteString(line + "\r\n")
	}
	if m.cfg.PortalURL != "" {
		fmt.Fprintf(&body, "\r\nYour entry pass: %s/registration/%s\r\n",
			strings.TrimRight(m.cfg.PortalURL, "/"), reg.TicketID)
	}
	body.WriteString("\r\nShow the QR code at the venue entrance.\r\n")

	headers := []string{
		"From: " + m.cfg.From,
		"To: " + reg.Email,
		"Subject: Registration confirmed - " + reg.TicketID,
		"Date: " + time.Now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body.String())
}
