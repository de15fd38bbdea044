// Package outbound delivers agent replies back to the original sender over
// SMTP, threading them into the existing conversation.
package outbound

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/gotrs-io/mailbridge/internal/config"
	"github.com/gotrs-io/mailbridge/internal/metrics"
)

// Reply is one outbound reply email. InReplyTo carries the message header
// id of the customer email being answered, which keeps the reply in the
// same thread on the recipient's side.
type Reply struct {
	To        string
	From      string
	Subject   string
	Body      string
	InReplyTo string
	ThreadID  string
}

// Sender sends replies through the configured SMTP relay.
type Sender struct {
	cfg    config.SMTPConfig
	logger *log.Logger
}

// NewSender builds a sender for the given SMTP configuration.
func NewSender(cfg config.SMTPConfig, logger *log.Logger) *Sender {
	if logger == nil {
		logger = log.New(log.Writer(), "[OUTBOUND] ", log.LstdFlags)
	}
	return &Sender{cfg: cfg, logger: logger}
}

// Send composes and delivers one reply.
func (s *Sender) Send(reply Reply) error {
	if reply.From == "" {
		reply.From = s.cfg.From
	}
	msg, err := BuildMessage(reply)
	if err != nil {
		metrics.RepliesSent.WithLabelValues("failure").Inc()
		return fmt.Errorf("compose reply: %w", err)
	}
	if err := s.deliver(reply.From, reply.To, msg); err != nil {
		metrics.RepliesSent.WithLabelValues("failure").Inc()
		return fmt.Errorf("send reply to %s: %w", reply.To, err)
	}
	metrics.RepliesSent.WithLabelValues("success").Inc()
	s.logger.Printf("reply sent to %s", reply.To)
	return nil
}

// BuildMessage renders the MIME message for a reply. The subject gets the
// conventional "Re: " prefix and the In-Reply-To/References headers tie the
// reply to the original message.
func BuildMessage(reply Reply) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: reply.From}})
	h.SetAddressList("To", []*mail.Address{{Address: reply.To}})
	h.SetSubject("Re: " + reply.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if id := strings.Trim(reply.InReplyTo, "<>"); id != "" {
		h.SetMsgIDList("In-Reply-To", []string{id})
		h.SetMsgIDList("References", []string{id})
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, reply.Body); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Sender) deliver(from, to string, msg []byte) error {
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if auth := s.smtpAuth(); auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (s *Sender) smtpAuth() smtp.Auth {
	if s.cfg.User == "" || s.cfg.Password == "" {
		return nil
	}
	switch s.cfg.AuthType {
	case "login":
		return &loginAuth{username: s.cfg.User, password: s.cfg.Password}
	default:
		return smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}
}

func (s *Sender) dial() (*smtp.Client, error) {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	tlsConfig := &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.SkipVerify,
	}

	switch s.cfg.TLSMode {
	case "smtps":
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return nil, err
		}
		client, err := smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		client, err := smtp.Dial(addr)
		if err != nil {
			return nil, err
		}
		if s.cfg.TLSMode == "starttls" {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, err
			}
		}
		return client, nil
	}
}

// loginAuth implements SMTP LOGIN authentication
type loginAuth struct {
	username, password string
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", []byte{}, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		switch string(fromServer) {
		case "Username:":
			return []byte(a.username), nil
		case "Password:":
			return []byte(a.password), nil
		default:
			return nil, fmt.Errorf("unexpected server challenge: %s", fromServer)
		}
	}
	return nil, nil
}
