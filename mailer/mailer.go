package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"github.com/MrEthical07/magiccode"
	"gopkg.in/gomail.v2"
)

// Dialer sends composed messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config controls message composition.
type Config struct {
	From string
	// AddressField names the record field holding the recipient address.
	AddressField string
	Subject      string
	// Body is a text/template executed with TemplateData.
	Body string
}

// TemplateData is passed to the subject and body templates.
type TemplateData struct {
	Code    string
	Record  magiccode.Record
	Options magiccode.Options
}

const defaultBody = "Your sign-in code is {{.Code}}.\n\nIf you did not request it, ignore this message.\n"

// Mailer composes and sends one message per issued code.
type Mailer struct {
	dialer       Dialer
	from         string
	addressField string
	subject      *template.Template
	body         *template.Template
}

// NewSMTP returns a Mailer that dials host:port with the given credentials.
func NewSMTP(host string, port int, username, password string, cfg Config) (*Mailer, error) {
	return New(gomail.NewDialer(host, port, username, password), cfg)
}

// New returns a Mailer sending through d.
func New(d Dialer, cfg Config) (*Mailer, error) {
	if d == nil {
		return nil, errors.New("mailer: dialer required")
	}
	if cfg.From == "" {
		return nil, errors.New("mailer: from address required")
	}
	if cfg.AddressField == "" {
		cfg.AddressField = "email"
	}
	if cfg.Subject == "" {
		cfg.Subject = "Your sign-in code"
	}
	if cfg.Body == "" {
		cfg.Body = defaultBody
	}

	subject, err := template.New("subject").Parse(cfg.Subject)
	if err != nil {
		return nil, fmt.Errorf("mailer: parse subject: %w", err)
	}
	body, err := template.New("body").Parse(cfg.Body)
	if err != nil {
		return nil, fmt.Errorf("mailer: parse body: %w", err)
	}

	return &Mailer{
		dialer:       d,
		from:         cfg.From,
		addressField: cfg.AddressField,
		subject:      subject,
		body:         body,
	}, nil
}

// SendCode mails code to the address found in record.
func (m *Mailer) SendCode(ctx context.Context, record magiccode.Record, code int, opts magiccode.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	to, ok := record[m.addressField].(string)
	if !ok || to == "" {
		return fmt.Errorf("mailer: record has no %q address", m.addressField)
	}

	data := TemplateData{
		Code:    fmt.Sprintf("%d", code),
		Record:  record,
		Options: opts,
	}
	subject, err := render(m.subject, data)
	if err != nil {
		return err
	}
	body, err := render(m.body, data)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}
	return nil
}

func render(t *template.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mailer: render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
