package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/atinyakov/NoPass/internal/models"
)

// Prompter reads record fields interactively and validates them before
// anything is submitted. Rejected fields are asked again.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
	// Now decides card expiry. Defaults to time.Now.
	Now func() time.Time
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(in), out: out, Now: time.Now}
}

type question struct {
	field string
	label string
	dst   *string
}

// PromptCard asks for a new card.
func (p *Prompter) PromptCard() (models.CardFields, error) {
	var f models.CardFields
	questions := []question{
		{"cardName", "Card name (optional)", &f.CardName},
		{"cardNo", "Card number", &f.CardNo},
		{"expiryDate", "Expiry date (MM/YY)", &f.ExpiryDate},
		{"cvv", "CVV", &f.CVV},
		{"holderName", "Cardholder name", &f.HolderName},
	}
	err := p.ask(questions, func() error {
		f = f.Normalize()
		return f.Validate(p.Now())
	})
	return f, err
}

// PromptPassword asks for a new website credential.
func (p *Prompter) PromptPassword() (models.PasswordFields, error) {
	var f models.PasswordFields
	questions := []question{
		{"websiteUrl", "Website URL", &f.WebsiteURL},
		{"username", "Username", &f.Username},
		{"password", "Password", &f.Password},
	}
	err := p.ask(questions, func() error {
		f = f.Normalize()
		return f.Validate()
	})
	return f, err
}

func (p *Prompter) ask(questions []question, validate func() error) error {
	pending := questions
	for {
		for _, q := range pending {
			answer, err := p.readLine(q.label)
			if err != nil {
				return err
			}
			*q.dst = answer
		}

		err := validate()
		if err == nil {
			return nil
		}
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			return err
		}

		msgs := verr.FieldMessages()
		pending = nil
		for _, q := range questions {
			if msg, ok := msgs[q.field]; ok {
				fmt.Fprintf(p.out, "  %s\n", msg)
				pending = append(pending, q)
			}
		}
	}
}

func (p *Prompter) readLine(label string) (string, error) {
	return p.Ask(label + ": ")
}

// Ask prints prompt and returns the next input line.
func (p *Prompter) Ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return p.scanner.Text(), nil
}
