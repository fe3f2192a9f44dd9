package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/atinyakov/NoPass/internal/models"
)

// RecordAPI is the server surface the shell drives.
type RecordAPI interface {
	AddCard(ctx context.Context, fields models.CardFields) (*models.Card, error)
	AddPassword(ctx context.Context, fields models.PasswordFields) (*models.Password, error)
	Records(ctx context.Context) (models.Blob, error)
	Me(ctx context.Context) (*Profile, error)
	Delete(ctx context.Context, section models.Section, id string) error
}

const shellHelp = `Available commands:
  whoami                  show the signed-in user
  add-card                add a card
  add-password            add a website password
  cards                   list cards
  passwords               list passwords
  list                    list everything
  reveal                  toggle showing passwords
  delete-card <id>        request deletion of a card
  delete-password <id>    request deletion of a password
  help, exit`

// Shell is the interactive command loop.
type Shell struct {
	API      RecordAPI
	Prompter *Prompter
	Out      io.Writer
	// Reveal shows passwords in list views.
	Reveal bool
}

// Run reads commands until "exit" or end of input.
func (s *Shell) Run(ctx context.Context) error {
	for {
		line, err := s.Prompter.Ask("nopass> ")
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Fprintln(s.Out, shellHelp)
		case "whoami":
			me, err := s.API.Me(ctx)
			if err != nil {
				s.fail(err)
				continue
			}
			fmt.Fprintf(s.Out, "%s (%s)\n", me.Username, me.ID)
		case "add-card":
			fields, err := s.Prompter.PromptCard()
			if err != nil {
				return s.endOfInput(err)
			}
			card, err := s.API.AddCard(ctx, fields)
			if err != nil {
				s.fail(err)
				continue
			}
			fmt.Fprintf(s.Out, "Card added: %s\n", card.ID)
			s.show(ctx, models.SectionCards)
		case "add-password":
			fields, err := s.Prompter.PromptPassword()
			if err != nil {
				return s.endOfInput(err)
			}
			pw, err := s.API.AddPassword(ctx, fields)
			if err != nil {
				s.fail(err)
				continue
			}
			fmt.Fprintf(s.Out, "Password added: %s\n", pw.ID)
			s.show(ctx, models.SectionPasswords)
		case "cards":
			s.show(ctx, models.SectionCards)
		case "passwords":
			s.show(ctx, models.SectionPasswords)
		case "list":
			s.show(ctx)
		case "reveal":
			s.Reveal = !s.Reveal
			fmt.Fprintf(s.Out, "Reveal passwords: %t\n", s.Reveal)
		case "delete-card", "delete-password":
			if len(args) < 2 {
				fmt.Fprintf(s.Out, "Usage: %s <id>\n", args[0])
				continue
			}
			section := models.SectionCards
			if args[0] == "delete-password" {
				section = models.SectionPasswords
			}
			if err := s.API.Delete(ctx, section, args[1]); err != nil {
				s.fail(err)
				continue
			}
			fmt.Fprintln(s.Out, "Deleted")
		case "exit":
			fmt.Fprintln(s.Out, "Bye")
			return nil
		default:
			fmt.Fprintln(s.Out, "Unknown command. Type 'help' for a list of commands.")
		}
	}
}

// show fetches the records and renders the given sections, or all of them.
func (s *Shell) show(ctx context.Context, sections ...models.Section) {
	blob, err := s.API.Records(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	if len(sections) == 0 {
		sections = []models.Section{models.SectionCards, models.SectionPasswords}
	}
	for _, section := range sections {
		switch section {
		case models.SectionCards:
			RenderCards(s.Out, blob.Cards)
		case models.SectionPasswords:
			RenderPasswords(s.Out, blob.Passwords, s.Reveal)
		}
	}
}

func (s *Shell) fail(err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotImplemented {
		fmt.Fprintln(s.Out, "Not supported by the server yet.")
		return
	}
	fmt.Fprintf(s.Out, "Error: %v\n", err)
}

func (s *Shell) endOfInput(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Fprintln(s.Out)
		return nil
	}
	return err
}
