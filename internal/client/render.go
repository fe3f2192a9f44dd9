package client

import (
	"fmt"
	"io"
	"net/url"

	"github.com/atinyakov/NoPass/internal/models"
)

const passwordMask = "••••••••••••"

// RenderCards prints the card list view.
func RenderCards(w io.Writer, cards []models.Card) {
	fmt.Fprintln(w, "Your Cards")
	if len(cards) == 0 {
		fmt.Fprintln(w, "  No card added.")
		return
	}
	for _, c := range cards {
		name := c.CardName
		if name == "" {
			name = "Card"
		}
		expiry := c.ExpiryDate
		if expiry == "" {
			expiry = "-"
		}
		fmt.Fprintf(w, "  [%s] %s\n", c.ID, name)
		if c.HolderName != "" {
			fmt.Fprintf(w, "    %s\n", c.HolderName)
		}
		fmt.Fprintf(w, "    %s\n", c.CardNo)
		fmt.Fprintf(w, "    Expires %s\n", expiry)
	}
}

// RenderPasswords prints the password list view. Passwords are masked
// unless reveal is set.
func RenderPasswords(w io.Writer, passwords []models.Password, reveal bool) {
	fmt.Fprintln(w, "Your Passwords")
	if len(passwords) == 0 {
		fmt.Fprintln(w, "  No passwords added.")
		return
	}
	for _, p := range passwords {
		secret := passwordMask
		if reveal {
			secret = p.Password
		}
		fmt.Fprintf(w, "  [%s] %s\n", p.ID, siteName(p.WebsiteURL))
		fmt.Fprintf(w, "    %s\n", p.Username)
		fmt.Fprintf(w, "    %s\n", p.WebsiteURL)
		fmt.Fprintf(w, "    Password %s\n", secret)
	}
}

// siteName is the host part of a website URL, or the URL itself.
func siteName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
