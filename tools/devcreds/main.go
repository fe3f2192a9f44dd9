// Package main generates development credentials for a NoPass server:
// TLS certificates, session tokens, data keys and seeded users.
//
// Usage:
//
//	devcreds certs   [-dir certs] [-user alice] [-host localhost]
//	devcreds token   -user alice [-secret s | SESSION_SECRET] [-issuer nopass] [-ttl 24h]
//	devcreds datakey
//	devcreds user    -id alice [-username alice] [-email a@example.com] [-d dsn | DATABASE_DSN]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/atinyakov/NoPass/internal/certgen"
	"github.com/atinyakov/NoPass/internal/db"
	"github.com/atinyakov/NoPass/internal/middleware"
	"github.com/atinyakov/NoPass/internal/models"
	"github.com/atinyakov/NoPass/internal/repository"
	"github.com/atinyakov/NoPass/internal/seal"
)

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "devcreds:", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage: devcreds certs|token|datakey|user [flags]")

func run(args []string, getenv func(string) string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "certs":
		return runCerts(args[1:], out)
	case "token":
		return runToken(args[1:], getenv, out)
	case "datakey":
		return runDataKey(out)
	case "user":
		return runUser(args[1:], getenv, out)
	default:
		return errUsage
	}
}

// runCerts writes a CA, a server certificate and a client certificate
// whose Common Name is the user ID.
func runCerts(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("certs", flag.ContinueOnError)
	dir := fs.String("dir", "certs", "output directory")
	user := fs.String("user", "alice", "user ID for the client certificate")
	host := fs.String("host", "localhost", "server host name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ca, err := loadOrCreateAuthority(*dir)
	if err != nil {
		return err
	}

	serverCert, serverKey, err := ca.Issue(*host, certgen.Server)
	if err != nil {
		return err
	}
	if err := certgen.WritePair(*dir, "server", serverCert, serverKey); err != nil {
		return err
	}

	clientCert, clientKey, err := ca.Issue(*user, certgen.Client)
	if err != nil {
		return err
	}
	if err := certgen.WritePair(*dir, "client", clientCert, clientKey); err != nil {
		return err
	}

	fmt.Fprintf(out, "Certificates for %s written to %s\n", *user, *dir)
	return nil
}

// loadOrCreateAuthority reuses <dir>/ca.{crt,key} so that new client
// certificates keep verifying against a running server.
func loadOrCreateAuthority(dir string) (*certgen.Authority, error) {
	certPath, keyPath := filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key")
	if _, err := os.Stat(certPath); err == nil {
		return certgen.LoadAuthority(certPath, keyPath)
	}
	ca, err := certgen.NewAuthority("NoPass Dev CA")
	if err != nil {
		return nil, err
	}
	if err := ca.Write(dir); err != nil {
		return nil, err
	}
	return ca, nil
}

func runToken(args []string, getenv func(string) string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	user := fs.String("user", "", "user ID (token subject)")
	secret := fs.String("secret", getenv("SESSION_SECRET"), "session secret")
	issuer := fs.String("issuer", "nopass", "token issuer")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("token: -user is required")
	}
	if *secret == "" {
		return errors.New("token: -secret or SESSION_SECRET is required")
	}

	token, err := middleware.NewSessionToken([]byte(*secret), *issuer, *user, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runDataKey(out io.Writer) error {
	key, err := seal.GenerateDataKey()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, key)
	return nil
}

// runUser creates the user row in the postgres identity store.
func runUser(args []string, getenv func(string) string, out io.Writer) error {
	fs := flag.NewFlagSet("user", flag.ContinueOnError)
	id := fs.String("id", "", "user ID")
	username := fs.String("username", "", "display username")
	email := fs.String("email", "", "email address")
	dsn := fs.String("d", getenv("DATABASE_DSN"), "db address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("user: -id is required")
	}
	if *dsn == "" {
		return errors.New("user: -d or DATABASE_DSN is required")
	}

	conn, err := db.Open(context.Background(), *dsn)
	if err != nil {
		return err
	}
	defer conn.Close()

	repo := repository.NewPostgresUserRepository(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.EnsureUser(ctx, models.User{ID: *id, Username: *username, Email: *email}); err != nil {
		return err
	}
	fmt.Fprintf(out, "User %s ready\n", *id)
	return nil
}
