// Package main runs the interactive NoPass client.
package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/atinyakov/NoPass/internal/client"
)

var (
	version   string
	buildDate string
)

func main() {
	var (
		baseURL  string
		token    string
		certFile string
		keyFile  string
		caFile   string
		reveal   bool
		showVer  bool
	)

	flag.StringVar(&baseURL, "url", "https://localhost:8080", "server base URL")
	flag.StringVar(&token, "token", "", "session token (or NOPASS_TOKEN)")
	flag.StringVar(&certFile, "cert", "", "path to client cert")
	flag.StringVar(&keyFile, "key", "", "path to client key")
	flag.StringVar(&caFile, "ca", "", "path to CA cert")
	flag.BoolVar(&reveal, "reveal", false, "show passwords in list views")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("NoPass Client\nVersion: %s\nBuild Date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return
	}

	if token == "" {
		token = os.Getenv("NOPASS_TOKEN")
	}
	if token == "" && certFile == "" {
		log.Fatal("please provide -token, NOPASS_TOKEN or -cert/-key")
	}

	hc, err := client.NewHTTPClient(certFile, keyFile, caFile)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shell := &client.Shell{
		API:      client.NewAPI(baseURL, token, hc),
		Prompter: client.NewPrompter(os.Stdin, os.Stdout),
		Out:      os.Stdout,
		Reveal:   reveal,
	}
	if err := shell.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
