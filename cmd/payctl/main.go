// Command payctl runs one mobile-money payment attempt end to end against a
// running AgriLink API, polling status until the collection resolves.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/agrilink/agrilink-gobackend/internal/poller"
)

func main() {
	var (
		apiURL   = flag.String("api", "http://localhost:8080", "API base URL")
		phone    = flag.String("phone", "", "payer phone number (MSISDN)")
		amount   = flag.Float64("amount", 0, "amount to collect")
		orders   = flag.String("orders", "", "comma-separated order ids")
		interval = flag.Duration("interval", 3*time.Second, "poll interval")
		attempts = flag.Int("attempts", 30, "maximum poll attempts")
	)
	flag.Parse()

	token := os.Getenv("AGRILINK_TOKEN")
	if token == "" {
		log.Fatal("AGRILINK_TOKEN must be set (customer JWT)")
	}
	if *phone == "" || *amount <= 0 || *orders == "" {
		flag.Usage()
		os.Exit(2)
	}

	api, err := poller.NewAPIClient(*apiURL, token, nil)
	if err != nil {
		log.Fatalf("failed to configure API client: %v", err)
	}

	session := poller.NewSession(api,
		poller.WithInterval(*interval),
		poller.WithMaxAttempts(*attempts),
	)

	orderIDs := strings.Split(*orders, ",")
	if err := session.Start(context.Background(), *phone, *amount, orderIDs); err != nil {
		log.Fatalf("failed to start payment: %v", err)
	}
	fmt.Printf("payment submitted, reference %s\n", session.ReferenceID())

	outcome := <-session.Outcome()
	switch outcome.State {
	case poller.StateResolvedSuccess:
		fmt.Printf("payment confirmed: reference=%s attempts=%d\n", outcome.ReferenceID, outcome.Attempts)
	case poller.StateResolvedFailure:
		log.Fatalf("payment failed (%s): %s", outcome.TerminalStatus, outcome.Message)
	default:
		log.Fatalf("payment unresolved: %s", outcome.Message)
	}
}
