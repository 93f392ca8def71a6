package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/troikatech/engage-api/pkg/env"
	"github.com/troikatech/engage-api/pkg/exotel"
	"github.com/troikatech/engage-api/pkg/utils"
)

// check-exotel-call prints the provider's view of one call, e.g. to compare
// with what the status webhook stored.
func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: check-exotel-call <call_sid>")
	}
	callSID := os.Args[1]

	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.ExotelEnabled() {
		log.Fatalf("Missing Exotel credentials (EXOTEL_ACCOUNT_SID, EXOTEL_API_KEY, EXOTEL_API_TOKEN)")
	}

	client := exotel.NewClient(exotel.Config{
		Subdomain:  cfg.ExotelSubdomain,
		AccountSID: cfg.ExotelAccountSID,
		APIKey:     cfg.ExotelAPIKey,
		APIToken:   cfg.ExotelAPIToken,
		Timeout:    cfg.HTTPTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	defer cancel()

	call, err := client.GetCall(ctx, callSID)
	if err != nil {
		log.Fatalf("Failed to get call: %v", err)
	}

	fmt.Printf("Call SID:   %s\n", call.Sid)
	fmt.Printf("Status:     %s\n", call.Status)
	fmt.Printf("Direction:  %s\n", call.Direction)
	fmt.Printf("From:       %s\n", utils.MaskPhoneNumber(call.From))
	fmt.Printf("To:         %s\n", utils.MaskPhoneNumber(call.To))
	fmt.Printf("Start Time: %s\n", call.StartTime)
	fmt.Printf("End Time:   %s\n", call.EndTime)
	fmt.Printf("Duration:   %s\n", call.Duration)

	if len(os.Args) > 2 && os.Args[2] == "-json" {
		pretty, _ := json.MarshalIndent(call, "", "  ")
		fmt.Println(string(pretty))
	}
}
