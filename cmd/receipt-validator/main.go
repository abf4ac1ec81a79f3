// Command receipt-validator verifies a COSE_Sign1 event receipt offline
// against the engine's published verification key.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cdpmarket/auctionengine/receipts"
)

func main() {
	var (
		receiptInput = flag.String("receipt", "", "Receipt file: raw COSE_Sign1 bytes or base64 text")
		pubkeyPath   = flag.String("pubkey", "", "PEM file holding the engine's verification key")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}

	if *receiptInput == "" || *pubkeyPath == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: Both inputs are required (--receipt, --pubkey)\n")
		os.Exit(1)
	}

	receipt, err := readReceipt(*receiptInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading receipt: %v\n", err)
		os.Exit(2)
	}

	pub, err := receipts.LoadPublicKeyPEM(*pubkeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading public key: %v\n", err)
		os.Exit(2)
	}

	event, err := receipts.Verify(receipt, pub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(event); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding event: %v\n", err)
			os.Exit(2)
		}
		return
	}

	fmt.Printf("VALID receipt\n")
	fmt.Printf("  event id:  %s\n", event.ID)
	fmt.Printf("  type:      %s\n", event.Type)
	fmt.Printf("  height:    %d\n", event.Height)
	fmt.Printf("  timestamp: %s\n", event.Timestamp)
	if event.Auction != nil {
		fmt.Printf("  auction:   %s (%s)\n", event.Auction.ID, event.Auction.Status)
	}
	if event.Bid != nil {
		fmt.Printf("  bid:       %s (value %s)\n", event.Bid.ID, event.Bid.Value.String())
	}
	if event.Amount != nil {
		fmt.Printf("  amount:    %s\n", event.Amount.String())
	}
}

// readReceipt loads the receipt file, accepting either raw COSE bytes or a
// base64-encoded receipt as emitted on the event feed.
func readReceipt(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data))); err == nil {
		return decoded, nil
	}
	return data, nil
}

func showUsage() {
	fmt.Println(`receipt-validator verifies an auction engine event receipt.

Usage:
  receipt-validator --receipt RECEIPT_FILE --pubkey KEY_PEM [--format text|json]

Exit codes:
  0  receipt valid
  1  receipt invalid
  2  input error`)
}
