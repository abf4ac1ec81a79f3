// Command auctiond runs the auction engine: the request socket for mutating
// operations, the HTTP read API, and the signed event feed.
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/cdpmarket/auctionengine/core"
	"github.com/cdpmarket/auctionengine/engine"
	"github.com/cdpmarket/auctionengine/ledger"
	"github.com/cdpmarket/auctionengine/receipts"
	"github.com/cdpmarket/auctionengine/server"
	"github.com/cdpmarket/auctionengine/store"
)

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	signer, err := loadSigner(cfg.ReceiptKeyPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to initialize receipt signer: %v", err)
	}
	if pem, err := receipts.PublicKeyPEM(signer.PublicKey()); err == nil {
		log.Printf("INFO: Receipt verification key:\n%s", pem)
	}

	recordStore, err := openStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("ERROR: Failed to open record store: %v", err)
	}

	feed := server.NewEventFeed(signer)

	eng := engine.New(engine.Config{
		Store:   recordStore,
		Custody: ledger.NewMemoryCustodyLedger(),
		Tokens:  ledger.NewMemoryTokenLedger(),
		Heights: ledger.NewBlockCounter(1),
		Events:  feed,
		Account: core.Address(cfg.EngineAccount),
	})

	httpServer := server.NewHTTPServer(eng, feed)
	go func() {
		log.Printf("INFO: HTTP read API listening on %s", cfg.HTTPAddr)
		if err := http.ListenAndServe(cfg.HTTPAddr, httpServer.Router()); err != nil {
			log.Fatalf("ERROR: HTTP server failed: %v", err)
		}
	}()

	log.Fatal(server.New(eng, cfg).Start())
}

func loadSigner(keyPath string) (*receipts.Signer, error) {
	if keyPath == "" {
		log.Printf("INFO: No receipt key configured, generating an ephemeral key")
		return receipts.GenerateSigner()
	}

	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		signer, err := receipts.GenerateSigner()
		if err != nil {
			return nil, err
		}
		log.Printf("INFO: Writing new receipt key to %s", keyPath)
		return signer, receipts.SavePrivateKeyPEM(keyPath, signer.Key())
	}

	key, err := receipts.LoadPrivateKeyPEM(keyPath)
	if err != nil {
		return nil, err
	}
	log.Printf("INFO: Loaded receipt key from %s", keyPath)
	return receipts.NewSigner(key)
}

func openStore(dsn string) (engine.Store, error) {
	if dsn == "" {
		log.Printf("INFO: Using in-process record store")
		return engine.NewMemoryStore(), nil
	}
	log.Printf("INFO: Using Postgres record store")
	return store.NewPostgres(dsn)
}
