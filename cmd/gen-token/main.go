// gen-token prints a bearer token for a sync-api running with AUTH0_TEST_MODE.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"board-sync/api"
)

func main() {
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("TEST_JWT_SECRET")
	if secret == "" {
		log.Fatal("TEST_JWT_SECRET must be set")
	}
	userID := "dev-user"
	if flag.NArg() > 0 {
		userID = flag.Arg(0)
	}
	tok, err := api.TestToken([]byte(secret), userID, *ttl)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Print(tok)
}
