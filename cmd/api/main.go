package main

import (
	"context"
	"log"
	"os"

	"arbiterflow/arbitrator"
	"arbiterflow/auth"
	"arbiterflow/db"
	"arbiterflow/dispute"
	"arbiterflow/escrow"
	"arbiterflow/event"
	"arbiterflow/ledger"
	"arbiterflow/panel"
	"arbiterflow/resolution"
	"arbiterflow/settings"
	"arbiterflow/vote"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	timeline := event.NewTimelineWriter()
	outbox := event.NewOutboxWriter()

	ledgerRepo := ledger.NewRepository(pool)
	settingsSvc := settings.NewService(pool)
	authSvc := auth.NewService(auth.NewRepository(pool), jwtSecret)
	arbitratorSvc := arbitrator.NewService(arbitrator.NewRepository(pool), ledgerRepo)
	escrowSvc := escrow.NewService(pool, ledgerRepo, timeline, outbox)
	engine := resolution.NewEngine(pool, escrowSvc, timeline, outbox)
	disputeSvc := dispute.NewService(pool, nil, settingsSvc, ledgerRepo, timeline, outbox)
	selector := panel.NewSelector(pool, timeline, outbox)
	voteSvc := vote.NewService(pool, engine, timeline)

	log.Printf("arbitration engine ready: auth=%t arbitrators=%t disputes=%t panel=%t votes=%t",
		authSvc != nil, arbitratorSvc != nil, disputeSvc != nil, selector != nil, voteSvc != nil)
}
