// intake-replay re-runs booking reconciliation for pending/failed intake
// records. Intended as an ops/cron job; safe to run repeatedly because the
// reconciler is idempotent per (business id, external booking id).
//
// Usage:
//   DB_USER=... REDIS_ADDRESS=... go run ./cmd/intake-replay [-business <id>] [-limit 100]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/models"
	"bitbucket.org/craftworks/bizmate_backend/utils"
)

func main() {
	businessId := flag.String("business", "", "only replay intakes for this business id")
	limit := flag.Int("limit", 100, "max records to replay")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	records, err := models.ListUnprocessedIntakeRecords(ctx, *businessId, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list intake records: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("nothing to replay")
		return
	}

	replayed, failed := 0, 0
	for _, record := range records {
		var booking models.BookingRequest
		if err := utils.UnmarshalFromJSON(record.Payload, &booking); err != nil {
			_ = record.MarkFailed(ctx, err)
			failed++
			fmt.Fprintf(os.Stderr, "intake %d: bad payload: %v\n", record.ID, err)
			continue
		}

		recordCtx := utils.SetBusinessIdInContext(ctx, record.BusinessId)
		recordCtx = utils.SetCorrelationIdInContext(recordCtx, record.CorrelationId)
		job, invoice, err := models.ReconcileBooking(recordCtx, &booking)
		if err != nil {
			_ = record.MarkFailed(recordCtx, err)
			failed++
			fmt.Fprintf(os.Stderr, "intake %d: reconcile failed: %v\n", record.ID, err)
			continue
		}
		_ = record.MarkProcessed(recordCtx)
		replayed++
		fmt.Printf("intake %d: job=%d invoice=%d\n", record.ID, job.ID, invoice.ID)
	}

	fmt.Printf("done: scanned=%d replayed=%d failed=%d\n", len(records), replayed, failed)
	if failed > 0 {
		os.Exit(2)
	}
}
