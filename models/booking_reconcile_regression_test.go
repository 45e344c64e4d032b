package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/models"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"github.com/shopspring/decimal"
)

// Regression: the same external booking id must always land on the same
// customer, job and invoice, no matter how many times the intake channel
// retries or how differently it formats the contact fields.
func TestBookingReconcileIsIdempotent(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "bizmate_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Sparkle Cleaning Co",
		Email: "owner@sparkle.test",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessID := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)

	total := decimal.NewFromInt(10000)
	deposit := decimal.NewFromInt(3000)
	booking := &models.BookingRequest{
		ExternalId:     "bk-1001",
		Name:           "Ada Lovelace",
		Email:          "Ada@Test.com",
		Phone:          "(555) 123-4567",
		ServiceType:    "Deep Clean",
		Notes:          "Gate code 4321",
		RequestedStart: "2027-03-01T10:00:00Z",
		TotalAmount:    &total,
		DepositAmount:  &deposit,
	}

	job1, invoice1, err := models.ReconcileBooking(ctx, booking)
	if err != nil {
		t.Fatalf("first ReconcileBooking: %v", err)
	}
	if job1 == nil || invoice1 == nil {
		t.Fatal("first reconcile returned nil job or invoice")
	}
	if job1.Title != "Deep Clean - Ada Lovelace" {
		t.Fatalf("job title = %q", job1.Title)
	}

	// retry with the same external id but differently formatted contacts
	retry := *booking
	retry.Email = "  ada@test.com "
	retry.Phone = "555-123-4567"
	retry.Name = "ADA LOVELACE"

	job2, invoice2, err := models.ReconcileBooking(ctx, &retry)
	if err != nil {
		t.Fatalf("second ReconcileBooking: %v", err)
	}
	if job2.ID != job1.ID {
		t.Fatalf("retry created a second job: %d vs %d", job2.ID, job1.ID)
	}
	if invoice2.ID != invoice1.ID {
		t.Fatalf("retry created a second invoice: %d vs %d", invoice2.ID, invoice1.ID)
	}
	if job2.CustomerId != job1.CustomerId {
		t.Fatalf("retry resolved a different customer: %d vs %d", job2.CustomerId, job1.CustomerId)
	}

	db := config.GetDB()
	var customerCount int64
	if err := db.WithContext(ctx).Model(&models.Customer{}).
		Where("business_id = ?", businessID).Count(&customerCount).Error; err != nil {
		t.Fatalf("count customers: %v", err)
	}
	if customerCount != 1 {
		t.Fatalf("customer count = %d; want 1", customerCount)
	}

	var invoiceCount int64
	if err := db.WithContext(ctx).Model(&models.Invoice{}).
		Where("business_id = ? AND external_booking_id = ?", businessID, "bk-1001").
		Count(&invoiceCount).Error; err != nil {
		t.Fatalf("count invoices: %v", err)
	}
	if invoiceCount != 1 {
		t.Fatalf("invoice count = %d; want 1", invoiceCount)
	}

	if invoice1.RemainingBalance.Cmp(decimal.NewFromInt(7000)) != 0 {
		t.Fatalf("remaining balance = %s; want 7000", invoice1.RemainingBalance)
	}
	notes := invoice1.DisplayNotes()
	if !strings.Contains(notes, "Remaining: $70.00") {
		t.Fatalf("display notes missing remaining line: %q", notes)
	}
	if !strings.Contains(notes, "Gate code 4321") {
		t.Fatalf("display notes lost the free text: %q", notes)
	}
	if strings.Contains(invoice1.Notes, "Remaining:") {
		t.Fatalf("computed lines leaked into stored notes: %q", invoice1.Notes)
	}

	if !strings.HasPrefix(invoice1.InvoiceNumber, "INV-0001-") {
		t.Fatalf("invoice number = %q; want INV-0001-<year>", invoice1.InvoiceNumber)
	}

	// a retry that only raises the deposit must rebalance against the
	// already-stored total
	raisedDeposit := decimal.NewFromInt(4000)
	depositOnly := &models.BookingRequest{
		ExternalId:    "bk-1001",
		Name:          "Ada Lovelace",
		Email:         "ada@test.com",
		DepositAmount: &raisedDeposit,
	}
	_, invoicePatched, err := models.ReconcileBooking(ctx, depositOnly)
	if err != nil {
		t.Fatalf("deposit-only ReconcileBooking: %v", err)
	}
	if invoicePatched.ID != invoice1.ID {
		t.Fatalf("deposit-only retry created a second invoice: %d vs %d", invoicePatched.ID, invoice1.ID)
	}
	if invoicePatched.DepositAmount.Cmp(raisedDeposit) != 0 {
		t.Fatalf("deposit = %s; want 4000", invoicePatched.DepositAmount)
	}
	if invoicePatched.TotalAmount.Cmp(total) != 0 {
		t.Fatalf("total = %s; want stored 10000", invoicePatched.TotalAmount)
	}
	if invoicePatched.RemainingBalance.Cmp(decimal.NewFromInt(6000)) != 0 {
		t.Fatalf("remaining after deposit-only retry = %s; want 6000", invoicePatched.RemainingBalance)
	}

	// a different booking from the same contact reuses the customer but gets
	// its own job, invoice and the next number
	second := &models.BookingRequest{
		ExternalId:  "bk-1002",
		Name:        "Ada Lovelace",
		Email:       "ada@test.com",
		ServiceType: "Window Wash",
		TotalAmount: &total,
	}
	job3, invoice3, err := models.ReconcileBooking(ctx, second)
	if err != nil {
		t.Fatalf("third ReconcileBooking: %v", err)
	}
	if job3.ID == job1.ID || invoice3.ID == invoice1.ID {
		t.Fatal("new external id must not reuse the old job or invoice")
	}
	if job3.CustomerId != job1.CustomerId {
		t.Fatalf("same contact resolved a new customer: %d vs %d", job3.CustomerId, job1.CustomerId)
	}
	if !strings.HasPrefix(invoice3.InvoiceNumber, "INV-0002-") {
		t.Fatalf("second invoice number = %q; want INV-0002-<year>", invoice3.InvoiceNumber)
	}

	// the REST lookups read back what the reconcile wrote
	fetchedJob, err := models.GetJob(ctx, job1.ID)
	if err != nil || fetchedJob.ExternalBookingId != "bk-1001" {
		t.Fatalf("GetJob: %v, booking id %q", err, fetchedJob.ExternalBookingId)
	}
	jobs, err := models.GetJobs(ctx, &job1.CustomerId)
	if err != nil || len(jobs) != 2 {
		t.Fatalf("GetJobs: %v, count %d; want 2", err, len(jobs))
	}
	staged, err := models.UpdateJobStage(ctx, job1.ID, models.JobStageInProgress)
	if err != nil || staged.Stage != models.JobStageInProgress {
		t.Fatalf("UpdateJobStage: %v, stage %q", err, staged.Stage)
	}
	fetchedInvoice, err := models.GetInvoice(ctx, invoice1.ID)
	if err != nil || len(fetchedInvoice.Items) == 0 {
		t.Fatalf("GetInvoice: %v, items %d", err, len(fetchedInvoice.Items))
	}
	fetchedCustomer, err := models.GetCustomer(ctx, job1.CustomerId)
	if err != nil || fetchedCustomer.Name != "Ada Lovelace" {
		t.Fatalf("GetCustomer: %v", err)
	}
	customers, err := models.GetCustomers(ctx, &fetchedCustomer.Name)
	if err != nil || len(customers) != 1 {
		t.Fatalf("GetCustomers: %v, count %d; want 1", err, len(customers))
	}
	users, err := models.GetUsers(ctx)
	if err != nil || len(users) == 0 {
		t.Fatalf("GetUsers: %v, count %d", err, len(users))
	}
	fetchedUser, err := models.GetUser(ctx, users[0].ID)
	if err != nil || fetchedUser.BusinessId != businessID {
		t.Fatalf("GetUser: %v", err)
	}
}

func TestIntakeRecordReplayLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "bizmate_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Replay Co",
		Email: "owner@replay.test",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessID := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)

	booking := &models.BookingRequest{
		ExternalId: "bk-replay-1",
		Name:       "Grace Hopper",
		Email:      "grace@test.com",
	}
	record, err := models.CreateBookingIntakeRecord(ctx, businessID, booking)
	if err != nil {
		t.Fatalf("CreateBookingIntakeRecord: %v", err)
	}

	pending, err := models.ListUnprocessedIntakeRecords(ctx, businessID, 10)
	if err != nil {
		t.Fatalf("ListUnprocessedIntakeRecords: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != record.ID {
		t.Fatalf("pending = %+v; want the one stored record", pending)
	}

	var replayed models.BookingRequest
	if err := utils.UnmarshalFromJSON(pending[0].Payload, &replayed); err != nil {
		t.Fatalf("unmarshal stored payload: %v", err)
	}
	if replayed.ExternalId != booking.ExternalId || replayed.Email != booking.Email {
		t.Fatalf("stored payload round-trip mismatch: %+v", replayed)
	}

	if _, _, err := models.ReconcileBooking(ctx, &replayed); err != nil {
		t.Fatalf("ReconcileBooking from stored payload: %v", err)
	}
	if err := pending[0].MarkProcessed(ctx); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	left, err := models.ListUnprocessedIntakeRecords(ctx, businessID, 10)
	if err != nil {
		t.Fatalf("ListUnprocessedIntakeRecords after replay: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected no pending records; got %d", len(left))
	}

	// failed records stay visible for the next replay pass
	record2, err := models.CreateBookingIntakeRecord(ctx, businessID, &models.BookingRequest{ExternalId: "bk-replay-2"})
	if err != nil {
		t.Fatalf("CreateBookingIntakeRecord: %v", err)
	}
	if err := record2.MarkFailed(ctx, fmt.Errorf("portal timeout")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	left, err = models.ListUnprocessedIntakeRecords(ctx, businessID, 10)
	if err != nil {
		t.Fatalf("ListUnprocessedIntakeRecords after failure: %v", err)
	}
	if len(left) != 1 || left[0].ID != record2.ID {
		t.Fatalf("failed record should remain replayable; got %+v", left)
	}
	if left[0].LastError != "portal timeout" {
		t.Fatalf("LastError = %q", left[0].LastError)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("bizmate-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("bizmate-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=bizmate_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
