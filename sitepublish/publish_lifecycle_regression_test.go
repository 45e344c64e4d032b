package sitepublish

import (
	"context"
	"errors"
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
)

// Regression: the full draft -> queued -> publishing -> published path,
// including the offline no-op, the error path, and the edit-after-publish
// demotion.
func TestPublishLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startTestRedis(t)
	t.Cleanup(func() { _ = removeContainer(redisName) })

	mysqlName, mysqlPort := startTestMySQL(t)
	t.Cleanup(func() { _ = removeContainer(mysqlName) })

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
		Name:         "Sparkle Cleaning Co",
		Email:        "hello@sparkle.test",
		Phone:        "555-000-1111",
		Address:      "1 Main St",
		About:        "Family-run cleaners.",
		ServicesText: "Deep cleans, move-outs",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	ctx = utils.SetBusinessIdInContext(ctx, biz.ID.String())

	client := &fakeClient{pageUrl: "https://portal.test/p/sparkle-cleaning-co"}
	publisher := NewPublisher(client)

	// no handle yet: queueing must refuse and leave the draft untouched
	if _, err := publisher.QueuePublish(ctx); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("QueuePublish without handle = %v; want ErrInvalidHandle", err)
	}
	draft, err := models.GetOrCreateSiteDraft(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateSiteDraft: %v", err)
	}
	if draft.PublishStatus != models.PublishStatusDraft {
		t.Fatalf("status after refused queue = %s; want Draft", draft.PublishStatus)
	}

	handle := "Sparkle Cleaning Co"
	if _, err := models.SaveDraftEdits(ctx, &models.SiteDraftEdits{Handle: &handle}); err != nil {
		t.Fatalf("SaveDraftEdits: %v", err)
	}

	// hold the portal offline so the queued attempt stays a no-op
	publisher.monitor.setReachable(false)

	queued, err := publisher.QueuePublish(ctx)
	if err != nil {
		t.Fatalf("QueuePublish: %v", err)
	}
	draft = mustFetchDraft(t, ctx, queued.ID)
	if draft.PublishStatus != models.PublishStatusQueued {
		t.Fatalf("status = %s; want Queued", draft.PublishStatus)
	}
	if draft.NeedsSync == nil || !*draft.NeedsSync {
		t.Fatal("queued draft must need sync")
	}
	if draft.Handle != "sparkle-cleaning-co" {
		t.Fatalf("handle = %q; want normalized slug", draft.Handle)
	}
	if draft.AppName != "Sparkle Cleaning Co" {
		t.Fatalf("app name = %q; want backfill from business name", draft.AppName)
	}
	if draft.AboutText != "Family-run cleaners." || draft.ServicesText != "Deep cleans, move-outs" {
		t.Fatalf("profile backfill missing: about=%q services=%q", draft.AboutText, draft.ServicesText)
	}

	if err := publisher.AttemptPublish(ctx, draft.ID); err != nil {
		t.Fatalf("offline AttemptPublish: %v", err)
	}
	if upserts, uploads, _ := client.stats(); upserts != 0 || uploads != 0 {
		t.Fatalf("offline attempt reached the portal: upserts=%d uploads=%d", upserts, uploads)
	}
	if got := mustFetchDraft(t, ctx, draft.ID).PublishStatus; got != models.PublishStatusQueued {
		t.Fatalf("offline attempt changed status to %s", got)
	}

	// portal back up
	publisher.monitor.setReachable(true)
	if err := publisher.AttemptPublish(ctx, draft.ID); err != nil {
		t.Fatalf("AttemptPublish: %v", err)
	}
	draft = mustFetchDraft(t, ctx, draft.ID)
	if draft.PublishStatus != models.PublishStatusPublished {
		t.Fatalf("status = %s; want Published (error=%q)", draft.PublishStatus, draft.LastPublishError)
	}
	if draft.NeedsSync == nil || *draft.NeedsSync {
		t.Fatal("published draft must be clean")
	}
	if draft.PublishedUrl != client.pageUrl {
		t.Fatalf("published url = %q", draft.PublishedUrl)
	}
	if draft.PublishedAt == nil {
		t.Fatal("published_at not set")
	}
	upserts, _, payload := client.stats()
	if upserts != 1 {
		t.Fatalf("upserts = %d; want 1", upserts)
	}
	if payload.Handle != "sparkle-cleaning-co" || payload.ContactEmail != "hello@sparkle.test" {
		t.Fatalf("payload = %+v", payload)
	}

	// a clean draft never re-publishes
	if err := publisher.AttemptPublish(ctx, draft.ID); err != nil {
		t.Fatalf("clean AttemptPublish: %v", err)
	}
	if upserts, _, _ := client.stats(); upserts != 1 {
		t.Fatalf("clean attempt re-published: upserts = %d", upserts)
	}

	// any edit demotes back to Draft and flips needs-sync
	about := "Now with window washing."
	if _, err := models.SaveDraftEdits(ctx, &models.SiteDraftEdits{AboutText: &about}); err != nil {
		t.Fatalf("SaveDraftEdits: %v", err)
	}
	draft = mustFetchDraft(t, ctx, draft.ID)
	if draft.PublishStatus != models.PublishStatusDraft {
		t.Fatalf("status after edit = %s; want Draft", draft.PublishStatus)
	}
	if draft.NeedsSync == nil || !*draft.NeedsSync {
		t.Fatal("edited draft must need sync")
	}

	// portal failure lands in Error with the cause, still dirty. Queue while
	// offline so the attempt below is the only one in flight.
	client.setUpsertErr(errors.New("portal 502"))
	publisher.monitor.setReachable(false)
	if _, err := publisher.QueuePublish(ctx); err != nil {
		t.Fatalf("QueuePublish: %v", err)
	}
	publisher.monitor.setReachable(true)
	if err := publisher.AttemptPublish(ctx, draft.ID); err == nil {
		t.Fatal("failing attempt should return the cause")
	}
	draft = mustFetchDraft(t, ctx, draft.ID)
	if draft.PublishStatus != models.PublishStatusError {
		t.Fatalf("status = %s; want Error", draft.PublishStatus)
	}
	if !strings.Contains(draft.LastPublishError, "portal 502") {
		t.Fatalf("last error = %q", draft.LastPublishError)
	}
	if draft.NeedsSync == nil || !*draft.NeedsSync {
		t.Fatal("errored draft must stay dirty for the next retry")
	}

	// recovery retries the whole attempt and clears the error
	client.setUpsertErr(nil)
	if err := publisher.SyncAllQueuedDrafts(ctx); err != nil {
		t.Fatalf("SyncAllQueuedDrafts: %v", err)
	}
	draft = mustFetchDraft(t, ctx, draft.ID)
	if draft.PublishStatus != models.PublishStatusPublished {
		t.Fatalf("status after sweep = %s; want Published", draft.PublishStatus)
	}
	if draft.LastPublishError != "" {
		t.Fatalf("last error should clear; got %q", draft.LastPublishError)
	}
}

func mustFetchDraft(t *testing.T, ctx context.Context, id int) *models.SiteDraft {
	t.Helper()
	draft, err := models.GetSiteDraftById(ctx, id)
	if err != nil {
		t.Fatalf("GetSiteDraftById(%d): %v", id, err)
	}
	return draft
}

func startTestRedis(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("bizmate-test-redis-%d", time.Now().UnixNano())
	out, err := runDocker(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := containerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := runDocker("exec", name, "redis-cli", "ping"); err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startTestMySQL(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("bizmate-test-mysql-%d", time.Now().UnixNano())
	out, err := runDocker(
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
	port, err := containerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := runDocker("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent"); err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func containerHostPort(container, portProto string) (string, error) {
	out, err := runDocker("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func removeContainer(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := runDocker("rm", "-f", container)
	return err
}

func runDocker(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
