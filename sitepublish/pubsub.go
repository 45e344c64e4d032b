package sitepublish

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
)

// PublishSiteSync emits the publish trigger so a worker process can run the
// attempt out-of-request.
func PublishSiteSync(ctx context.Context, siteId int, businessId string) error {
	topicName := strings.TrimSpace(os.Getenv("SITE_PUBLISH_TOPIC"))
	if topicName == "" {
		topicName = "site-publish"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("SITE_PUBLISH_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SitePublishPayload{
		SiteId:     siteId,
		BusinessId: businessId,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler accepts the Pub/Sub push delivery and runs one publish
// attempt. Always acks (204) so malformed messages never loop.
func PubSubPushHandler(publisher *Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SITE_PUBLISH_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SitePublishPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.SiteId == 0 || payload.BusinessId == "" {
			c.Status(204)
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), payload.BusinessId)
		_ = publisher.AttemptPublish(ctx, payload.SiteId)
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
