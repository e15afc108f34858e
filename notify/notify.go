package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("notify")

// Notifier delivers a user-facing message. Delivery is best effort and
// happens outside any database transaction, the transport behind it is
// not this repo's concern.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

var userNotify = "user_notify"

type userMessage struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
	SentAt int64  `json:"sent_at"`
}

// RedisNotifier publishes messages on a channel the bot surface
// subscribes to.
type RedisNotifier struct {
	rds *redis.Client
}

func NewRedisNotifier(rds *redis.Client) *RedisNotifier {
	return &RedisNotifier{
		rds: rds,
	}
}

func (n *RedisNotifier) Notify(ctx context.Context, userID int64, text string) error {
	msg := userMessage{
		UserID: userID,
		Text:   text,
		SentAt: time.Now().Unix(),
	}

	value, _ := json.Marshal(&msg)
	if err := n.rds.Publish(ctx, userNotify, string(value)).Err(); err != nil {
		log.Warnf("notify user %v failed:%v", userID, err)
		return err
	}

	return nil
}
