package email

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"crm-notification-service/pkg/notifier"
	"crm-notification-service/pkg/template"

	"github.com/redis/go-redis/v9"
)

// Queue is the producer half of the email channel: dispatch only enqueues, a
// Worker drains and sends. Delivery failure never reaches the orchestrator.
type Queue struct {
	rdb *redis.Client
	key string
}

func NewQueue(rdb *redis.Client, key string) *Queue {
	return &Queue{rdb: rdb, key: key}
}

func (q *Queue) Enqueue(ctx context.Context, p *notifier.Payload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, raw).Err()
}

// Directory resolves a user's email address at send time.
type Directory interface {
	EmailByUserID(ctx context.Context, userID string) (string, error)
}

// Sender delivers a rendered message. Satisfied by SMTPSender.
type Sender interface {
	Send(to, subject, body string) error
}

const maxDeliveryAttempts = 3

// queueItem is the wire form on the redis list. Attempts counts failed sends
// so a dead SMTP host cannot cycle an item forever.
type queueItem struct {
	notifier.Payload
	Attempts int `json:"attempts,omitempty"`
}

// Worker drains the queue and sends over SMTP. Failed sends go back on the
// queue until their attempts are exhausted, then onto the dead-letter list.
type Worker struct {
	rdb       *redis.Client
	key       string
	sender    Sender
	templates *template.Service
	directory Directory
}

func NewWorker(rdb *redis.Client, key string, sender Sender, templates *template.Service, directory Directory) *Worker {
	return &Worker{
		rdb:       rdb,
		key:       key,
		sender:    sender,
		templates: templates,
		directory: directory,
	}
}

// Run blocks draining the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("[EMAIL] worker draining %s", w.key)
	for {
		res, err := w.rdb.BRPop(ctx, 5*time.Second, w.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				log.Printf("[EMAIL] worker stopping: %v", ctx.Err())
				return
			}
			log.Printf("[EMAIL] queue pop failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		// BRPop returns [key, value]
		if len(res) != 2 {
			continue
		}
		w.deliver(ctx, []byte(res[1]))
	}
}

func (w *Worker) deliver(ctx context.Context, raw []byte) {
	var item queueItem
	if err := json.Unmarshal(raw, &item); err != nil {
		log.Printf("[EMAIL] dropping malformed queue item: %v", err)
		return
	}
	if err := w.send(ctx, &item); err != nil {
		w.requeue(ctx, &item, err)
	}
}

// send returns an error only for delivery failures worth retrying. Items with
// no resolvable recipient are dropped, not retried.
func (w *Worker) send(ctx context.Context, item *queueItem) error {
	to, err := w.directory.EmailByUserID(ctx, item.UserID)
	if err != nil || to == "" {
		log.Printf("[EMAIL] no address for user %s, dropping notification %d: %v", item.UserID, item.ID, err)
		return nil
	}

	body := item.Message
	if w.templates != nil {
		data := map[string]any{
			"Title":      item.Title,
			"Message":    item.Message,
			"GroupCount": item.GroupCount,
			"EntityType": item.EntityType,
			"EntityID":   item.EntityID,
			"Year":       time.Now().Year(),
		}
		if rendered, err := w.templates.RenderEmail(string(item.EventType), data); err == nil {
			body = rendered
		} else {
			log.Printf("[EMAIL] template render failed for %s, sending plain body: %v", item.EventType, err)
		}
	}

	if err := w.sender.Send(to, item.Title, body); err != nil {
		return err
	}
	log.Printf("[EMAIL] sent notification %d to user %s", item.ID, item.UserID)
	return nil
}

// requeueKey increments the attempt counter and reports which list the item
// goes back on: the main queue while attempts remain, the dead-letter list
// once exhausted.
func (w *Worker) requeueKey(item *queueItem) string {
	item.Attempts++
	if item.Attempts >= maxDeliveryAttempts {
		return w.key + ":dead"
	}
	return w.key
}

func (w *Worker) requeue(ctx context.Context, item *queueItem, cause error) {
	dest := w.requeueKey(item)
	raw, err := json.Marshal(item)
	if err != nil {
		log.Printf("[EMAIL] cannot re-marshal notification %d: %v", item.ID, err)
		return
	}
	if dest == w.key {
		log.Printf("[EMAIL] send failed for notification %d (attempt %d), requeueing: %v", item.ID, item.Attempts, cause)
	} else {
		log.Printf("[EMAIL] notification %d dead-lettered after %d attempts: %v", item.ID, item.Attempts, cause)
	}
	if err := w.rdb.LPush(ctx, dest, raw).Err(); err != nil {
		log.Printf("[EMAIL] requeue failed for notification %d: %v", item.ID, err)
	}
}
