package notifications

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/cuidarlink/clinic-app/db"
	"github.com/cuidarlink/clinic-app/models"
	"github.com/cuidarlink/clinic-app/redis"
)

// Dispatch runs fn on its own goroutine. Callers invoke it strictly after
// their transaction has committed; whatever fn does can be logged but can
// no longer change the response the caller already sent.
func Dispatch(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("side effect panicked: %v", r)
			}
		}()
		fn()
	}()
}

// Notify stores an in-app notification and pushes it to any connected
// client session. Both halves are best effort.
func Notify(userID uint, notifType, message, path string) {
	notification := models.Notification{
		UserID:  userID,
		Type:    notifType,
		Message: message,
		Path:    path,
	}
	if err := db.DB.Create(&notification).Error; err != nil {
		log.Printf("Failed to store notification for user %d: %v", userID, err)
	}
	Emit(userID, notifType, notificationPayload{
		Message: message,
		Path:    path,
	})
}

type notificationPayload struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Emit publishes a real-time event for the user over redis pub/sub. No
// connected session is not an error.
func Emit(userID uint, event string, payload any) {
	if redis.Client == nil {
		return
	}
	body, err := json.Marshal(map[string]any{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		log.Printf("Failed to marshal event %q for user %d: %v", event, userID, err)
		return
	}
	channel := fmt.Sprintf("user:%d", userID)
	if err := redis.Client.Publish(redis.Ctx, channel, body).Err(); err != nil {
		log.Printf("Failed to publish event %q to %s: %v", event, channel, err)
	}
}
