// Package notify fans access notifications out to observers: the local
// bridge over WebSocket and, optionally, a Kafka topic.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

const (
	EventAccessAttempt = "access_attempt"
	ActionUnlock       = "unlock"
)

type UserSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AccessAttempt is broadcast for every emitted decision.
type AccessAttempt struct {
	Event     string        `json:"event"`
	DeviceID  string        `json:"deviceId"`
	Outcome   types.Outcome `json:"outcome"`
	Reason    *string       `json:"reason"`
	User      *UserSummary  `json:"user,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// UnlockCommand asks the local bridge to open a lock.
type UnlockCommand struct {
	Action   string `json:"action"`
	DeviceID string `json:"deviceId"`
	UserID   int64  `json:"userId"`
}

func NewAccessAttempt(d types.AccessDecision) AccessAttempt {
	msg := AccessAttempt{
		Event:     EventAccessAttempt,
		DeviceID:  d.DeviceID,
		Outcome:   d.Outcome,
		Reason:    d.DenialReason,
		Timestamp: d.OccurredAt,
	}
	if d.UserID != nil {
		msg.User = &UserSummary{ID: *d.UserID, Name: d.UserName}
	}
	return msg
}

func NewUnlockCommand(deviceID string, userID int64) UnlockCommand {
	return UnlockCommand{Action: ActionUnlock, DeviceID: deviceID, UserID: userID}
}

// Observer receives encoded notifications.  key groups messages for one
// device.  Delivery is best effort; an error means this observer missed
// the message, nothing more.
type Observer interface {
	Broadcast(ctx context.Context, key string, payload []byte) error
}

// Broadcaster encodes a message once and hands it to every observer.
type Broadcaster struct {
	observers []Observer
}

func NewBroadcaster(observers ...Observer) *Broadcaster {
	b := &Broadcaster{}
	for _, o := range observers {
		if o != nil {
			b.observers = append(b.observers, o)
		}
	}
	return b
}

// Publish sends msg to all observers.  Every observer is tried; the
// returned error joins the individual failures.
func (b *Broadcaster) Publish(ctx context.Context, key string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	var errs []error
	for _, o := range b.observers {
		if err := o.Broadcast(ctx, key, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
