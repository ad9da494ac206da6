package notify

import (
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCompletionLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	done := completionLogger("lock-access-events", zap.New(core))

	done([]kafka.Message{{Key: []byte("L1")}, {Key: []byte("L2")}}, errors.New("broker unreachable"))
	done([]kafka.Message{{Key: []byte("L1")}}, nil)

	failed := logs.FilterMessage("kafka delivery failed").All()
	if len(failed) != 1 {
		t.Fatalf("delivery failures logged = %d, want 1", len(failed))
	}
	if got := failed[0].ContextMap()["messages"]; got != int64(2) {
		t.Errorf("messages = %v, want 2", got)
	}
	if logs.FilterMessage("kafka batch delivered").Len() != 1 {
		t.Error("expected delivered batch at debug")
	}
}
