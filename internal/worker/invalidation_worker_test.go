package worker

import (
	"context"
	"errors"
	"testing"

	"locagest/internal/amqp"
)

type countingInvalidator struct {
	got []*amqp.SummariesInvalidatedMessage
}

func (c *countingInvalidator) ApplyInvalidation(msg *amqp.SummariesInvalidatedMessage) int {
	c.got = append(c.got, msg)
	return len(msg.ContractIDs)
}

type sliceConsumer struct {
	msgs []*amqp.SummariesInvalidatedMessage
	err  error
}

func (s *sliceConsumer) ConsumeSummariesInvalidated(ctx context.Context, handler func(*amqp.SummariesInvalidatedMessage) error) error {
	for _, m := range s.msgs {
		if err := handler(m); err != nil {
			return err
		}
	}
	return s.err
}

func TestHandleMessage(t *testing.T) {
	inv := &countingInvalidator{}
	w := NewInvalidationWorker(inv)

	msg := amqp.NewSummariesInvalidatedMessage(amqp.ReasonPayment, "", []string{"c1"})
	if err := w.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(inv.got) != 1 || inv.got[0] != msg {
		t.Fatalf("message not forwarded: %+v", inv.got)
	}
	if err := w.HandleMessage(context.Background(), nil); err == nil {
		t.Error("expected error for nil message")
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantErr  bool
		wantMsgs int
	}{
		{"cancelled is clean", context.Canceled, false, 2},
		{"channel closed", errors.New("message channel closed"), true, 2},
		{"no error", nil, false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &countingInvalidator{}
			consumer := &sliceConsumer{
				msgs: []*amqp.SummariesInvalidatedMessage{
					amqp.NewSummariesInvalidatedMessage(amqp.ReasonMigration, "run-1", nil),
					amqp.NewSummariesInvalidatedMessage(amqp.ReasonPayment, "", []string{"a", "b"}),
				},
				err: tt.err,
			}

			err := NewInvalidationWorker(inv).Run(context.Background(), consumer)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(inv.got) != tt.wantMsgs {
				t.Errorf("expected %d messages applied, got %d", tt.wantMsgs, len(inv.got))
			}
		})
	}
}
