package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/routewise/engine/domain"
)

type fakeConn struct {
	published []*nats.Msg
}

func (f *fakeConn) PublishMsg(msg *nats.Msg) error {
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeConn) Subscribe(string, nats.MsgHandler) (*nats.Subscription, error) {
	return &nats.Subscription{}, nil
}

func (f *fakeConn) QueueSubscribe(string, string, nats.MsgHandler) (*nats.Subscription, error) {
	return &nats.Subscription{}, nil
}

func TestNATSRunPublisher(t *testing.T) {
	nc := &fakeConn{}
	p := NewNATSRunPublisher(nc)
	if err := p.Save(context.Background(), domain.AgentRunRecord{ID: "run-7", SubjectSlug: "express-delivery"}); err != nil {
		t.Fatal(err)
	}
	if len(nc.published) != 1 || nc.published[0].Subject != "routewise.runs.completed" {
		t.Fatalf("unexpected publish: %+v", nc.published)
	}
	var got domain.AgentRunRecord
	if err := json.Unmarshal(nc.published[0].Data, &got); err != nil || got.ID != "run-7" {
		t.Fatalf("payload: %v %+v", err, got)
	}
}
