// Copyright 2024 The CoAP PubSub Broker Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pubsub

import (
	"strings"
	"sync"
	"testing"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, format)
}

func newTestBroker() *Broker {
	return New("ps", &recordingLogger{})
}

func obs(v uint32) *uint32 { return &v }

func mustCreateTopic(t *testing.T, b *Broker, name string) (topicURI, dataURI string) {
	t.Helper()
	resp := b.Dispatch(Request{
		Method: MethodPOST,
		Path:   "ps",
		Body:   []byte(`{"topic-name":"` + name + `","resource-type":"core.ps.conf"}`),
	})
	if resp.Status != StatusCreated {
		t.Fatalf("create topic %q: status = %v, want StatusCreated", name, resp.Status)
	}
	location := gjsonMustGet(t, resp.Body, "Location-Path")
	dataPath := gjsonMustGet(t, resp.Body, "topic-data")
	return strings.TrimPrefix(location, "ps/"), strings.TrimPrefix(dataPath, "ps/data/")
}

func gjsonMustGet(t *testing.T, body []byte, key string) string {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("unmarshal response body %q: %s", body, err)
	}
	v, ok := m[key].(string)
	if !ok {
		t.Fatalf("response body %q missing string field %q", body, key)
	}
	return v
}

// S1: create a topic, then PUT its data for the first time: 2.01 Created, HalfCreated
// clears.
func TestCreateThenFirstPublishReturnsCreated(t *testing.T) {
	b := newTestBroker()
	_, dataURI := mustCreateTopic(t, b, "weather")

	resp := b.Dispatch(Request{Method: MethodPUT, Path: "ps/data/" + dataURI, Body: []byte(`{"temperature":21}`)})
	if resp.Status != StatusCreated {
		t.Fatalf("first publish: status = %v, want StatusCreated", resp.Status)
	}

	b.Registry.Lock()
	topic, _ := b.Registry.FindByDataURI(dataURI)
	halfCreated := topic.HalfCreated
	b.Registry.Unlock()
	if halfCreated {
		t.Fatal("HalfCreated still true after first publish")
	}
}

// S2: a second PUT to the same data resource is 2.04 Changed, not 2.01 Created again.
func TestSecondPublishReturnsChanged(t *testing.T) {
	b := newTestBroker()
	_, dataURI := mustCreateTopic(t, b, "weather")
	b.Dispatch(Request{Method: MethodPUT, Path: "ps/data/" + dataURI, Body: []byte(`{"temperature":21}`)})

	resp := b.Dispatch(Request{Method: MethodPUT, Path: "ps/data/" + dataURI, Body: []byte(`{"temperature":22}`)})
	if resp.Status != StatusChanged {
		t.Fatalf("second publish: status = %v, want StatusChanged", resp.Status)
	}
}

// Publishing to an unknown data_uri is 4.04, body "Topic data not found".
func TestPublishUnknownDataURINotFound(t *testing.T) {
	b := newTestBroker()
	resp := b.Dispatch(Request{Method: MethodPUT, Path: "ps/data/zzzzzz", Body: []byte(`{}`)})
	if resp.Status != StatusNotFound {
		t.Fatalf("status = %v, want StatusNotFound", resp.Status)
	}
	if string(resp.Body) != "Topic data not found" {
		t.Fatalf("body = %q, want %q", resp.Body, "Topic data not found")
	}
}

// S3: subscribing to a half-created topic (no publish yet) is 4.04 with the terminal
// Observe=1 marker, not the subscribe-ack sentinel.
func TestSubscribeHalfCreatedTopicNotFound(t *testing.T) {
	b := newTestBroker()
	_, dataURI := mustCreateTopic(t, b, "weather")

	resp := b.Dispatch(Request{
		Method: MethodGET, Path: "ps/data/" + dataURI, Observe: obs(ObserveSubscribe),
		Subscriber: stubSubscriber{addr: "10.0.0.1:1"},
	})
	if resp.Status != StatusNotFound {
		t.Fatalf("status = %v, want StatusNotFound", resp.Status)
	}
	if !resp.SetObserve || resp.Observe != ObserveUnsubscribe {
		t.Fatalf("Observe = %v (set=%v), want %d set=true", resp.Observe, resp.SetObserve, ObserveUnsubscribe)
	}
}

// S4: subscribing to a published topic succeeds with Content + the fixed subscribe-ack
// sentinel (never a running counter).
func TestSubscribePublishedTopicAcksWithSentinel(t *testing.T) {
	b := newTestBroker()
	_, dataURI := mustCreateTopic(t, b, "weather")
	b.Dispatch(Request{Method: MethodPUT, Path: "ps/data/" + dataURI, Body: []byte(`{"temperature":21}`)})

	resp := b.Dispatch(Request{
		Method: MethodGET, Path: "ps/data/" + dataURI, Observe: obs(ObserveSubscribe),
		Subscriber: stubSubscriber{addr: "10.0.0.1:1"},
	})
	if resp.Status != StatusContent {
		t.Fatalf("status = %v, want StatusContent", resp.Status)
	}
	if !resp.SetObserve || resp.Observe != ObserveSubscribeAck {
		t.Fatalf("Observe = %v (set=%v), want %d set=true", resp.Observe, resp.SetObserve, ObserveSubscribeAck)
	}
}

// Publishing after a subscription exists fans the new payload out to every subscriber.
func TestPublishNotifiesSubscribers(t *testing.T) {
	b := newTestBroker()
	_, dataURI := mustCreateTopic(t, b, "weather")
	b.Dispatch(Request{Method: MethodPUT, Path: "ps/data/" + dataURI, Body: []byte(`{"temperature":21}`)})

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	b.notify = func(log Logger, subs []Subscriber, payload []byte) {
		mu.Lock()
		got = payload
		mu.Unlock()
		close(done)
	}

	sub := stubSubscriber{addr: "10.0.0.1:1"}
	b.Dispatch(Request{Method: MethodGET, Path: "ps/data/" + dataURI, Observe: obs(ObserveSubscribe), Subscriber: sub})

	resp := b.Dispatch(Request{Method: MethodPUT, Path: "ps/data/" + dataURI, Body: []byte(`{"temperature":22}`)})
	if resp.Status != StatusChanged {
		t.Fatalf("status = %v, want StatusChanged", resp.Status)
	}

	<-done
	mu.Lock()
	defer mu.Unlock()
	if string(got) != `{"temperature":22}` {
		t.Fatalf("notified payload = %q, want %q", got, `{"temperature":22}`)
	}
}

// Unsubscribing always returns the terminal Observe=1 marker, whether or not the
// endpoint was actually subscribed.
func TestUnsubscribeAlwaysTerminal(t *testing.T) {
	b := newTestBroker()
	_, dataURI := mustCreateTopic(t, b, "weather")
	b.Dispatch(Request{Method: MethodPUT, Path: "ps/data/" + dataURI, Body: []byte(`{}`)})

	sub := stubSubscriber{addr: "10.0.0.1:1"}
	resp := b.Dispatch(Request{Method: MethodGET, Path: "ps/data/" + dataURI, Observe: obs(ObserveUnsubscribe), Subscriber: sub})
	if !resp.SetObserve || resp.Observe != ObserveUnsubscribe {
		t.Fatalf("Observe = %v (set=%v), want %d set=true", resp.Observe, resp.SetObserve, ObserveUnsubscribe)
	}
	if string(resp.Body) != "subscriber not found" {
		t.Fatalf("body = %q, want %q", resp.Body, "subscriber not found")
	}

	b.Dispatch(Request{Method: MethodGET, Path: "ps/data/" + dataURI, Observe: obs(ObserveSubscribe), Subscriber: sub})
	resp = b.Dispatch(Request{Method: MethodGET, Path: "ps/data/" + dataURI, Observe: obs(ObserveUnsubscribe), Subscriber: sub})
	if string(resp.Body) != "unsubscribed" {
		t.Fatalf("body = %q, want %q", resp.Body, "unsubscribed")
	}
}

// DELETE is idempotent: deleting an unknown topic_uri still answers 2.02 Deleted.
func TestDeleteTopicAlwaysDeleted(t *testing.T) {
	b := newTestBroker()
	topicURI, _ := mustCreateTopic(t, b, "weather")

	resp := b.Dispatch(Request{Method: MethodDELETE, Path: topicURI})
	if resp.Status != StatusDeleted {
		t.Fatalf("status = %v, want StatusDeleted", resp.Status)
	}

	resp = b.Dispatch(Request{Method: MethodDELETE, Path: topicURI})
	if resp.Status != StatusDeleted {
		t.Fatalf("second delete: status = %v, want StatusDeleted", resp.Status)
	}

	b.Registry.Lock()
	_, ok := b.Registry.FindByTopicURI(topicURI)
	b.Registry.Unlock()
	if ok {
		t.Fatal("topic still present after delete")
	}
}

func TestCreateTopicRejectsInvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing topic-name", `{"resource-type":"core.ps.conf"}`},
		{"missing resource-type", `{"topic-name":"weather"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker()
			resp := b.Dispatch(Request{Method: MethodPOST, Path: "ps", Body: []byte(tt.body)})
			if resp.Status != StatusBadRequest {
				t.Fatalf("status = %v, want StatusBadRequest", resp.Status)
			}
		})
	}
}

func TestReadLatestBeforeFirstPublishNotFound(t *testing.T) {
	b := newTestBroker()
	_, dataURI := mustCreateTopic(t, b, "weather")

	resp := b.Dispatch(Request{Method: MethodGET, Path: "ps/data/" + dataURI})
	if resp.Status != StatusNotFound {
		t.Fatalf("status = %v, want StatusNotFound", resp.Status)
	}
}

func TestReadLatestAfterPublish(t *testing.T) {
	b := newTestBroker()
	_, dataURI := mustCreateTopic(t, b, "weather")
	b.Dispatch(Request{Method: MethodPUT, Path: "ps/data/" + dataURI, Body: []byte(`{"temperature":30}`)})

	resp := b.Dispatch(Request{Method: MethodGET, Path: "ps/data/" + dataURI})
	if resp.Status != StatusContent {
		t.Fatalf("status = %v, want StatusContent", resp.Status)
	}
	if string(resp.Body) != `{"temperature":30}` {
		t.Fatalf("body = %q, want %q", resp.Body, `{"temperature":30}`)
	}
}

func TestTopicListingReflectsCreatedTopics(t *testing.T) {
	b := newTestBroker()
	mustCreateTopic(t, b, "weather")
	mustCreateTopic(t, b, "traffic")

	resp := b.Dispatch(Request{Method: MethodGET, Path: "discovery"})
	if resp.Status != StatusContent {
		t.Fatalf("status = %v, want StatusContent", resp.Status)
	}

	var listing [][]interface{}
	if err := json.Unmarshal(resp.Body, &listing); err != nil {
		t.Fatalf("unmarshal listing: %s", err)
	}
	if len(listing) != 2 {
		t.Fatalf("len(listing) = %d, want 2", len(listing))
	}
}

func TestPublishIncrementsFanoutGeneration(t *testing.T) {
	b := newTestBroker()
	_, dataURI := mustCreateTopic(t, b, "weather")
	sub := stubSubscriber{addr: "10.0.0.1:1"}

	b.Dispatch(Request{Method: MethodPUT, Path: "ps/data/" + dataURI, Body: []byte(`{}`)})
	b.Dispatch(Request{Method: MethodGET, Path: "ps/data/" + dataURI, Observe: obs(ObserveSubscribe), Subscriber: sub})

	b.Registry.Lock()
	topic, _ := b.Registry.FindByDataURI(dataURI)
	before := topic.DataResource.notifySeq
	b.Registry.Unlock()

	b.Dispatch(Request{Method: MethodPUT, Path: "ps/data/" + dataURI, Body: []byte(`{"temperature":1}`)})

	b.Registry.Lock()
	after := topic.DataResource.notifySeq
	b.Registry.Unlock()

	if after != before+1 {
		t.Fatalf("notifySeq = %d, want %d", after, before+1)
	}
}

func TestUnknownPathIsNotFound(t *testing.T) {
	b := newTestBroker()
	resp := b.Dispatch(Request{Method: MethodGET, Path: "bogus/path"})
	if resp.Status != StatusNotFound {
		t.Fatalf("status = %v, want StatusNotFound", resp.Status)
	}
}
