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
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type createTopicPayload struct {
	TopicName    string `json:"topic-name"`
	ResourceType string `json:"resource-type"`
}

// handleCreateTopic is the POST handler. It distinguishes malformed JSON from a
// structurally-valid body missing a required field only in the log line; both map to
// 4.00 on the wire, per spec.
func (b *Broker) handleCreateTopic(req Request) Response {
	if !gjson.ValidBytes(req.Body) {
		b.Log.Printf("create topic: invalid json body from %s", subscriberAddr(req))
		return textResponse(StatusBadRequest, "Bad Request")
	}
	if !gjson.GetBytes(req.Body, "topic-name").Exists() || !gjson.GetBytes(req.Body, "resource-type").Exists() {
		b.Log.Printf("create topic: missing topic-name/resource-type from %s", subscriberAddr(req))
		return textResponse(StatusBadRequest, "Bad Request")
	}

	var payload createTopicPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		b.Log.Printf("create topic: unmarshal failed: %s", err)
		return textResponse(StatusBadRequest, "Bad Request")
	}

	b.Registry.Lock()
	topic := b.Registry.CreateTopic(payload.TopicName)
	topic.ResourceType = payload.ResourceType
	collection := b.Registry.CollectionName()
	b.Registry.Unlock()

	b.Log.Printf("topic %q created: topic_uri=%s data_uri=%s resource_type=%s", topic.TopicName, topic.TopicURI, topic.TopicDataURI, topic.ResourceType)

	body := []byte("{}")
	body, _ = sjson.SetBytes(body, "Location-Path", collection+"/"+topic.TopicURI)
	body, _ = sjson.SetBytes(body, "topic-name", topic.TopicName)
	body, _ = sjson.SetBytes(body, "topic-data", collection+"/data/"+topic.TopicDataURI)
	body, _ = sjson.SetBytes(body, "resource-type", topic.ResourceType)

	return Response{Status: StatusCreated, Body: body, ContentFormat: ContentFormatJSON}
}

// handlePublish is the PUT handler for ps/data/<data_uri>.
func (b *Broker) handlePublish(req Request, comps []string) Response {
	if len(comps) != 3 || comps[0] != b.Registry.CollectionName() || comps[1] != "data" {
		return b.handleInvalidPath(req)
	}
	dataURI := comps[2]

	b.Registry.Lock()
	topic, ok := b.Registry.FindByDataURI(dataURI)
	if !ok {
		b.Registry.Unlock()
		return textResponse(StatusNotFound, "Topic data not found")
	}

	wasHalfCreated := topic.HalfCreated
	topic.DataResource.Data = append([]byte(nil), req.Body...)
	topic.HalfCreated = false

	subs := topic.DataResource.Snapshot()
	payload := append([]byte(nil), topic.DataResource.Data...)
	seq := topic.DataResource.nextNotifySeq()
	b.Registry.Unlock()

	if len(subs) > 0 {
		b.Log.Printf("publish: data_uri=%s fanout_gen=%d subscribers=%d", dataURI, seq, len(subs))
		b.notify(b.Log, subs, payload)
	}

	if wasHalfCreated {
		return Response{Status: StatusCreated, Body: payload, ContentFormat: ContentFormatJSON}
	}
	return Response{Status: StatusChanged, Body: payload, ContentFormat: ContentFormatJSON}
}

// handleSubscribe is the GET-with-Observe=0 handler.
func (b *Broker) handleSubscribe(req Request, dataURI string) Response {
	b.Registry.Lock()
	defer b.Registry.Unlock()

	topic, ok := b.Registry.FindByDataURI(dataURI)
	if !ok || topic.HalfCreated {
		return Response{
			Status: StatusNotFound, Body: []byte("Topic data not found"),
			ContentFormat: ContentFormatJSON, Observe: ObserveUnsubscribe, SetObserve: true,
		}
	}

	topic.DataResource.AddSubscriber(req.Subscriber)

	return Response{
		Status:        StatusContent,
		Body:          append([]byte(nil), topic.DataResource.Data...),
		ContentFormat: ContentFormatPubSubData,
		Observe:       ObserveSubscribeAck,
		SetObserve:    true,
	}
}

// handleUnsubscribe is the GET-with-Observe=1 handler.
func (b *Broker) handleUnsubscribe(req Request, dataURI string) Response {
	b.Registry.Lock()
	defer b.Registry.Unlock()

	topic, ok := b.Registry.FindByDataURI(dataURI)
	if !ok {
		return textResponse(StatusNotFound, "Topic data not found")
	}

	removed := topic.DataResource.RemoveSubscriber(req.Subscriber)
	body := "unsubscribed"
	if !removed {
		body = "subscriber not found"
	}

	return Response{
		Status: StatusContent, Body: []byte(body),
		ContentFormat: ContentFormatJSON, Observe: ObserveUnsubscribe, SetObserve: true,
	}
}

// handleReadLatest is the plain GET (no Observe option) handler.
func (b *Broker) handleReadLatest(req Request, dataURI string) Response {
	b.Registry.Lock()
	defer b.Registry.Unlock()

	topic, ok := b.Registry.FindByDataURI(dataURI)
	if !ok || topic.HalfCreated {
		return textResponse(StatusNotFound, "Topic data not found")
	}

	return Response{
		Status:        StatusContent,
		Body:          append([]byte(nil), topic.DataResource.Data...),
		ContentFormat: ContentFormatJSON,
	}
}

// handleDeleteTopic is the DELETE handler. It always responds Deleted, regardless of
// whether topicURI existed, per spec's documented DELETE-idempotence design note.
func (b *Broker) handleDeleteTopic(req Request, comps []string) Response {
	if len(comps) != 1 {
		return b.handleInvalidPath(req)
	}
	topicURI := comps[0]

	b.Registry.Lock()
	if _, ok := b.Registry.FindByTopicURI(topicURI); ok {
		b.Registry.RemoveTopic(topicURI)
		b.Log.Printf("topic deleted: topic_uri=%s", topicURI)
	}
	b.Registry.Unlock()

	return textResponse(StatusDeleted, "Deleted")
}

// handleTopicListing is the non-standard GET discovery helper: a JSON array of
// [topic_name, ["topic:<topic_uri>", "data:<data_uri>"]] triples.
func (b *Broker) handleTopicListing(req Request) Response {
	b.Registry.Lock()
	topics := b.Registry.Topics()
	b.Registry.Unlock()

	listing := make([][]interface{}, 0, len(topics))
	for _, t := range topics {
		listing = append(listing, []interface{}{
			t.TopicName,
			[]string{"topic:" + t.TopicURI, "data:" + t.DataResource.DataURI},
		})
	}

	body, err := json.Marshal(listing)
	if err != nil {
		b.Log.Printf("topic listing: marshal failed: %s", err)
		body = []byte("[]")
	}

	return Response{Status: StatusContent, Body: body, ContentFormat: ContentFormatJSON}
}

func subscriberAddr(req Request) string {
	if req.Subscriber == nil {
		return "<unknown>"
	}
	return req.Subscriber.String()
}
