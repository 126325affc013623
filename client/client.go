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

// Package client is a thin CoAP pubsub client: discovery, topic create/publish/read/
// delete, and an Observe-backed Subscribe that sustains a long-lived observation
// session. It is a peripheral collaborator of the broker, never touching the registry
// lock directly; every operation is an ordinary CoAP round-trip (or, for Subscribe, an
// Observe registration) against a running broker.
package client

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	"github.com/plgd-dev/go-coap/v3/udp"
	udpClient "github.com/plgd-dev/go-coap/v3/udp/client"
	"github.com/tidwall/gjson"

	pubsub "github.com/coap-pubsub/broker"
)

// Client is a single connected endpoint talking to one broker.
type Client struct {
	conn *udpClient.Conn
}

// Dial opens a connected UDP socket to a broker's unicast address.
func Dial(addr string) (*Client, error) {
	conn, err := udp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Discover issues one GET .well-known/core?rt=<rt> and returns the raw link-format
// body.
func (c *Client) Discover(ctx context.Context, rt string) (string, error) {
	resp, err := c.conn.Get(ctx, ".well-known/core?rt="+rt)
	if err != nil {
		return "", err
	}
	body, err := resp.ReadBody()
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// TopicListing issues the non-standard GET discovery helper and returns its raw JSON
// array body.
func (c *Client) TopicListing(ctx context.Context) (string, error) {
	resp, err := c.conn.Get(ctx, "discovery")
	if err != nil {
		return "", err
	}
	body, err := resp.ReadBody()
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// CreateTopic POSTs {topic-name, resource-type} to the collection root and returns the
// newly created topic's URI and data URI, parsed out of the broker's Location-Path /
// topic-data JSON fields.
func (c *Client) CreateTopic(ctx context.Context, collection, name, resourceType string) (topicURI, dataURI string, err error) {
	payload := fmt.Sprintf(`{"topic-name":%q,"resource-type":%q}`, name, resourceType)
	resp, err := c.conn.Post(ctx, collection, message.AppJSON, bytes.NewReader([]byte(payload)))
	if err != nil {
		return "", "", err
	}
	if resp.Code() != codes.Created {
		return "", "", fmt.Errorf("create topic: unexpected response code %v", resp.Code())
	}
	body, err := resp.ReadBody()
	if err != nil {
		return "", "", err
	}
	locationPath, dataPath, perr := parseCreateTopicBody(body)
	if perr != nil {
		return "", "", perr
	}
	return strings.TrimPrefix(locationPath, collection+"/"), strings.TrimPrefix(dataPath, collection+"/data/"), nil
}

// Publish PUTs payload to ps/data/<dataURI>. created reports whether the broker
// responded 2.01 (first publish) rather than 2.04 (subsequent publish).
func (c *Client) Publish(ctx context.Context, dataPath string, payload []byte) (created bool, err error) {
	resp, err := c.conn.Put(ctx, dataPath, message.AppJSON, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	switch resp.Code() {
	case codes.Created:
		return true, nil
	case codes.Changed:
		return false, nil
	default:
		return false, fmt.Errorf("publish: unexpected response code %v", resp.Code())
	}
}

// ReadLatest GETs dataPath with no Observe option and returns the raw payload.
func (c *Client) ReadLatest(ctx context.Context, dataPath string) ([]byte, error) {
	resp, err := c.conn.Get(ctx, dataPath)
	if err != nil {
		return nil, err
	}
	if resp.Code() != codes.Content {
		return nil, fmt.Errorf("read latest: unexpected response code %v", resp.Code())
	}
	return resp.ReadBody()
}

// DeleteTopic DELETEs topicPath. The broker always responds Deleted, per spec.
func (c *Client) DeleteTopic(ctx context.Context, topicPath string) error {
	resp, err := c.conn.Delete(ctx, topicPath)
	if err != nil {
		return err
	}
	if resp.Code() != codes.Deleted {
		return fmt.Errorf("delete topic: unexpected response code %v", resp.Code())
	}
	return nil
}

// Subscribe issues a GET with Observe=0 on dataPath and invokes onNotify for every
// subsequent notification, until cancel is called or the broker sends a terminal
// (Observe=1) response.
func (c *Client) Subscribe(ctx context.Context, dataPath string, onNotify func(payload []byte)) (cancel func() error, err error) {
	obs, err := c.conn.Observe(ctx, dataPath, func(notification *pool.Message) {
		if v, obsErr := notification.Observe(); obsErr == nil && v == pubsub.ObserveUnsubscribe {
			return
		}
		body, readErr := notification.ReadBody()
		if readErr != nil {
			return
		}
		onNotify(body)
	})
	if err != nil {
		return nil, err
	}
	return func() error {
		return obs.Cancel(ctx)
	}, nil
}

// MulticastDiscover sends one non-confirmable GET to the CoAP multicast group and
// returns the body of the first reply that arrives within window (default 1s, per
// spec's discovery timeout). Because this dials a multicast destination with a connected UDP socket, it
// reliably observes only the first responding broker; collecting every reply from a
// multi-broker deployment would require bypassing the connected-socket client
// abstraction entirely, which is out of scope for this helper.
func MulticastDiscover(ctx context.Context, rt string, window time.Duration) (string, error) {
	if window <= 0 {
		window = time.Second
	}
	addr := net.JoinHostPort(pubsub.MulticastGroup, strconv.Itoa(pubsub.MulticastPort))

	conn, err := udp.Dial(addr)
	if err != nil {
		return "", fmt.Errorf("dial multicast group: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	resp, err := conn.Get(ctx, ".well-known/core?rt="+rt)
	if err != nil {
		return "", err
	}
	body, err := resp.ReadBody()
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func parseCreateTopicBody(body []byte) (locationPath, topicData string, err error) {
	location := gjson.GetBytes(body, "Location-Path").String()
	data := gjson.GetBytes(body, "topic-data").String()
	if location == "" || data == "" {
		return "", "", fmt.Errorf("create topic: malformed response body %q", body)
	}
	return location, data, nil
}
