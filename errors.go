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

import "errors"

// Error kinds used internally to classify a failure before it's translated to an
// on-wire response code. None of these ever escape a handler.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidJSON    = errors.New("invalid json")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidObserve = errors.New("invalid observe value")
)

// Response is the decoupled-from-transport result of a handler: a status, an optional
// payload, and the options a dispatcher needs to set on the outgoing CoAP message.
type Response struct {
	Status        Status
	Body          []byte
	ContentFormat uint16
	Observe       uint32
	SetObserve    bool
}

// Status is a CoAP response code expressed independently of any particular CoAP
// library's code type, so the core package has no hard dependency on the transport.
type Status uint8

const (
	StatusCreated Status = iota
	StatusDeleted
	StatusChanged
	StatusContent
	StatusBadRequest
	StatusNotFound
)

const (
	// ContentFormatLinkFormat is RFC 6690's application/link-format (ct=40).
	ContentFormatLinkFormat uint16 = 40
	// ContentFormatJSON is application/json.
	ContentFormatJSON uint16 = 50
	// ContentFormatPubSubData is the free numeric content-type used opaquely for
	// subscriber notification frames, per the draft.
	ContentFormatPubSubData uint16 = 110
)

const (
	// ObserveSubscribe is the request-side Observe value meaning "start observing".
	ObserveSubscribe uint32 = 0
	// ObserveUnsubscribe is the request-side Observe value meaning "stop observing";
	// it is also the response-side "terminal" marker.
	ObserveUnsubscribe uint32 = 1
	// ObserveSubscribeAck is the non-terminal sentinel on a successful Subscribe
	// response.
	ObserveSubscribeAck uint32 = 10001
	// ObserveNotification is the non-terminal sentinel on every publish fan-out
	// notification.
	ObserveNotification uint32 = 10002
)

func textResponse(status Status, text string) Response {
	return Response{Status: status, Body: []byte(text), ContentFormat: ContentFormatJSON}
}
