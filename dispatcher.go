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

import "strings"

// Method is the CoAP request method, expressed independently of any particular
// transport library's code type.
type Method uint8

const (
	MethodGET Method = iota
	MethodPOST
	MethodPUT
	MethodDELETE
)

// Request is one decoded CoAP request: method, path, query string, the Observe option
// (nil if absent), payload bytes, and the endpoint that sent it. Transport.go is
// responsible for building one of these out of a real mux.Message.
type Request struct {
	Method     Method
	Path       string
	Query      string
	Observe    *uint32
	Body       []byte
	Subscriber Subscriber
}

// pathComponents splits a path on "/" and discards empty segments, per the dispatcher's
// first step.
func pathComponents(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// queryValue returns the value of key in a raw CoAP query string such as "rt=core.ps".
// CoAP queries arrive as a set of independent Uri-Query options; transport.go joins them
// with "&" before handing the Request to Dispatch, mirroring an HTTP-style query string.
func queryValue(query, key string) (string, bool) {
	for _, kv := range strings.Split(query, "&") {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if parts[0] != key {
			continue
		}
		if len(parts) == 2 {
			return parts[1], true
		}
		return "", true
	}
	return "", false
}

// Dispatch routes req to the handler selected by (method, path components, Observe),
// per the dispatch table. Path patterns not covered by any case fall through to the
// invalid-path handler (4.04).
func (b *Broker) Dispatch(req Request) Response {
	b.requestCount.Inc()
	comps := pathComponents(req.Path)

	switch req.Method {
	case MethodGET:
		return b.dispatchGET(req, comps)
	case MethodPOST:
		return b.handleCreateTopic(req)
	case MethodPUT:
		return b.handlePublish(req, comps)
	case MethodDELETE:
		return b.handleDeleteTopic(req, comps)
	default:
		return b.handleInvalidPath(req)
	}
}

func (b *Broker) dispatchGET(req Request, comps []string) Response {
	if len(comps) == 1 && comps[0] == "discovery" {
		return b.handleTopicListing(req)
	}

	if len(comps) >= 1 && comps[0] == ".well-known" && len(comps) >= 2 && comps[1] == "core" {
		if rt, ok := queryValue(req.Query, "rt"); ok {
			switch rt {
			case ResourceTypeBroker:
				return b.handleBrokerDiscovery(req)
			case ResourceTypeCollection:
				return b.handleCollectionDiscovery(req)
			case ResourceTypeConfiguration:
				return b.handleConfigurationDiscovery(req)
			case ResourceTypeData:
				return b.handleDataDiscovery(req)
			}
		}
		return b.handleInvalidPath(req)
	}

	if len(comps) == 3 && comps[0] == b.Registry.CollectionName() && comps[1] == "data" {
		dataURI := comps[2]
		switch {
		case req.Observe == nil:
			return b.handleReadLatest(req, dataURI)
		case *req.Observe == ObserveSubscribe:
			return b.handleSubscribe(req, dataURI)
		case *req.Observe == ObserveUnsubscribe:
			return b.handleUnsubscribe(req, dataURI)
		default:
			return b.handleInvalidPath(req)
		}
	}

	return b.handleInvalidPath(req)
}
