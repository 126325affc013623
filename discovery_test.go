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

import "testing"

// S6: the four well-known discovery queries produce exactly the link-format literals
// the draft's end-to-end scenario expects.
func TestBrokerDiscoveryLinkFormat(t *testing.T) {
	b := newTestBroker()
	resp := b.Dispatch(Request{Method: MethodGET, Path: ".well-known/core", Query: "rt=core.ps"})
	want := `</ps>;rt="core.ps"`
	if string(resp.Body) != want {
		t.Fatalf("body = %q, want %q", resp.Body, want)
	}
	if resp.ContentFormat != ContentFormatLinkFormat {
		t.Fatalf("content format = %d, want %d", resp.ContentFormat, ContentFormatLinkFormat)
	}
}

func TestCollectionDiscoveryLinkFormat(t *testing.T) {
	b := newTestBroker()
	resp := b.Dispatch(Request{Method: MethodGET, Path: ".well-known/core", Query: "rt=core.ps.coll"})
	want := `</ps>;rt="core.ps.coll";ct=40`
	if string(resp.Body) != want {
		t.Fatalf("body = %q, want %q", resp.Body, want)
	}
}

func TestConfigurationDiscoveryListsEachTopic(t *testing.T) {
	b := newTestBroker()
	topicURI, _ := mustCreateTopic(t, b, "weather")

	resp := b.Dispatch(Request{Method: MethodGET, Path: ".well-known/core", Query: "rt=core.ps.conf"})
	want := `</ps/` + topicURI + `>;rt="core.ps.conf"`
	if string(resp.Body) != want {
		t.Fatalf("body = %q, want %q", resp.Body, want)
	}
}

func TestDataDiscoveryListsEachDataResource(t *testing.T) {
	b := newTestBroker()
	_, dataURI := mustCreateTopic(t, b, "weather")

	resp := b.Dispatch(Request{Method: MethodGET, Path: ".well-known/core", Query: "rt=core.ps.data"})
	want := `</ps/data/` + dataURI + `>;rt="core.ps.data"`
	if string(resp.Body) != want {
		t.Fatalf("body = %q, want %q", resp.Body, want)
	}
}

func TestDiscoveryWithUnknownResourceTypeIsNotFound(t *testing.T) {
	b := newTestBroker()
	resp := b.Dispatch(Request{Method: MethodGET, Path: ".well-known/core", Query: "rt=not.a.real.type"})
	if resp.Status != StatusNotFound {
		t.Fatalf("status = %v, want StatusNotFound", resp.Status)
	}
}

func TestConfigurationDiscoveryEmptyWhenNoTopics(t *testing.T) {
	b := newTestBroker()
	resp := b.Dispatch(Request{Method: MethodGET, Path: ".well-known/core", Query: "rt=core.ps.conf"})
	if string(resp.Body) != "" {
		t.Fatalf("body = %q, want empty link-format document", resp.Body)
	}
}
