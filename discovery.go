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
	"strconv"
	"strings"
)

// linkFormatWriter assembles an RFC 6690 link-format document: a comma-separated list
// of "<uri>;attr=value;..." entries. There is no link-format library in the dependency
// pack this broker draws from, so this is a small hand-rolled builder rather than a
// wire-codec replacement (the CoAP wire codec itself remains plgd-dev/go-coap/v3's job).
type linkFormatWriter struct {
	entries []string
}

func (w *linkFormatWriter) link(uri string) *linkEntry {
	return &linkEntry{w: w, buf: "<" + uri + ">"}
}

func (w *linkFormatWriter) String() string {
	return strings.Join(w.entries, ",")
}

type linkEntry struct {
	w   *linkFormatWriter
	buf string
}

func (e *linkEntry) attr(name, value string) *linkEntry {
	e.buf += ";" + name + "=\"" + value + "\""
	return e
}

func (e *linkEntry) attrInt(name string, value int) *linkEntry {
	e.buf += ";" + name + "=" + strconv.Itoa(value)
	return e
}

func (e *linkEntry) done() *linkFormatWriter {
	e.w.entries = append(e.w.entries, e.buf)
	return e.w
}

// handleBrokerDiscovery answers GET .well-known/core?rt=core.ps: one link to the
// broker's own collection root, attribute rt=core.ps.
func (b *Broker) handleBrokerDiscovery(req Request) Response {
	w := &linkFormatWriter{}
	w.link("/" + b.Registry.CollectionName()).attr("rt", ResourceTypeBroker).done()
	return linkFormatResponse(w)
}

// handleCollectionDiscovery answers GET .well-known/core?rt=core.ps.coll: one link to
// the collection, rt=core.ps.coll, ct=40.
func (b *Broker) handleCollectionDiscovery(req Request) Response {
	w := &linkFormatWriter{}
	w.link("/" + b.Registry.CollectionName()).attr("rt", ResourceTypeCollection).attrInt("ct", int(ContentFormatLinkFormat)).done()
	return linkFormatResponse(w)
}

// handleConfigurationDiscovery answers GET .well-known/core?rt=core.ps.conf: one link
// per topic whose resource type is core.ps.conf.
func (b *Broker) handleConfigurationDiscovery(req Request) Response {
	b.Registry.Lock()
	topics := b.Registry.TopicsByResourceType(ResourceTypeConfiguration)
	collection := b.Registry.CollectionName()
	b.Registry.Unlock()

	w := &linkFormatWriter{}
	for _, t := range topics {
		w.link("/" + collection + "/" + t.TopicURI).attr("rt", ResourceTypeConfiguration).done()
	}
	return linkFormatResponse(w)
}

// handleDataDiscovery answers GET .well-known/core?rt=core.ps.data: one link per
// topic's embedded data resource.
func (b *Broker) handleDataDiscovery(req Request) Response {
	b.Registry.Lock()
	topics := b.Registry.Topics()
	collection := b.Registry.CollectionName()
	b.Registry.Unlock()

	w := &linkFormatWriter{}
	for _, t := range topics {
		w.link("/" + collection + "/data/" + t.DataResource.DataURI).attr("rt", ResourceTypeData).done()
	}
	return linkFormatResponse(w)
}

func linkFormatResponse(w *linkFormatWriter) Response {
	return Response{
		Status:        StatusContent,
		Body:          []byte(w.String()),
		ContentFormat: ContentFormatLinkFormat,
	}
}
