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

import "sync"

// Registry is the process-wide, mutex-guarded container of the single topic collection.
// It does not implement concurrent readers/writers itself: callers hold the lock (via
// Lock/Unlock) for the whole duration of a handler, per the concurrency discipline.
type Registry struct {
	mu         sync.Mutex
	collection *TopicCollection
}

// NewRegistry builds a registry around one empty TopicCollection named collectionName.
func NewRegistry(collectionName string) *Registry {
	return &Registry{
		collection: NewTopicCollection(collectionName),
	}
}

// Lock acquires exclusive access to the registry. Every handler must call this at entry
// and Unlock on every exit path, including error paths.
func (r *Registry) Lock() { r.mu.Lock() }

// Unlock releases exclusive access.
func (r *Registry) Unlock() { r.mu.Unlock() }

// CollectionName returns the root collection's path segment ("ps" by default). Safe to
// call without holding the lock: the name never changes after construction.
func (r *Registry) CollectionName() string {
	return r.collection.Name
}

// CreateTopic generates a unique (topic_uri, data_uri) pair, inserts a new half-created
// Topic under that pair, and returns it. Caller must hold the lock.
func (r *Registry) CreateTopic(name string) *Topic {
	topicURI := r.generateUniqueURI(func(candidate string) bool {
		return r.collection.hasTopicURI(candidate) || r.collection.hasDataURI(candidate)
	})
	dataURI := r.generateUniqueURI(func(candidate string) bool {
		return r.collection.hasDataURI(candidate) || r.collection.hasTopicURI(candidate) || candidate == topicURI
	})
	t := newTopic(name, topicURI, dataURI)
	r.collection.addTopic(t)
	return t
}

// generateUniqueURI retries generateURI until the candidate doesn't collide with
// anything exists reports true for. The draft's 36^6 space makes this loop terminate in
// practice on the first or second draw.
func (r *Registry) generateUniqueURI(exists func(string) bool) string {
	for {
		candidate := generateURI()
		if !exists(candidate) {
			return candidate
		}
	}
}

// RemoveTopic deletes the topic keyed by topicURI. No-op if absent. Caller must hold the
// lock.
func (r *Registry) RemoveTopic(topicURI string) {
	r.collection.removeTopic(topicURI)
}

// FindByTopicURI looks up a topic by its primary key. Caller must hold the lock.
func (r *Registry) FindByTopicURI(topicURI string) (*Topic, bool) {
	return r.collection.findByTopicURI(topicURI)
}

// FindByDataURI scans for the topic whose embedded data resource has the given data_uri.
// Caller must hold the lock.
func (r *Registry) FindByDataURI(dataURI string) (*Topic, bool) {
	return r.collection.findByDataURI(dataURI)
}

// Topics returns every topic currently in the collection. Caller must hold the lock; the
// returned slice is a fresh copy safe to range over after Unlock.
func (r *Registry) Topics() []*Topic {
	return r.collection.allTopics()
}

// TopicsByResourceType filters Topics() by ResourceType. Caller must hold the lock.
func (r *Registry) TopicsByResourceType(rt string) []*Topic {
	return r.collection.topicsByResourceType(rt)
}
