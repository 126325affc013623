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

import "go.uber.org/atomic"

// Broker wires the registry (C2) and the handler set (C4/C5/C6) together behind one
// Dispatch entrypoint. It carries no transport-specific state; transport.go adapts a
// real mux.Router onto it.
type Broker struct {
	Registry *Registry
	Log      Logger

	// notify performs the subscription engine's fan-out. It is a field rather than a
	// free function so tests can substitute a synchronous, capturing implementation
	// instead of racing against real goroutines.
	notify func(log Logger, subs []Subscriber, payload []byte)

	// requestCount is read by operators/metrics without ever touching the registry
	// lock, so it's a lock-free counter rather than a field guarded by Registry.mu.
	requestCount atomic.Uint64
}

// New constructs a Broker around a fresh, empty TopicCollection named collectionName
// (conventionally "ps").
func New(collectionName string, log Logger) *Broker {
	if log == nil {
		log = nopLogger{}
	}
	return &Broker{
		Registry: NewRegistry(collectionName),
		Log:      log,
		notify:   notifySubscribers,
	}
}

// RequestCount reports how many requests Dispatch has handled since the broker started.
func (b *Broker) RequestCount() uint64 {
	return b.requestCount.Load()
}

func (b *Broker) handleInvalidPath(req Request) Response {
	return Response{Status: StatusNotFound, Body: []byte("Not found"), ContentFormat: ContentFormatJSON}
}
