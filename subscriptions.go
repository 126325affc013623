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

// notifySubscribers fans a publish out to every subscriber as an independent, best-
// effort unicast notification. It must be called only after the registry lock has been
// released: subs and payload are owned local values by the time this runs, never the
// live map/slice backing the registry.
//
// Failures are logged and discarded; the subscriber is never evicted here (eviction is
// an explicit non-goal, matching the original broker's behaviour).
func notifySubscribers(log Logger, subs []Subscriber, payload []byte) {
	for _, s := range subs {
		s := s
		go func() {
			err := s.WriteNotification(int(StatusChanged), ContentFormatPubSubData, ObserveNotification, payload)
			if err != nil {
				log.Printf("fanout: notify %s failed: %s", s.String(), err)
			}
		}()
	}
}
