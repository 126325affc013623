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

// Package main runs the CoAP pubsub broker: the topic/observation engine listening on
// a unicast socket and the IPv4 CoAP multicast group.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	pubsub "github.com/coap-pubsub/broker"
)

var (
	unicastAddr    = flag.String("unicast-addr", "127.0.0.1:5683", "UDP address to listen on for unicast CoAP requests")
	multicastAddr  = flag.String("multicast-addr", pubsub.DefaultMulticastAddr(), "IPv4 multicast group:port to join for CoAP discovery")
	collectionName = flag.String("collection-name", "ps", "path segment of the root topic collection")
)

func setFromEnv() {
	envs := map[string]*string{
		"COAPPS_UNICAST_ADDR":    unicastAddr,
		"COAPPS_MULTICAST_ADDR":  multicastAddr,
		"COAPPS_COLLECTION_NAME": collectionName,
	}
	for name, ptr := range envs {
		if val := os.Getenv(name); val != "" {
			*ptr = val
		}
	}
}

type logger struct{}

func (l *logger) Printf(format string, v ...interface{}) {
	logrus.Infof(format+"\n", v...)
}

func main() {
	setFromEnv()
	flag.Parse()

	broker := pubsub.New(*collectionName, &logger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logrus.Infof("shutting down")
		cancel()
	}()

	logrus.Infof("coap pubsub broker: collection=%q unicast=%s multicast=%s", *collectionName, *unicastAddr, *multicastAddr)
	if err := broker.ListenAndServe(ctx, *unicastAddr, *multicastAddr); err != nil && err != context.Canceled {
		logrus.WithError(err).Fatal("broker stopped")
	}
}
