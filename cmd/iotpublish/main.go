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

// Package main is a simulated IoT publisher: it reads a temperature value from stdin
// in a loop and PUTs it to a configured data resource.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	pubsubclient "github.com/coap-pubsub/broker/client"
)

var (
	brokerAddr = flag.String("broker-addr", "127.0.0.1:5683", "unicast address of the broker to publish to")
	dataPath   = flag.String("data-path", "ps/data/topic1", "path of the data resource to PUT temperature readings to")
)

func main() {
	flag.Parse()

	c, err := pubsubclient.Dial(*brokerAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to dial %s: %s\n", *brokerAddr, err)
		os.Exit(1)
	}
	defer c.Close()

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Println("Enter new temperature value: ")
		if !scanner.Scan() {
			return
		}
		temperature, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			fmt.Println("Please enter a valid integer.")
			continue
		}

		payload := fmt.Sprintf(`{"temperature":%d}`, temperature)
		if _, err := c.Publish(ctx, *dataPath, []byte(payload)); err != nil {
			fmt.Println("Failed to update temperature:", err)
			continue
		}
		fmt.Println("Temperature updated successfully.")
	}
}
