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

// Package main is an interactive operator console for a running broker: a numbered
// menu mirroring the original client's 12 commands.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	pubsubclient "github.com/coap-pubsub/broker/client"
)

var (
	brokerAddr = flag.String("broker-addr", "127.0.0.1:5683", "unicast address of the broker to talk to")
	collection = flag.String("collection-name", "ps", "path segment of the broker's topic collection")
)

const menu = `
Enter command number:
1. topic name/uri/datauri discovery
2. subscribe <topic_data_uri>
3. unsubscribe <topic_data_uri>
4. create topic <topic_name>
5. update topic data: PUT <topic_data_uri> <payload>
6. delete topic configuration: DELETE <topic_uri>
7. multicast broker discovery
8. broker discovery
9. read latest data <topic_data_uri>
10. topic-configuration discovery
11. topic-data discovery
12. topic collection discovery
`

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

	var cancelSubscription func() error

	for {
		fmt.Println(menu)
		if !scanner.Scan() {
			return
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "1":
			printResult(c.TopicListing(ctx))
		case "2":
			if len(args) < 2 {
				fmt.Println("usage: 2 <topic_data_uri>")
				continue
			}
			if cancelSubscription != nil {
				_ = cancelSubscription()
			}
			cancel, err := c.Subscribe(ctx, *collection+"/data/"+args[1], func(payload []byte) {
				fmt.Printf("notification: %s\n", payload)
			})
			if err != nil {
				fmt.Println("subscribe failed:", err)
				continue
			}
			cancelSubscription = cancel
			fmt.Println("subscribed")
		case "3":
			if cancelSubscription == nil {
				fmt.Println("not subscribed")
				continue
			}
			if err := cancelSubscription(); err != nil {
				fmt.Println("unsubscribe failed:", err)
			}
			cancelSubscription = nil
		case "4":
			if len(args) < 2 {
				fmt.Println("usage: 4 <topic_name>")
				continue
			}
			topicURI, dataURI, err := c.CreateTopic(ctx, *collection, args[1], "core.ps.conf")
			if err != nil {
				fmt.Println("create topic failed:", err)
				continue
			}
			fmt.Printf("created: topic=%s data=%s\n", topicURI, dataURI)
		case "5":
			if len(args) < 3 {
				fmt.Println("usage: 5 <topic_data_uri> <payload>")
				continue
			}
			created, err := c.Publish(ctx, *collection+"/data/"+args[1], []byte(strings.Join(args[2:], " ")))
			if err != nil {
				fmt.Println("publish failed:", err)
				continue
			}
			fmt.Println("published, created:", created)
		case "6":
			if len(args) < 2 {
				fmt.Println("usage: 6 <topic_uri>")
				continue
			}
			if err := c.DeleteTopic(ctx, args[1]); err != nil {
				fmt.Println("delete failed:", err)
			}
		case "7":
			body, err := pubsubclient.MulticastDiscover(ctx, "core.ps", time.Second)
			printResult(body, err)
		case "8":
			printResult(c.Discover(ctx, "core.ps"))
		case "9":
			if len(args) < 2 {
				fmt.Println("usage: 9 <topic_data_uri>")
				continue
			}
			body, err := c.ReadLatest(ctx, *collection+"/data/"+args[1])
			if err != nil {
				fmt.Println("read latest failed:", err)
				continue
			}
			fmt.Printf("Response: %s\n", body)
		case "10":
			printResult(c.Discover(ctx, "core.ps.conf"))
		case "11":
			printResult(c.Discover(ctx, "core.ps.data"))
		case "12":
			printResult(c.Discover(ctx, "core.ps.coll"))
		default:
			fmt.Println("Invalid command. Please enter one from the list of commands.")
		}
	}
}

func printResult(body string, err error) {
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("Response: %s\n", body)
}
