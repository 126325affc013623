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
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/mux"
	coapNet "github.com/plgd-dev/go-coap/v3/net"
	"github.com/plgd-dev/go-coap/v3/udp"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// MulticastGroup is the IPv4 CoAP multicast group every broker joins, per RFC 7252
// §12.8 and the draft's discovery model.
const MulticastGroup = "224.0.1.187"

// MulticastPort is the well-known CoAP port.
const MulticastPort = 5683

// DefaultMulticastAddr is MulticastGroup:MulticastPort, bound on interface 0.0.0.0.
func DefaultMulticastAddr() string {
	return net.JoinHostPort(MulticastGroup, strconv.Itoa(MulticastPort))
}

var statusToCode = map[Status]codes.Code{
	StatusCreated:    codes.Created,
	StatusDeleted:    codes.Deleted,
	StatusChanged:    codes.Changed,
	StatusContent:    codes.Content,
	StatusBadRequest: codes.BadRequest,
	StatusNotFound:   codes.NotFound,
}

// connSubscriber adapts a live mux.Conn + CoAP token into the core package's Subscriber
// interface, so the subscription engine can push a notification outside of the
// request/response cycle that created it.
type connSubscriber struct {
	conn  mux.Conn
	token message.Token
	addr  string
}

func newConnSubscriber(w mux.ResponseWriter, r *mux.Message) *connSubscriber {
	return &connSubscriber{
		conn:  w.Conn(),
		token: r.Token(),
		addr:  w.Conn().RemoteAddr().String(),
	}
}

func (c *connSubscriber) String() string { return c.addr }

// WriteNotification, Subscribe-ack, and Unsubscribe-ack all need the Observe option set
// on the reply, which mux.ResponseWriter.SetResponse has no way to express. Those
// responses are built by hand off the underlying mux.Conn instead, the same way the
// fan-out path does. The code passed to WriteNotification is a core Status value and is
// mapped to its CoAP response code here.
func (c *connSubscriber) WriteNotification(code int, contentFormat uint16, observe uint32, payload []byte) error {
	coapCode, ok := statusToCode[Status(code)]
	if !ok {
		coapCode = codes.InternalServerError
	}
	return writeObserveMessage(c.conn, c.token, int(coapCode), contentFormat, observe, payload)
}

func writeObserveMessage(conn mux.Conn, token message.Token, code int, contentFormat uint16, observe uint32, payload []byte) error {
	m := conn.AcquireMessage(conn.Context())
	defer conn.ReleaseMessage(m)
	m.SetCode(codes.Code(code))
	m.SetToken(token)
	if len(payload) > 0 {
		m.SetBody(bytes.NewReader(payload))
	}
	m.SetContentFormat(message.MediaType(contentFormat))
	m.SetObserve(observe)
	return conn.WriteMessage(m)
}

// Handler returns a mux.HandlerFunc that adapts Broker.Dispatch onto a real mux.Router,
// suitable for both the unicast and the multicast listener.
func (b *Broker) Handler() mux.HandlerFunc {
	return func(w mux.ResponseWriter, r *mux.Message) {
		req, err := toRequest(w, r)
		if err != nil {
			b.Log.Printf("transport: malformed request from %s: %s", w.Conn().RemoteAddr(), err)
			_ = w.SetResponse(codes.BadRequest, message.TextPlain, bytes.NewReader([]byte("Bad Request")))
			return
		}

		resp := b.Dispatch(req)
		writeResponse(b.Log, w, r, resp)
	}
}

func toRequest(w mux.ResponseWriter, r *mux.Message) (Request, error) {
	path, err := r.Options().Path()
	if err != nil && r.Code() != codes.GET {
		// POST to the bare collection root and DELETE of a topic_uri both arrive with
		// a valid, non-empty path in practice; a genuine decode failure is rare enough
		// that we still surface it rather than silently routing to "".
		return Request{}, fmt.Errorf("path: %w", err)
	}

	queries, _ := r.Options().Queries()

	var observe *uint32
	if obs, obsErr := r.Options().Observe(); obsErr == nil {
		v := obs
		observe = &v
	}

	body, _ := r.Message.ReadBody()

	req := Request{
		Path:       path,
		Query:      strings.Join(queries, "&"),
		Observe:    observe,
		Body:       body,
		Subscriber: newConnSubscriber(w, r),
	}

	switch r.Code() {
	case codes.GET:
		req.Method = MethodGET
	case codes.POST:
		req.Method = MethodPOST
	case codes.PUT:
		req.Method = MethodPUT
	case codes.DELETE:
		req.Method = MethodDELETE
	default:
		return Request{}, fmt.Errorf("unsupported method %v", r.Code())
	}
	return req, nil
}

// writeResponse sends resp back to the requester. Responses carrying an Observe option
// bypass SetResponse (which has no parameter for it) and go through the same manual
// message-building path as subscriber fan-out.
func writeResponse(log Logger, w mux.ResponseWriter, r *mux.Message, resp Response) {
	code, ok := statusToCode[resp.Status]
	if !ok {
		code = codes.InternalServerError
	}

	var err error
	if resp.SetObserve {
		err = writeObserveMessage(w.Conn(), r.Token(), int(code), resp.ContentFormat, resp.Observe, resp.Body)
	} else if len(resp.Body) > 0 {
		err = w.SetResponse(code, message.MediaType(resp.ContentFormat), bytes.NewReader(resp.Body))
	} else {
		err = w.SetResponse(code, message.MediaType(resp.ContentFormat), nil)
	}
	if err != nil {
		log.Printf("transport: write response failed: %s", err)
	}
}

// ListenAndServe runs the unicast and multicast listeners until ctx is cancelled or
// either listener fails. The library's own Observe bookkeeping plays no part here:
// Observe semantics are implemented entirely by the subscription engine (C5), so the
// router never needs the transport to track observations on its own.
func (b *Broker) ListenAndServe(ctx context.Context, unicastAddr, multicastAddr string) error {
	router := mux.NewRouter()
	router.DefaultHandle(b.Handler())

	unicastListener, err := coapNet.NewListenUDP("udp", unicastAddr)
	if err != nil {
		return fmt.Errorf("unicast listen: %w", err)
	}
	defer unicastListener.Close()

	multicastUDPConn, err := newMulticastConn(multicastAddr)
	if err != nil {
		return fmt.Errorf("multicast listen: %w", err)
	}
	defer multicastUDPConn.Close()
	multicastListener := coapNet.NewUDPConn("udp", multicastUDPConn)
	defer multicastListener.Close()

	server := udp.NewServer(udp.WithMux(router))
	defer server.Stop()

	errCh := make(chan error, 2)
	go func() { errCh <- server.Serve(unicastListener) }()
	go func() { errCh <- server.Serve(multicastListener) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// newMulticastConn opens a UDP socket bound to addr's port on 0.0.0.0, sets
// SO_REUSEADDR before bind so multiple brokers can share the multicast port on one
// host, and joins the IPv4 CoAP multicast group on the system-assigned multicast
// interface (JoinGroup with a nil interface). Mirrors the original
// broker's socket2-based setup (bind, set_reuse_address, join_multicast_v4).
func newMulticastConn(addr string) (*net.UDPConn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("0.0.0.0", port))
	if err != nil {
		return nil, err
	}
	udpConn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("multicast: unexpected packet conn type %T", pc)
	}

	pconn := ipv4.NewPacketConn(udpConn)
	if err := pconn.JoinGroup(nil, &net.UDPAddr{IP: net.ParseIP(host)}); err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("join multicast group: %w", err)
	}
	return udpConn, nil
}
