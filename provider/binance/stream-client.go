package binance

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"depthbridge/domain"
	"depthbridge/helpers"
)

var logger = logrus.WithField("component", "binance")

const handshakeTimeout = 5 * time.Second

// topicChanSize absorbs short consumer stalls; a message dropped on a full
// channel surfaces downstream as a sequence gap and forces a resync.
const topicChanSize = 256

type subscriptionEntry struct {
	ch              chan []byte
	subscriberCount int
}

type wsRequest struct {
	ReqID  int      `json:"id"`
	Params []string `json:"params"`
	Method string   `json:"method"`
}

// StreamClient multiplexes every watched topic over one websocket
// connection, subscribing and unsubscribing with control frames. It never
// reconnects on its own: a transport failure closes all topic channels and
// the next Subscribe call redials, so retry policy stays with the caller.
type StreamClient struct {
	endpoint string

	mu            sync.Mutex
	conn          *websocket.Conn
	subscriptions map[string]*subscriptionEntry
}

func NewStreamClient(endpoint string) *StreamClient {
	return &StreamClient{
		endpoint:      endpoint,
		subscriptions: make(map[string]*subscriptionEntry),
	}
}

func (c *StreamClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialLocked()
}

func (c *StreamClient) dialLocked() error {
	if c.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.Dial(c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.endpoint, err)
	}

	c.conn = conn
	go c.read(conn)

	logger.Infof("stream connected to %s", c.endpoint)
	return nil
}

func (c *StreamClient) Subscribe(topic string) (*domain.Subscription[[]byte], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dialLocked(); err != nil {
		return nil, err
	}

	if entry, ok := c.subscriptions[topic]; ok {
		entry.subscriberCount++
		return c.subscriptionLocked(topic, entry.ch), nil
	}

	ch := make(chan []byte, topicChanSize)
	c.subscriptions[topic] = &subscriptionEntry{
		ch:              ch,
		subscriberCount: 1,
	}

	logger.Debugf("subscribing to %s", topic)
	err := c.conn.WriteJSON(wsRequest{
		Method: "SUBSCRIBE",
		ReqID:  helpers.RandomReqID(),
		Params: []string{topic},
	})
	if err != nil {
		delete(c.subscriptions, topic)
		close(ch)
		return nil, fmt.Errorf("send subscribe frame for %s: %w", topic, err)
	}

	return c.subscriptionLocked(topic, ch), nil
}

func (c *StreamClient) subscriptionLocked(topic string, ch chan []byte) *domain.Subscription[[]byte] {
	return &domain.Subscription[[]byte]{
		Stream: ch,
		Topic:  topic,
		Unsubscribe: func() {
			c.unsubscribe(topic)
		},
	}
}

func (c *StreamClient) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[topic]
	if !ok {
		return
	}

	entry.subscriberCount--
	if entry.subscriberCount > 0 {
		return
	}

	logger.Debugf("unsubscribing from %s", topic)
	delete(c.subscriptions, topic)
	close(entry.ch)

	if c.conn == nil {
		return
	}
	err := c.conn.WriteJSON(wsRequest{
		Method: "UNSUBSCRIBE",
		ReqID:  helpers.RandomReqID(),
		Params: []string{topic},
	})
	if err != nil {
		logger.Warnf("send unsubscribe frame for %s: %v", topic, err)
	}
}

func (c *StreamClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.dropAllLocked()
	return err
}

func (c *StreamClient) read(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			// Only tear down if this connection is still current.
			if c.conn == conn {
				logger.Warnf("stream read failed, dropping all topics: %v", err)
				_ = conn.Close()
				c.dropAllLocked()
			}
			c.mu.Unlock()
			return
		}

		topic, ok := topicOf(msg)
		if !ok {
			// Control acks and anything without a stream field.
			logger.Debugf("ignoring non-stream message: %s", msg)
			continue
		}

		c.mu.Lock()
		if entry, ok := c.subscriptions[topic]; ok {
			select {
			case entry.ch <- msg:
			default:
				logger.Warnf("topic %s consumer stalled, dropping message", topic)
			}
		}
		c.mu.Unlock()
	}
}

func topicOf(msg []byte) (string, bool) {
	var envelope struct {
		Stream string `json:"stream"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil || envelope.Stream == "" {
		return "", false
	}
	return envelope.Stream, true
}

func (c *StreamClient) dropAllLocked() {
	for topic, entry := range c.subscriptions {
		close(entry.ch)
		delete(c.subscriptions, topic)
	}
	c.conn = nil
}
