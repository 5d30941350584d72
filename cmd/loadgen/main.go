// loadgen drives a running chat server with synthetic user pairs. Each pair
// opens two websocket connections, joins the shared room and exchanges
// messages, which exercises presence, the message pipeline and notification
// suppression under concurrency.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	wsURL    = flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
	pairs    = flag.Int("pairs", 25, "number of user pairs")
	messages = flag.Int("messages", 20, "messages per user")
	interval = flag.Duration("interval", 10*time.Millisecond, "delay between sends")
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var received sync.Map // event name -> *int64

func main() {
	flag.Parse()
	log.Printf("starting load: %d pairs, %d messages each", *pairs, *messages)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()

	log.Printf("done in %s", time.Since(start).Round(time.Millisecond))
	var lines []string
	received.Range(func(k, v any) bool {
		lines = append(lines, fmt.Sprintf("  %-22s %d", k.(string), atomic.LoadInt64(v.(*int64))))
		return true
	})
	sort.Strings(lines)
	log.Printf("events received:\n%s", strings.Join(lines, "\n"))
}

func runPair(pairID int) {
	userA := fmt.Sprintf("load-%d-a", pairID)
	userB := fmt.Sprintf("load-%d-b", pairID)
	roomID := roomFor(userA, userB)

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go runUser(&wsWg, userA, roomID)
	go runUser(&wsWg, userB, roomID)
	wsWg.Wait()
}

func runUser(wg *sync.WaitGroup, userID, roomID string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?userId=%s", *wsURL, userID), nil)
	if err != nil {
		log.Printf("connect failed [%s]: %v", userID, err)
		return
	}
	defer conn.Close()

	// Drain server events until the peer closes or we finish.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			count(env.Event)
		}
	}()

	if err := send(conn, "joinRoom", map[string]string{"roomId": roomID}); err != nil {
		log.Printf("joinRoom failed [%s]: %v", userID, err)
		return
	}

	for i := 0; i < *messages; i++ {
		err := send(conn, "sendMessage", map[string]string{
			"id":         uuid.NewString(),
			"roomId":     roomID,
			"senderId":   userID,
			"senderName": userID,
			"text":       fmt.Sprintf("load message %d from %s", i, userID),
		})
		if err != nil {
			log.Printf("send failed [%s]: %v", userID, err)
			return
		}
		time.Sleep(*interval)
	}

	// Give in-flight fan-out a moment to land before tearing down.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

func send(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(envelope{Event: event, Data: raw})
}

func count(event string) {
	v, _ := received.LoadOrStore(event, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// roomFor builds the canonical room id for a user pair.
func roomFor(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "_" + b
}
