// The notifier consumes booking lifecycle events from Kafka and delivers
// them to users: over a live WebSocket when one exists, otherwise via the
// configured push provider. Delivery is at-least-once; users may see a
// notification twice after a redelivery and that is fine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/carpool/internal/dispatch"
	"github.com/example/carpool/internal/events"
)

var (
	eventsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifier_events_consumed_total",
		Help: "Total lifecycle events consumed",
	})
	eventsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifier_events_invalid_total",
		Help: "Total invalid messages received",
	})
	notifyOK = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifier_deliveries_total",
		Help: "Total successful notification deliveries",
	})
	notifyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifier_delivery_errors_total",
		Help: "Total notification delivery failures",
	})
)

func init() {
	prometheus.MustRegister(eventsConsumed, eventsInvalid, notifyOK, notifyErrors)
}

var upgrader = websocket.Upgrader{}

func main() {
	var httpAddr string
	flag.StringVar(&httpAddr, "http-addr", ":2113", "address for metrics, health and user websockets")
	flag.Parse()

	brokers := []string{"localhost:9092"}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = brokers[:0]
		for _, b := range strings.Split(v, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	}
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "booking-events"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "carpool-notifier"
	}

	wsreg := dispatch.NewWSRegistry()
	notifier := dispatch.NewPushDispatcher(os.Getenv("PUSH_ENDPOINT"), wsreg)

	go func() {
		m := mux.NewRouter()
		m.Handle("/metrics", promhttp.Handler())
		m.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		m.HandleFunc("/ws/{user_id}", func(w http.ResponseWriter, r *http.Request) {
			userID := mux.Vars(r)["user_id"]
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				http.Error(w, "upgrade failed", 400)
				return
			}
			wsreg.Add(userID, conn)
			// drain until the peer hangs up, then drop the session so
			// deliveries fall back to the push endpoint
			go func() {
				for {
					if _, _, err := conn.ReadMessage(); err != nil {
						wsreg.Remove(userID)
						conn.Close()
						return
					}
				}
			}()
		})
		log.Printf("notifier http listening on %s", httpAddr)
		if err := http.ListenAndServe(httpAddr, m); err != nil {
			log.Printf("http server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer r.Close()

	log.Printf("notifier listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down notifier")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		eventsConsumed.Inc()

		var ev events.Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			eventsInvalid.Inc()
			log.Printf("invalid event: %v", err)
			continue
		}
		if ev.UserID == "" {
			// ride-level events carry no recipient; they exist for audit
			continue
		}

		if err := notifyWithRetry(notifier, ev, 3, 200*time.Millisecond); err != nil {
			notifyErrors.Inc()
			log.Printf("delivery failed type=%s user=%s: %v", ev.Type, ev.UserID, err)
			continue
		}
		notifyOK.Inc()
	}
}

// notifyWithRetry delivers one event with bounded retry and backoff. A user
// with no session and no push endpoint is not an error worth retrying.
func notifyWithRetry(n dispatch.Notifier, ev events.Event, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = n.Notify(ev.UserID, ev)
		if err == nil {
			return nil
		}
		if errors.Is(err, dispatch.ErrNoSession) {
			return nil
		}
		if i == attempts-1 {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}
