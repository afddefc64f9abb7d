package firehose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	jsmodels "github.com/bluesky-social/jetstream/pkg/models"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	wsConnectionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vacunagates_jetstream_connection_attempts_total",
		Help: "The total number of connection attempts to the Jetstream websocket",
	})

	wsConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vacunagates_jetstream_connection_errors_total",
		Help: "The total number of connection errors encountered",
	})

	wsCurrentConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vacunagates_jetstream_current_connections",
		Help: "The current number of active Jetstream websocket connections",
	})

	wsConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vacunagates_jetstream_connection_duration_seconds",
		Help:    "Duration of Jetstream websocket connections",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	wsPingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vacunagates_jetstream_ping_latency_seconds",
		Help:    "Latency of websocket ping/pong round trips",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	wsHostSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vacunagates_jetstream_host_switches_total",
		Help: "Number of times the connection switched to a different host",
	}, []string{"from_host", "to_host"})
)

const (
	wsReadBufferSize  = 1024 * 1024 // 1MB
	wsWriteBufferSize = 1024        // 1KB
	wsReadTimeout     = 60 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsPingInterval    = 30 * time.Second
)

// DefaultJetstreamHosts are the public Jetstream instances
var DefaultJetstreamHosts = []string{
	"wss://jetstream1.us-east.bsky.network",
	"wss://jetstream2.us-east.bsky.network",
	"wss://jetstream1.us-west.bsky.network",
	"wss://jetstream2.us-west.bsky.network",
}

// JetstreamConfig holds configuration for the Jetstream connection
type JetstreamConfig struct {
	// Hosts is a list of Jetstream endpoints to try in order
	Hosts             []string
	WantedCollections []string
	WantedDids        []string
	Compress          bool
	UserAgent         string
}

// subscribeURL builds the subscribe endpoint for a host. A zero cursor means
// live tail.
func (c JetstreamConfig) subscribeURL(host string, cursor int64) (string, error) {
	u, err := url.Parse(fmt.Sprintf("%s/subscribe", host))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	q := u.Query()
	for _, collection := range c.WantedCollections {
		q.Add("wantedCollections", collection)
	}
	for _, did := range c.WantedDids {
		q.Add("wantedDids", did)
	}
	if cursor != 0 {
		q.Set("cursor", fmt.Sprintf("%d", cursor))
	}
	if c.Compress {
		q.Set("compress", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Jetstream is a Source backed by the Jetstream websocket service
type Jetstream struct {
	config  JetstreamConfig
	dialer  websocket.Dialer
	decoder *zstd.Decoder
	hostIdx int
}

func NewJetstream(config JetstreamConfig) (*Jetstream, error) {
	if len(config.Hosts) == 0 {
		return nil, fmt.Errorf("no hosts provided in config")
	}

	js := &Jetstream{
		config: config,
		dialer: websocket.Dialer{
			ReadBufferSize:   wsReadBufferSize,
			WriteBufferSize:  wsWriteBufferSize,
			HandshakeTimeout: 45 * time.Second,
			NetDialContext: (&net.Dialer{
				Timeout:   45 * time.Second,
				KeepAlive: 45 * time.Second,
			}).DialContext,
		},
	}

	if config.Compress {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderDicts(jsmodels.ZSTDDictionary))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		js.decoder = decoder
	}

	return js, nil
}

// Connect dials the current host, failing over to the next ones in order.
// It makes one attempt per host; retrying is up to the caller.
func (js *Jetstream) Connect(ctx context.Context, cursor int64) (Stream, error) {
	headers := http.Header{}
	if js.config.UserAgent != "" {
		headers.Set("User-Agent", js.config.UserAgent)
	}
	if js.config.Compress {
		headers.Set("Accept-Encoding", "zstd")
	}

	var lastErr error
	for attempt := 0; attempt < len(js.config.Hosts); attempt++ {
		host := js.config.Hosts[js.hostIdx]
		u, err := js.config.subscribeURL(host, cursor)
		if err != nil {
			return nil, err
		}

		log.WithFields(log.Fields{
			"host":   host,
			"cursor": cursor,
		}).Info("Subscribing to Jetstream")

		wsConnectionAttempts.Inc()
		conn, _, err := js.dialer.DialContext(ctx, u, headers)
		if err == nil {
			return js.newStream(ctx, conn), nil
		}

		wsConnectionErrors.Inc()
		log.Errorf("Error connecting to Jetstream host %s: %s", host, err)
		lastErr = err

		next := (js.hostIdx + 1) % len(js.config.Hosts)
		if next != js.hostIdx {
			wsHostSwitches.WithLabelValues(host, js.config.Hosts[next]).Inc()
			log.Infof("Switching from host %s to %s", host, js.config.Hosts[next])
			js.hostIdx = next
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("all jetstream hosts failed: %w", lastErr)
}

type jetstreamStream struct {
	conn      *websocket.Conn
	decoder   *zstd.Decoder
	cancel    context.CancelFunc
	connStart time.Time
}

func (js *Jetstream) newStream(ctx context.Context, conn *websocket.Conn) *jetstreamStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &jetstreamStream{
		conn:      conn,
		decoder:   js.decoder,
		cancel:    cancel,
		connStart: time.Now(),
	}

	wsCurrentConnections.Inc()
	setupConnectionHandlers(conn)
	go managePingPong(ctx, conn)

	// Unblock a pending read when the caller goes away
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return s
}

func (s *jetstreamStream) Next(_ context.Context) (*jsmodels.Event, error) {
	messageType, message, err := s.conn.ReadMessage()
	if err != nil {
		wsConnectionErrors.Inc()
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			log.Errorf("Unexpected websocket close: %v", err)
		}
		return nil, err
	}

	data := message
	if messageType == websocket.BinaryMessage && s.decoder != nil {
		data, err = s.decoder.DecodeAll(message, nil)
		if err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("failed to decompress message: %w", err)}
		}
	}

	var event jsmodels.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("failed to unmarshal event: %w", err)}
	}
	return &event, nil
}

func (s *jetstreamStream) Close() error {
	s.cancel()
	wsCurrentConnections.Dec()
	wsConnectionDuration.Observe(time.Since(s.connStart).Seconds())
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// setupConnectionHandlers configures the websocket connection handlers
func setupConnectionHandlers(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))

	conn.SetCloseHandler(func(code int, text string) error {
		log.Infof("WebSocket connection closed with code %d: %s", code, text)
		return nil
	})

	conn.SetPingHandler(func(appData string) error {
		log.Debug("Received ping from server")
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	conn.SetPongHandler(func(appData string) error {
		log.Debug("Received pong from server")
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
}

// managePingPong handles the ping/pong keepalive for the websocket connection
func managePingPong(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingStart := time.Now()
			log.Debug("Sending ping to check connection")

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
				log.Warn("Ping failed, closing connection for restart: ", err)
				wsConnectionErrors.Inc()
				conn.Close()
				return
			}

			conn.SetPongHandler(func(appData string) error {
				wsPingLatency.Observe(time.Since(pingStart).Seconds())
				return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			})

			if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
				log.Warn("Failed to set read deadline, closing connection: ", err)
				wsConnectionErrors.Inc()
				conn.Close()
				return
			}
		}
	}
}
