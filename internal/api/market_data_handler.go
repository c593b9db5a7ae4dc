package api

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/trade-engine/market-data-server/internal/domain"
	"github.com/trade-engine/market-data-server/internal/services"
)

// Querier is the retrieval engine as seen by the transport.
type Querier interface {
	Execute(ctx context.Context, key domain.QueryKey, interval domain.TimeInterval) ([]domain.Record, error)
	ExecuteStream(ctx context.Context, key domain.QueryKey, interval domain.TimeInterval) iter.Seq2[domain.Record, error]
	Files(ctx context.Context, key domain.QueryKey, interval domain.TimeInterval) ([]domain.CandidateFile, error)
}

const wsCloseTimeout = time.Second

// MarketDataHandler handles market data HTTP requests
type MarketDataHandler struct {
	querier  Querier
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewMarketDataHandler accepts WebSocket upgrades from allowedOrigins ("*" for any).
func NewMarketDataHandler(querier Querier, logger *zap.Logger, allowedOrigins []string) *MarketDataHandler {
	return &MarketDataHandler{
		querier: querier,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(r *http.Request) bool { return originAllowed(allowedOrigins, r) },
			EnableCompression: true,
		},
	}
}

// GetMarketData returns every record of the interval in one response
// GET /api/v1/market-data/:exchange/:market_type/:stream/:symbol?from=&to=
func (h *MarketDataHandler) GetMarketData(c *gin.Context) {
	key, interval, err := parseQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	records, err := h.querier.Execute(h.requestContext(c), key, interval)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, domain.NewMarketDataResponse(records))
}

// StreamMarketData writes one JSON record per line as records are decoded
// GET /api/v1/market-data-stream/:exchange/:market_type/:stream/:symbol?from=&to=
func (h *MarketDataHandler) StreamMarketData(c *gin.Context) {
	key, interval, err := parseQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	next, stop := iter.Pull2(h.querier.ExecuteStream(h.requestContext(c), key, interval))
	defer stop()

	// errors before the first record still get a proper status
	rec, err, ok := next()
	if ok && err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	enc := json.NewEncoder(c.Writer)
	written := 0
	for ; ok; rec, err, ok = next() {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				h.logger.Debug("Stream cancelled", zap.String("key", key.String()), zap.Int("records", written))
				return
			}
			h.logger.Error("Stream failed", zap.String("key", key.String()), zap.Int("records", written), zap.Error(err))
			_ = c.Error(err)
			_ = enc.Encode(gin.H{"error": errorMessage(err)})
			c.Writer.Flush()
			return
		}
		if werr := enc.Encode(rec); werr != nil {
			h.logger.Debug("Stream client gone", zap.String("key", key.String()), zap.Error(werr))
			return
		}
		c.Writer.Flush()
		written++
	}
}

// WatchMarketData sends one WebSocket text message per record and closes normally at the end
// GET /api/v1/market-data-ws/:exchange/:market_type/:stream/:symbol?from=&to=
func (h *MarketDataHandler) WatchMarketData(c *gin.Context) {
	key, interval, err := parseQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(h.requestContext(c))
	defer cancel()

	// the client never sends data; a read error means it closed the connection
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	code, reason := websocket.CloseNormalClosure, ""
	for rec, err := range h.querier.ExecuteStream(ctx, key, interval) {
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Error("WebSocket stream failed", zap.String("key", key.String()), zap.Error(err))
			_ = conn.WriteJSON(gin.H{"error": errorMessage(err)})
			code, reason = websocket.CloseInternalServerErr, "query failed"
			if errors.Is(err, domain.ErrInvalidQuery) {
				code = websocket.ClosePolicyViolation
			}
			break
		}
		if err := conn.WriteJSON(rec); err != nil {
			h.logger.Debug("WebSocket client gone", zap.String("key", key.String()), zap.Error(err))
			return
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(wsCloseTimeout))
}

type fileEntry struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

// ListFiles returns the archive files a query would read
// GET /api/v1/market-data-files/:exchange/:market_type/:stream/:symbol?from=&to=
func (h *MarketDataHandler) ListFiles(c *gin.Context) {
	key, interval, err := parseQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	files, err := h.querier.Files(h.requestContext(c), key, interval)
	if err != nil {
		h.fail(c, err)
		return
	}

	entries := make([]fileEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, fileEntry{
			Name: filepath.Base(f.Path),
			Date: f.Date.Format(domain.DateLayout),
		})
	}
	c.JSON(http.StatusOK, gin.H{"files": entries})
}

func (h *MarketDataHandler) requestContext(c *gin.Context) context.Context {
	return services.WithRequestID(c.Request.Context(), c.GetString(requestIDKey))
}

func (h *MarketDataHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	if status == StatusClientClosedRequest {
		c.AbortWithStatus(status)
		return
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Market data query failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorMessage(err)})
}
