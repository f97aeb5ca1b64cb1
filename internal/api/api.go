// Package api exposes the session service over websocket and HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/skip2/go-qrcode"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/session"
	"github.com/victornm/livequiz/internal/ws"
)

const qrSize = 256

type Config struct {
	Router   gin.IRouter
	EventBus *event.Bus
	Session  *session.Service
	// Leaderboard is optional. Without it, leaderboards are read from the live room.
	Leaderboard *leaderboard.Service
	// Redis is optional. With it, leaderboard and quiz results are published to pub/sub.
	Redis        Redis
	PubsubPrefix string
	// PublicURL is the base of join links. Defaults to the request host.
	PublicURL string

	SendBuffer int
	PongWait   time.Duration
	WriteWait  time.Duration
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	session *session.Service
	ls      *leaderboard.Service

	redis  Redis
	prefix string

	publicURL string
	upgrader  websocket.Upgrader
	wsConfig  ws.Config

	subs []*event.Subscription
}

func New(c Config) *API {
	a := &API{
		session:   c.Session,
		ls:        c.Leaderboard,
		redis:     c.Redis,
		prefix:    c.PubsubPrefix,
		publicURL: strings.TrimSuffix(c.PublicURL, "/"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		wsConfig: ws.Config{
			SendBuffer: c.SendBuffer,
			PongWait:   c.PongWait,
			WriteWait:  c.WriteWait,
			Encode:     EncodeFrame,
		},
	}

	// HTTP APIs
	c.Router.GET("/ws", a.ServeWS)
	c.Router.GET("/healthz", a.Health)
	c.Router.GET("/rooms/:id/leaderboard", a.GetLeaderboard)
	c.Router.GET("/rooms/:id/qr.png", a.GetJoinQR)

	// Register event handlers
	if a.redis != nil {
		a.subs = append(a.subs,
			c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				u := e.(domain.EventLeaderboardUpdated)
				return a.PublishStandings(ctx, u.RoomID, u.Name(), u.Entries)
			}),
			c.EventBus.Subscribe(domain.EventNameQuizEnded, func(ctx context.Context, e event.Event) error {
				u := e.(domain.EventQuizEnded)
				return a.PublishStandings(ctx, u.RoomID, u.Name(), u.Leaderboard)
			}),
		)
	}

	return a
}

// Close stops relaying room events to pub/sub.
func (a *API) Close() {
	for _, sub := range a.subs {
		sub.Close()
	}
}

// ServeWS upgrades the request and runs the connection until it goes away.
func (a *API) ServeWS(c *gin.Context) {
	id, err := uuid.NewV7()
	if err != nil {
		writeError(c, errors.Internal(fmt.Errorf("generate connection ID: %w", err)))
		return
	}

	wc, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c, "api: websocket upgrade failed", "error", err)
		return
	}

	cfg := a.wsConfig
	cfg.ID = id.String()
	conn := ws.New(wc, cfg)

	ctx := context.WithoutCancel(c.Request.Context())
	a.session.Connect(conn)
	slog.InfoContext(ctx, "api: connection opened", "conn", conn.ID())

	go conn.WriteLoop(ctx)
	conn.ReadLoop(ctx, func(ctx context.Context, msg []byte) {
		a.handle(ctx, conn.ID(), msg)
	})

	a.session.Disconnect(ctx, conn.ID())
	slog.InfoContext(ctx, "api: connection closed", "conn", conn.ID())
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"rooms":       a.session.Rooms(),
		"connections": a.session.Connections(),
	})
}

func (a *API) GetLeaderboard(c *gin.Context) {
	roomID := c.Param("id")

	var (
		entries []domain.LeaderboardEntry
		err     error
	)
	if a.ls != nil {
		entries, err = a.ls.GetLeaderboard(c, leaderboard.GetLeaderboardRequest{RoomID: roomID})
	} else {
		entries, err = a.session.Standings(c, roomID)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"roomId":  roomID,
		"entries": entries,
	})
}

// GetJoinQR renders a QR code of the room's join link.
func (a *API) GetJoinQR(c *gin.Context) {
	png, err := qrcode.Encode(a.joinURL(c.Request, c.Param("id")), qrcode.Medium, qrSize)
	if err != nil {
		writeError(c, errors.Internal(fmt.Errorf("encode qr code: %w", err)))
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

func (a *API) joinURL(r *http.Request, roomID string) string {
	base := a.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}

	return base + "/?room=" + url.QueryEscape(roomID)
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c, "api: request failed", "path", c.FullPath(), "error", err)
	}

	c.JSON(e.HTTPStatusCode(), gin.H{
		"code":    int(e.Code),
		"kind":    e.Kind,
		"reason":  e.Reason,
		"message": e.Message,
	})
}
