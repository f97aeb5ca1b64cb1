package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/question"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/session"
	"github.com/victornm/livequiz/internal/telemetry"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type PostgresConfig struct {
	Addr string
	User string
	Pass string
	Name string
}

type Config struct {
	HTTP struct {
		Port int32
		// PublicURL is the base of the join links encoded in QR codes.
		PublicURL string
	}

	GRPC struct {
		Port int32
	}

	// Redis and Postgres are optional: an empty address list or address disables them.
	Redis struct {
		Leaderboard RedisConfig
		Pubsub      RedisConfig
	}

	Postgres struct {
		Questions PostgresConfig
	}

	Questions struct {
		// File is a question file. Postgres takes precedence when configured.
		File string
	}

	Room struct {
		Grace         time.Duration
		ChatRetention int
		SendBuffer    int
		InboxSize     int
		PongWait      time.Duration
	}

	Scoring struct {
		BasePoints int64
		MinPoints  int64
	}
}

// DefaultConfig returns the settings used for anything the config file and
// environment leave out.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Redis.Leaderboard.Prefix = "livequiz"
	c.Redis.Pubsub.Prefix = "livequiz"
	c.Room.Grace = 30 * time.Second
	c.Room.ChatRetention = 200
	c.Room.SendBuffer = 64
	c.Room.InboxSize = 64
	c.Room.PongWait = 60 * time.Second
	c.Scoring.BasePoints = score.DefaultPolicy.BasePoints
	c.Scoring.MinPoints = score.DefaultPolicy.MinPoints
	return c
}

func (c Config) policy() score.Policy {
	return score.Policy{BasePoints: c.Scoring.BasePoints, MinPoints: c.Scoring.MinPoints}
}

type Server struct {
	c Config

	eb      *event.Bus
	metrics *telemetry.Metrics

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			questions *pgxpool.Pool
		}
	}

	service struct {
		session     *session.Service
		leaderboard *leaderboard.Service
	}

	bank question.Bank
	api  *api.API

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	if err := c.policy().Validate(); err != nil {
		return nil, fmt.Errorf("server: scoring: %w", err)
	}

	s := &Server{c: c}

	s.eb = event.NewBus()
	s.metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
	s.metrics.Observe(s.eb)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initBank(); err != nil {
		return nil, fmt.Errorf("server: init question bank: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, c RedisConfig) (redis.UniversalClient, error) {
		if len(c.Addrs) == 0 {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    c.Addrs,
			Password: c.Pass,
		})

		if err := telemetry.MonitorRedis(name, r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect("leaderboard", s.c.Redis.Leaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	connect := func(c PostgresConfig) (*pgxpool.Pool, error) {
		if c.Addr == "" {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			return nil, err
		}

		return db, nil
	}

	s.infra.postgres.questions, err = connect(s.c.Postgres.Questions)
	if err != nil {
		return fmt.Errorf("questions: %w", err)
	}

	return nil
}

func (s *Server) initBank() error {
	switch {
	case s.infra.postgres.questions != nil:
		s.bank = question.NewPostgresBank(question.PostgresConfig{DB: s.infra.postgres.questions})
		slog.Info("server: questions from postgres")

	case s.c.Questions.File != "":
		bank, err := question.LoadFile(s.c.Questions.File)
		if err != nil {
			return err
		}
		s.bank = bank
		slog.Info("server: questions from file", "file", s.c.Questions.File, "quizzes", len(bank))

	default:
		s.bank = question.Builtin()
		slog.Info("server: built-in questions")
	}

	return nil
}

func (s *Server) initService() {
	s.service.session = session.NewService(session.Config{
		EventBus:      s.eb,
		Bank:          s.bank,
		Policy:        s.c.policy(),
		Grace:         s.c.Room.Grace,
		ChatRetention: s.c.Room.ChatRetention,
		InboxSize:     s.c.Room.InboxSize,
	})

	if s.infra.redis.leaderboard != nil {
		s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
			EventBus: s.eb,
			Redis:    s.infra.redis.leaderboard,
			Prefix:   s.c.Redis.Leaderboard.Prefix,
		})
	}
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc, s.health = telemetry.NewGRPCServer()

	c := api.Config{
		Router:      e,
		EventBus:    s.eb,
		Session:     s.service.session,
		Leaderboard: s.service.leaderboard,
		PublicURL:   s.c.HTTP.PublicURL,
		SendBuffer:  s.c.Room.SendBuffer,
		PongWait:    s.c.Room.PongWait,
	}
	// A nil client must not end up in the interface.
	if s.infra.redis.pubsub != nil {
		c.Redis = s.infra.redis.pubsub
		c.PubsubPrefix = s.c.Redis.Pubsub.Prefix
	}
	s.api = api.New(c)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.api.Close()
	s.service.session.Close(ctx)
	if s.service.leaderboard != nil {
		s.service.leaderboard.Close()
	}

	s.eb.Stop()
	s.metrics.Close()

	if db := s.infra.postgres.questions; db != nil {
		db.Close()
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if r != nil {
			_ = r.Close()
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
