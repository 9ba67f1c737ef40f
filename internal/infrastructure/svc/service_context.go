package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"standlog/internal/application/port"
	"standlog/internal/application/usecase/capture"
	"standlog/internal/infrastructure/config"
	"standlog/internal/infrastructure/serialport"
	"standlog/internal/infrastructure/storage/composite"
	"standlog/internal/infrastructure/storage/file"
	"standlog/internal/infrastructure/storage/memory"
	pgrepo "standlog/internal/infrastructure/storage/postgres"
	redisrepo "standlog/internal/infrastructure/storage/redis"
	sqliterepo "standlog/internal/infrastructure/storage/sqlite"
	"standlog/internal/infrastructure/textcodec"
	"standlog/internal/interfaces/console"
	"standlog/internal/interfaces/wsmirror"
)

const recentRecords = 256

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层
	Opener     port.DeviceOpener
	Lister     port.PortLister
	Console    port.Console
	Recent     *memory.Repo
	hub        *wsmirror.Hub
	wsServer   *wsmirror.Server
	mirrors    *composite.Repo
	sqliteRepo *sqliterepo.Repo

	// 应用层
	State      *capture.State
	Reader     *capture.Reader
	Controller *capture.Controller

	closerChain []func() error
}

// Options 测试时替换设备与控制台
type Options struct {
	Opener  port.DeviceOpener
	Lister  port.PortLister
	Console port.Console
}

// New 创建并初始化 ServiceContext，所有依赖在这里按顺序装配
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	opener := serialport.NewOpener()
	return NewWithOptions(ctx, cfg, Options{Opener: opener, Lister: opener})
}

func NewWithOptions(ctx context.Context, cfg *config.Config, opts Options) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Opener:      opts.Opener,
		Lister:      opts.Lister,
		closerChain: make([]func() error, 0),
	}
	if err := sc.initializeComponents(opts.Console); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents(out port.Console) error {
	if out == nil {
		out = console.NewSink()
	}
	if sc.Config.WebSocket.Enabled {
		if err := sc.initWebSocket(); err != nil {
			return fmt.Errorf("websocket initialization failed: %w", err)
		}
		sc.Console = console.NewFanout(out, sc.hub)
	} else {
		sc.Console = out
	}

	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}

	dec, err := textcodec.New(sc.Config.Serial.Encoding)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecoderInitFailed, err)
	}

	var (
		records port.RecordSink
		logs    port.LogSink
	)
	if sc.Config.RecordEnabled() {
		records = file.NewRecordSink()
	}
	if sc.Config.LogEnabled() {
		logs = file.NewLogSink()
	}

	sc.State = capture.NewState(capture.StateDeps{
		Layout: capture.Layout{
			Dir:       sc.Config.Capture.Dir,
			RecordExt: sc.Config.Capture.RecordExt,
			LogExt:    sc.Config.Capture.LogExt,
		},
		Records: records,
		Logs:    logs,
	})
	sc.Reader = capture.NewReader(capture.ReaderDeps{
		Opener:  sc.Opener,
		Decoder: dec,
		Console: sc.Console,
		State:   sc.State,
		Records: records,
		Logs:    logs,
		Repo:    sc.mirrors,
		Config: capture.ReaderConfig{
			ReadTimeout:    sc.Config.ReadTimeout(),
			IdlePause:      sc.Config.IdlePause(),
			ReconnectPause: sc.Config.ReconnectPause(),
			MaxLineBytes:   sc.Config.Serial.MaxLineBytes,
		},
	})
	sc.Controller = capture.NewController(capture.ControllerDeps{
		Reader:  sc.Reader,
		State:   sc.State,
		Console: sc.Console,
		Repo:    sc.mirrors,
		Lister:  sc.Lister,
	})

	log.Info().
		Str("encoding", dec.Name()).
		Int("mirrors", sc.mirrors.Len()).
		Bool("records", records != nil).
		Bool("logs", logs != nil).
		Msg("✓ All components initialized")
	return nil
}

// initializeStorage 内存镜像总是启用；SQLite / Redis / Postgres 按配置启用
func (sc *ServiceContext) initializeStorage() error {
	sc.Recent = memory.New(recentRecords)
	repos := []port.RecordRepository{sc.Recent}

	if sc.Config.SQLite.Enabled {
		repo, err := sc.initSQLite()
		if err != nil {
			return fmt.Errorf("sqlite initialization failed: %w", err)
		}
		repos = append(repos, repo)
	}
	if sc.Config.Redis.Enabled {
		repo, err := sc.initRedis()
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		repos = append(repos, repo)
	}
	if sc.Config.Postgres.Enabled {
		repo, err := sc.initPostgres()
		if err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		repos = append(repos, repo)
	}

	sc.mirrors = composite.New(repos...)
	return nil
}

func (sc *ServiceContext) initSQLite() (*sqliterepo.Repo, error) {
	repo, err := sqliterepo.New(sc.Config.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite repo creation failed: %w", err)
	}
	sc.sqliteRepo = repo
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})
	log.Info().Str("path", sc.Config.SQLite.Path).Msg("✓ SQLite initialized")
	return repo, nil
}

func (sc *ServiceContext) initRedis() (*redisrepo.Repo, error) {
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     sc.Config.Redis.Addr,
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})
	log.Info().
		Str("addr", sc.Config.Redis.Addr).
		Int("db", sc.Config.Redis.DB).
		Msg("✓ Redis initialized")

	ttl := time.Duration(sc.Config.Redis.TTLSeconds) * time.Second
	return redisrepo.New(rdb, sc.Config.Redis.Prefix, ttl, sc.Config.Redis.Stream, sc.Config.Redis.Channel), nil
}

func (sc *ServiceContext) initPostgres() (*pgrepo.Repo, error) {
	repo, err := pgrepo.New(sc.Config.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})
	log.Info().Msg("✓ Postgres initialized")
	return repo, nil
}

// initWebSocket 启动控制台镜像服务
func (sc *ServiceContext) initWebSocket() error {
	hub := wsmirror.NewHub()
	srv, err := wsmirror.Listen(sc.Config.WebSocket.Addr, sc.Config.WebSocket.Path, hub)
	if err != nil {
		return err
	}
	sc.hub = hub
	sc.wsServer = srv

	go func() {
		if err := srv.Serve(); err != nil {
			log.Error().Err(err).Msg("websocket mirror stopped")
		}
	}()

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing websocket mirror")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := srv.Shutdown(ctx)
		hub.Close()
		return err
	})
	log.Info().
		Str("addr", srv.Addr()).
		Str("path", sc.Config.WebSocket.Path).
		Msg("✓ WebSocket mirror listening")
	return nil
}

// WebSocketAddr 镜像服务实际监听地址；未启用时为空
func (sc *ServiceContext) WebSocketAddr() string {
	if sc.wsServer == nil {
		return ""
	}
	return sc.wsServer.Addr()
}

// GetSQLiteRepo 未启用时为 nil
func (sc *ServiceContext) GetSQLiteRepo() *sqliterepo.Repo {
	return sc.sqliteRepo
}

// Close 结束采集、停止读取，再按相反顺序关闭所有资源
func (sc *ServiceContext) Close() error {
	if sc.Controller != nil {
		sc.Controller.Shutdown(sc.Ctx)
	}

	var errs []error
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
			errs = append(errs, err)
		}
	}
	sc.closerChain = nil
	return errors.Join(errs...)
}
