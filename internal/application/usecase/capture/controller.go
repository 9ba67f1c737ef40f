package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"standlog/internal/application/port"
)

// ControllerDeps Repo / Lister 可为 nil
type ControllerDeps struct {
	Reader  *Reader
	State   *State
	Console port.Console
	Repo    port.RecordRepository
	Lister  port.PortLister
}

// Status 控制器视角的整体状态
type Status struct {
	Reader      ReaderStatus
	Capturing   bool
	Destination Destination
}

// Controller 外部界面调用的会话操作。每个操作恰好在控制台输出一行结果
type Controller struct {
	deps ControllerDeps
}

func NewController(deps ControllerDeps) *Controller {
	return &Controller{deps: deps}
}

// Connect 打开设备并开始读取
func (c *Controller) Connect(ctx context.Context, portID string) error {
	if err := c.deps.Reader.Connect(ctx, portID); err != nil {
		if errors.Is(err, ErrAlreadyConnected) {
			c.deps.Console.Warn(fmt.Sprintf("already connected to %s", c.deps.Reader.Status().Port))
		} else {
			c.deps.Console.Warn(fmt.Sprintf("failed to connect: %v", err))
		}
		log.Warn().Err(err).Str("port", portID).Msg("connect failed")
		return err
	}
	c.deps.Console.Info(fmt.Sprintf("connected to %s", strings.TrimSpace(portID)))
	return nil
}

// Disconnect 停止读取并关闭设备；采集状态不变
func (c *Controller) Disconnect() error {
	p := c.deps.Reader.Status().Port
	if !c.deps.Reader.Stop() {
		c.deps.Console.Warn("not connected")
		return ErrNotConnected
	}
	c.deps.Console.Info(fmt.Sprintf("disconnected from %s", p))
	return nil
}

// Start 以 label 开始采集。confirm 在目标文件非空时被调用
func (c *Controller) Start(ctx context.Context, label string, confirm ConfirmFunc) error {
	dest, err := c.deps.State.BeginCapture(label, confirm)
	if err != nil {
		switch {
		case errors.Is(err, ErrConfirmationDeclined):
			c.deps.Console.Info(fmt.Sprintf("capture %q cancelled, existing files kept", strings.TrimSpace(label)))
		case errors.Is(err, ErrCaptureActive):
			cur, _ := c.deps.State.Destination()
			c.deps.Console.Warn(fmt.Sprintf("capture %q already active, stop it first", cur.Label))
		default:
			c.deps.Console.Warn(fmt.Sprintf("failed to start capture: %v", err))
		}
		log.Warn().Err(err).Str("label", label).Msg("start capture failed")
		return err
	}

	c.deps.Console.Info(fmt.Sprintf("capture %q started: %s", dest.Label, strings.Join(dest.Paths(), ", ")))
	log.Info().
		Str("label", dest.Label).
		Str("session", dest.SessionID).
		Str("record", dest.RecordPath).
		Str("log", dest.LogPath).
		Msg("capture started")

	if c.deps.Repo != nil {
		mctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
		defer cancel()
		err := c.deps.Repo.BeginSession(mctx, port.CaptureSession{
			ID:         dest.SessionID,
			Label:      dest.Label,
			RecordPath: dest.RecordPath,
			LogPath:    dest.LogPath,
			StartedMs:  dest.StartedAt.UnixMilli(),
		})
		if err != nil {
			c.deps.Console.Warn(fmt.Sprintf("record mirror failed: %v", err))
			log.Error().Err(err).Str("session", dest.SessionID).Msg("mirror begin session failed")
		}
	}
	return nil
}

// Stop 结束采集。设备连接保持打开
func (c *Controller) Stop(ctx context.Context) error {
	dest, ok := c.deps.State.EndCapture()
	if !ok {
		c.deps.Console.Warn("capture not active")
		return ErrNotCapturing
	}
	c.deps.Console.Info(fmt.Sprintf("capture %q stopped", dest.Label))
	log.Info().Str("label", dest.Label).Str("session", dest.SessionID).Msg("capture stopped")
	c.endSession(ctx, dest)
	return nil
}

// Shutdown 结束采集并停止读取循环，进程退出前调用
func (c *Controller) Shutdown(ctx context.Context) {
	if dest, ok := c.deps.State.EndCapture(); ok {
		c.deps.Console.Info(fmt.Sprintf("capture %q stopped", dest.Label))
		c.endSession(ctx, dest)
	}
	if c.deps.Reader.Stop() {
		log.Info().Msg("reader stopped on shutdown")
	}
}

// Ports 列出可用串口
func (c *Controller) Ports() ([]string, error) {
	if c.deps.Lister == nil {
		c.deps.Console.Warn("port listing unavailable")
		return nil, errors.New("port listing unavailable")
	}
	ports, err := c.deps.Lister.List()
	if err != nil {
		c.deps.Console.Warn(fmt.Sprintf("failed to list ports: %v", err))
		return nil, err
	}
	return ports, nil
}

func (c *Controller) Status() Status {
	dest, ok := c.deps.State.Destination()
	return Status{
		Reader:      c.deps.Reader.Status(),
		Capturing:   ok,
		Destination: dest,
	}
}

func (c *Controller) endSession(ctx context.Context, dest Destination) {
	if c.deps.Repo == nil {
		return
	}
	// ctx 可能已因退出信号取消，结束会话仍需写入
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()
	if err := c.deps.Repo.EndSession(mctx, dest.SessionID, time.Now().UnixMilli()); err != nil {
		c.deps.Console.Warn(fmt.Sprintf("record mirror failed: %v", err))
		log.Error().Err(err).Str("session", dest.SessionID).Msg("mirror end session failed")
	}
}
