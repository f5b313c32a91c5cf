package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/DosymzhanKogabaev/finsight-ai/internal/config"
	"github.com/DosymzhanKogabaev/finsight-ai/internal/server"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/business/xauth"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/config/xconf"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/lifecycle/xrun"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/observability/xlog"
)

// exitError 命令已完成输出，只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func isUsageError(err error) bool {
	var ue *usageError
	return errors.As(err, &ue)
}

func createServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "启动 HTTP 服务，配置文件变化时热更新限流参数和日志级别",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdServe(ctx, cmd.String("config"), cmd.Root().ErrWriter)
		},
	}
}

func createTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "签发或校验 token",
		Commands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "为用户签发 access/refresh token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "用户 ID", Required: true},
					&cli.StringFlag{Name: "user-agent", Usage: "记录到会话的 User-Agent", Value: "finsight-gate-cli"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return cmdIssue(ctx, cmd.String("config"), cmd.String("user"), cmd.String("user-agent"),
						cmd.Root().Writer, cmd.Root().ErrWriter)
				},
			},
			{
				Name:      "verify",
				Usage:     "校验 token，通过时输出载荷",
				ArgsUsage: "<token>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "期望的类型 access|refresh", Value: string(xauth.TokenAccess)},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return &usageError{msg: "token verify requires exactly one <token> argument"}
					}
					return cmdVerify(cmd.String("config"), cmd.Args().First(), cmd.String("type"), cmd.Root().Writer)
				},
			},
		},
	}
}

func createVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "输出版本信息",
		Action: func(_ context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintf(cmd.Root().Writer, "%s %s\n", appName, versionString())
			return err
		},
	}
}

func buildLogger(c config.Log, w io.Writer) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().
		SetOutput(w).
		SetLevelString(c.Level).
		SetFormat(c.Format).
		SetAttrs(slog.String("service", appName), slog.String("version", Version))
	if c.File != "" {
		b.SetRotation(c.File,
			xlog.RotateMaxSizeMB(c.MaxSizeMB),
			xlog.RotateMaxBackups(c.MaxBackups),
			xlog.RotateMaxAgeDays(c.MaxAgeDays),
			xlog.RotateCompress(c.Compress))
	}
	return b.Build()
}

func cmdServe(ctx context.Context, path string, logOut io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger, closeLog, err := buildLogger(cfg.Log, logOut)
	if err != nil {
		return &usageError{msg: err.Error()}
	}
	defer func() { _ = closeLog() }()
	xlog.SetDefault(logger)

	var src *xconf.Source
	if path != "" {
		if src, err = xconf.Load(path); err != nil {
			return err
		}
	}
	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn(ctx, "close server", xlog.Err(err))
		}
	}()

	services, err := srv.Services(src)
	if err != nil {
		return err
	}
	logger.Info(ctx, "finsight-gate listening",
		slog.String("addr", cfg.Server.Addr),
		slog.String("storage", cfg.Storage.Backend))

	err = xrun.Run(ctx, []xrun.Option{xrun.WithLogger(logger)}, services...)
	if errors.Is(err, xrun.ErrSignal) {
		logger.Info(ctx, "finsight-gate stopped", slog.String("cause", err.Error()))
		return nil
	}
	return err
}

// cmdIssue 按配置的存储记录会话；memory 后端的会话随进程退出丢失。
func cmdIssue(ctx context.Context, path, userID, userAgent string, out, errOut io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, xlog.Nop())
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	pair, err := srv.Issuer().IssuePair(ctx, userID, xauth.DeviceInfo{
		IP:        "cli",
		UserAgent: userAgent,
		Device:    xauth.ParseDevice(userAgent),
	})
	if err != nil {
		if errors.Is(err, xauth.ErrEmptyUserID) {
			return &usageError{msg: err.Error()}
		}
		return err
	}
	if strings.EqualFold(cfg.Storage.Backend, config.BackendMemory) {
		fmt.Fprintln(errOut, "warning: memory storage, the refresh session is not persisted")
	}
	return writeJSON(out, pair)
}

type verifyOutput struct {
	Valid   bool           `json:"valid"`
	Reason  xauth.Reason   `json:"reason,omitempty"`
	Message string         `json:"message,omitempty"`
	Payload *xauth.Payload `json:"payload,omitempty"`
}

func cmdVerify(path, token, typ string, out io.Writer) error {
	want := xauth.TokenType(strings.ToLower(typ))
	if want != xauth.TokenAccess && want != xauth.TokenRefresh {
		return &usageError{msg: fmt.Sprintf("unknown token type %q", typ)}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	codec, err := xauth.NewCodec([]byte(cfg.Auth.Secret))
	if err != nil {
		return err
	}

	p, err := codec.Verify(token, want)
	if err != nil {
		var ae *xauth.AuthError
		if !errors.As(err, &ae) {
			return err
		}
		if werr := writeJSON(out, verifyOutput{Reason: ae.Reason, Message: ae.Message()}); werr != nil {
			return werr
		}
		return &exitError{code: 1}
	}
	return writeJSON(out, verifyOutput{Valid: true, Payload: p})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
