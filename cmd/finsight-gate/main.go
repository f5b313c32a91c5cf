// finsight-gate 是 finsight-ai 的请求准入网关：识别身份、按 scope 限流、校验 JWT。
//
// 用法:
//
//	finsight-gate [全局选项] <命令> [命令参数]
//
// 命令:
//
//	serve              启动 HTTP 服务
//	token issue        为用户签发一对 token
//	token verify       校验 token 并输出载荷
//	version            输出版本信息
//
// 退出码:
//
//	0: 成功（serve 收到 SIGINT/SIGTERM 后正常退出也为 0）
//	1: 运行失败或 token 校验未通过
//	2: 参数或配置错误
//
// 示例:
//
//	FINSIGHT_JWT_SECRET=... finsight-gate serve --config /etc/finsight/gate.yaml
//	finsight-gate token issue --user 42
//	finsight-gate token verify --type refresh eyJhbGciOi...
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/DosymzhanKogabaev/finsight-ai/internal/config"
)

const appName = "finsight-gate"

// 版本信息，通过 -ldflags "-X main.Version=..." 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdout, os.Stderr))
}

func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      appName,
		Writer:    stdout,
		ErrWriter: stderr,
		Usage:     "finsight-ai 请求准入网关",
		Version:   versionString(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（yaml/json），为空时只使用默认值和环境变量",
				Sources: cli.EnvVars("FINSIGHT_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			createServeCommand(),
			createTokenCommand(),
			createVersionCommand(),
		},
		// 退出码由 run 统一映射
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)
	if err := app.Run(ctx, args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "错误: %v\n", err)
		if errors.Is(err, config.ErrInvalid) || isUsageError(err) {
			return 2
		}
		return 1
	}
	return 0
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime)
}
