// Command cmdpolicy classifies shell commands proposed by automated agents.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/zhangyunhao116/cmdpolicy/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
