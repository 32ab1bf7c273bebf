package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ditatrackcmd "ditatrack/internal/cli/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ditatrackcmd.Execute(ctx); err != nil {
		var ee *ditatrackcmd.ExitError
		if errors.As(err, &ee) {
			if ee.Err != nil {
				fmt.Fprintln(os.Stderr, "ditatrack:", ee.Err)
			}
			stop()
			os.Exit(ee.Code)
		}
		fmt.Fprintln(os.Stderr, "ditatrack:", err)
		stop()
		os.Exit(ditatrackcmd.ExitCLIError)
	}
}
