package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"Netshape/cmd"
	"Netshape/pkg"
	"Netshape/pkg/device"
)

// With arguments, run them as one command. Without, read commands from stdin
// so that interfaces shaped by one command keep their state for the next.
func main() {
	c := pkg.NewCalculator(device.NewNetlinkDevice(device.NewTC()), device.NetlinkOps{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx, c, os.Args[1:]); err != nil {
			logrus.Error(err)
			stop()
			os.Exit(1)
		}
		return
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("Enter command: ")
			if !scanner.Scan() {
				return
			}
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			args := strings.Fields(line)
			switch {
			case len(args) == 0:
				continue
			case args[0] == "exit":
				fmt.Println("Exiting...")
				return
			}
			if err := cmd.Execute(ctx, c, args); err != nil {
				fmt.Println("Error:", err)
			}
		}
	}
}
