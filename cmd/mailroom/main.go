package main

import (
	"github.com/busybox42/mailroom/cmd/mailroom/commands"
)

func main() {
	commands.Execute()
}
