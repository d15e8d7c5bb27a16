// Command cpu1sec is a munin plugin that samples CPU usage once per second.
package main

import "github.com/danpilch/cpu1sec/pkg/commands"

func main() {
	commands.Execute()
}
