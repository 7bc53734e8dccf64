// Command securelock runs the lock screen coordinator.
package main

import "github.com/securelock/securelock/internal/cli"

func main() {
	cli.Execute()
}
