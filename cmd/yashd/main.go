// Command yashd serves a line-oriented remote shell daemon.
package main

import (
	"os"

	"github.com/tjper/yashd/internal/yashd/cli"
)

func main() {
	os.Exit(cli.Run())
}
