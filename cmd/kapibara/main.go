// Command kapibara is the CLI entry point: run, test, gen uuid, gen cert.
package main

import (
	"github.com/un5af3/kapibara/cmd"
)

func main() {
	cmd.Execute()
}
