package main

import "github.com/Prajanya-g/lvl.ai/services/refresher/cli"

func main() {
	cli.Execute()
}
