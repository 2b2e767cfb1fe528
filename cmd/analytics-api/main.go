package main

import "github.com/Prajanya-g/lvl.ai/services/analytics-api/cli"

func main() {
	cli.Execute()
}
