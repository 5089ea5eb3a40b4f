package main

import "github.com/zenodev/zeno/internal/cli"

func main() {
	cli.Execute()
}
