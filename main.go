package main

import "github.com/wentf9/xops-ci/cmd"

func main() {
	cmd.Execute()
}
