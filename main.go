package main

import "github.com/ccm-platform/carbon-admin/cmd"

func main() {
	cmd.Execute()
}
