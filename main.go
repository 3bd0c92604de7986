package main

import "bulkmerge/cmd"

func main() {
	cmd.Execute()
}
