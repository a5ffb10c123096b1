package main

import (
	"fmt"
	"os"

	"codegw/internal/gwctl"
)

func main() {
	if err := gwctl.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "gwctl:", err)
		os.Exit(1)
	}
}
