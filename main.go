package main

import (
	"os"

	"github.com/htol/bookstore/app"
)

func main() {
	os.Exit(app.CLI(os.Args[1:]))
}
