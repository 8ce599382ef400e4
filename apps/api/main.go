package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	di := flag.String("di", "manual", "dependency injection: manual | dig")
	flag.Parse()

	switch *di {
	case "manual":
		startManual()
	case "dig":
		startWithDig()
	default:
		fmt.Fprintf(os.Stderr, "unknown -di value %q (want manual or dig)\n", *di)
		os.Exit(2)
	}
}
