// Package main is a utility for computing the SHA-256 checksum of a plugin
// archive. The marketplace records a checksum for every uploaded version, so
// this tool is used to verify a downloaded archive against the checksum in the
// version listing without running the full server.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/plugin-marketplace/plugin-marketplace/pkg/checksum"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <archive.zip>", os.Args[0])
	}

	file, err := os.Open(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	defer file.Close()

	sum, err := checksum.CalculateSHA256(file)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(sum)
}
