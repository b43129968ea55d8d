//go:build linux

// testfs-helper builds and inspects file trees inside E2E containers.
//
//	testfs-helper sow              read a FileTree as JSON on stdin and create it
//	testfs-helper reap <path>...   print the observed state as JSON
package main

import (
	"fmt"
	"os"

	"github.com/ivoronin/rdup/internal/testfs"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: testfs-helper <sow|reap> [paths...]")
	}

	switch os.Args[1] {
	case "sow":
		// Mount points are real tmpfs mounts, so the root is "/".
		if err := testfs.SowFromReader(os.Stdin, "/"); err != nil {
			fatalf("sow: %v", err)
		}
	case "reap":
		if len(os.Args) < 3 {
			fatalf("usage: testfs-helper reap <path> [path...]")
		}
		if err := testfs.ReapToWriter(os.Stdout, os.Args[2:]); err != nil {
			fatalf("reap: %v", err)
		}
	default:
		fatalf("unknown command: %s (use 'sow' or 'reap')", os.Args[1])
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "testfs-helper: "+format+"\n", args...)
	os.Exit(1)
}
