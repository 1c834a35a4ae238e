// Command nodemap renders node locations as SVG maps and serves interactive
// map sessions over a websocket.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
