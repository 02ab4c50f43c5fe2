// Command rpcconn demonstrates the engine end to end: it can expose a small
// demo object graph over stdio, a loopback self-test, or a websocket
// listener, or wrap a peer process launched via its own config.
package main

import "github.com/relaywire/rpcconn/cmd/rpcconn/cmd"

func main() {
	cmd.Execute()
}
