// ABOUTME: Truetime authority wire protocol package
// ABOUTME: Defines protocol messages, offset math and the WebSocket client
// Package protocol implements the truetime authority wire protocol.
//
// Provides message types and a WebSocket client for asking an authority
// (see the authority package) for its wall-clock time.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{ServerAddr: "localhost:8928", Name: "kitchen"})
//	err := client.Connect(ctx)
//	err = client.SendTimeSync(time.Now().UnixMicro())
//	resp := <-client.TimeSyncResp
package protocol
