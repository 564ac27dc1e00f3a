// ABOUTME: NTP-style offset and round-trip calculation
// ABOUTME: Turns a client/time exchange into the server's wall time at receipt
package protocol

// Exchange holds the four timestamps of one client/time round trip, in
// microseconds. T1 and T4 are client wall-clock readings, T2 and T3 server ones.
type Exchange struct {
	T1 int64 // client transmit
	T2 int64 // server receive
	T3 int64 // server transmit
	T4 int64 // client receive
}

// NewExchange pairs a server/time response with the client's receive time.
func NewExchange(resp ServerTime, clientReceived int64) Exchange {
	return Exchange{
		T1: resp.ClientTransmitted,
		T2: resp.ServerReceived,
		T3: resp.ServerTransmitted,
		T4: clientReceived,
	}
}

// RTT returns the network round trip, excluding server processing time.
func (e Exchange) RTT() int64 {
	return (e.T4 - e.T1) - (e.T3 - e.T2)
}

// Offset returns the estimated server clock minus client clock
// (positive = server ahead of client).
func (e Exchange) Offset() int64 {
	return ((e.T2 - e.T1) + (e.T3 - e.T4)) / 2
}

// ServerTimeAtReceipt returns the server's wall clock at T4.
func (e Exchange) ServerTimeAtReceipt() int64 {
	return e.T4 + e.Offset()
}
