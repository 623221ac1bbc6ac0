// Package vxi11 implements the client side of the VXI-11 instrument protocol on top of
// ONC-RPC over TCP.
//
// A Session owns one TCP connection to the instrument's core channel and the remote link
// created on it. Its lifecycle is Unconnected, Linked and Closed:
//
//	sess, err := vxi11.NewSession("192.168.1.10", "inst0", vxi11.WithDefaultTimeout(3*time.Second))
//	if err != nil {
//		return err
//	}
//	if err := sess.Link(ctx, 0); err != nil {
//		return err
//	}
//	defer sess.Close(0)
//
//	if err := sess.Write([]byte("*IDN?\n"), time.Now().Add(time.Second)); err != nil {
//		return err
//	}
//	reply, err := sess.Read(65536, time.Now().Add(time.Second))
//
// Write splits payloads larger than the instrument's maximum receive size into several
// device_write calls and Read reassembles the chunks of one response. Both operations share
// a single deadline across all of their round trips.
//
// Any failure that leaves the RPC stream unsynchronized, such as a transport I/O error or a
// reply for the wrong call, closes the session immediately. Timeouts that did not consume
// any reply bytes leave the session Linked.
package vxi11
