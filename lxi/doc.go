// Package lxi is a handle-based client for LXI instruments speaking VXI-11.
//
// A Client maps opaque handles to vxi11 sessions held in a Registry. The four core
// operations mirror a typical instrument I/O library:
//
//	client, err := lxi.New(lxi.WithDefaultTimeout(3 * time.Second))
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	h, err := client.Connect(ctx, "192.168.1.10", "inst0", 1000)
//	if err != nil {
//		return err
//	}
//	defer client.Disconnect(h)
//
//	if err := client.Send(h, []byte("*IDN?"), 1000); err != nil {
//		return err
//	}
//	idn, err := client.Receive(h, 65536, 1000)
//
// Payloads are opaque bytes; the package does not interpret instrument commands.
package lxi
