// Package client is the Go SDK for the risk engine.
//
// # Reporting a host
//
// Agents submit telemetry as a heartbeat; the server scores it and upserts
// the asset keyed by owner and hostname:
//
//	c := client.MustNew("http://localhost:8080", client.WithUserID("u-123"))
//	res, err := c.Heartbeat(ctx, payload)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Action, res.RiskScore) // created 22
//
// # Scoring without storing
//
// Score runs the same scorer as Heartbeat and persists nothing:
//
//	s, err := c.Score(ctx, payload)
//	fmt.Println(s.RiskScore, s.Level.Label)
//
// # Discovery scans
//
// StartScan streams the scan's events as they happen and returns the
// terminal event. Returning an error from the callback ends the stream and
// cancels the scan:
//
//	final, err := c.StartScan(ctx, "quick", "192.168.1.0/24", func(ev scan.Event) error {
//	    if ev.Type == scan.EventAssetDiscovered {
//	        fmt.Println(ev.Asset.Hostname, ev.Asset.RiskScore)
//	    }
//	    return nil
//	})
//
// FollowScan attaches to a scan started elsewhere and replays its history
// before following it live.
package client
