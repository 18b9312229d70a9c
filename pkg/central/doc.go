// Package central drives the Bluetooth LE central role on top of an
// adapter.Adapter.
//
// A Session turns the adapter's asynchronous callbacks into operations with
// exactly one outcome each. Scan, Connect and the discovery calls return a
// *Result immediately; the outcome is correlated from adapter events by
// peripheral identity (and service UUID for characteristic discovery) on a
// single event-loop goroutine owned by the session.
//
//	s, err := central.New(a, central.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
//	defer cancel()
//	p, err := s.Scan([]adapter.UUID{"180d"}, nil).Await(ctx)
//	if err != nil {
//		return err
//	}
//	if _, err := s.Connect(p.ID(), adapter.ConnectOptions{}).Await(ctx); err != nil {
//		return err
//	}
//	services, err := p.DiscoverServices().Await(ctx)
//
// Failures are *Error values; compare with errors.Is against the Err*
// sentinels. Nothing retries or times out implicitly.
package central
