// Package shutdown provides graceful shutdown for rxhttp-server.
//
// A Handler waits for SIGINT, SIGTERM or an explicit Trigger, then runs its
// hooks in reverse registration order under one shared timeout:
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdownClose("http", server)
//	err := h.Wait(ctx)
package shutdown
