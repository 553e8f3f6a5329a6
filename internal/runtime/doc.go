// Package runtime wires the commit log, state storage, and telemetry into a
// single-node natlog instance. It exposes Open/Close, basic health checks,
// and factories for the stores and executors higher layers use.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	_, _, _ = rt.Log().Append(context.Background(), []byte("key"), []byte("value"), 0)
package runtime
