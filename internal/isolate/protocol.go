package isolate

// Kind distinguishes the three request shapes the bridge exchange
// supports between the pool and a worker's vm() entry point.
type Kind int

const (
	KindFn Kind = iota
	KindCron
	KindCodeConfig
)

// FnReq is an HTTP-shaped invocation, the shape the HTTP adapter builds
// from an inbound request.
type FnReq struct {
	Method  string
	Path    string
	Body    []byte
	Headers map[string]string
}

// FnRes is the tenant handler's response to an FnReq. Status must be in
// [100, 600).
type FnRes struct {
	Status  int
	Body    []byte
	Headers map[string]string
}

// CodeConfigRes answers the code-config request issued once per Context
// construction, letting tenant code self-register a cron interval.
type CodeConfigRes struct {
	CronIntervalSecs float64
	HasCron          bool
}

// Request is the tagged union sent to a worker's vm() function.
type Request struct {
	Kind Kind
	Fn   FnReq
}

// Response is the tagged union a worker returns from vm().
type Response struct {
	Kind       Kind
	Fn         FnRes
	CodeConfig CodeConfigRes
}
