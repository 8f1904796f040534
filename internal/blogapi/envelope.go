package blogapi

// Result is the uniform envelope returned by every API call. Client
// methods never return a Go error for network or HTTP-level failures;
// callers branch on Success. The envelope is JSON-serializable so tool
// outcomes built from it can be fed back to the model verbatim.
type Result struct {
	Success bool `json:"success"`
	// Status is the HTTP status code, or 0 when the request never
	// reached the server (network failure, missing token).
	Status int    `json:"status"`
	Data   any    `json:"data"`
	Err    string `json:"error"`
}

func succeed(status int, data any) Result {
	return Result{Success: true, Status: status, Data: data}
}

func failure(status int, data any, errMsg string) Result {
	return Result{Status: status, Data: data, Err: errMsg}
}

// Failure builds a failed envelope without a network exchange. Used by
// callers (session registry, façade) for local preconditions such as
// "not logged in" so tool results keep one shape everywhere.
func Failure(errMsg string) Result {
	return Result{Err: errMsg}
}
