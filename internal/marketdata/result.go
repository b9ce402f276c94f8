package marketdata

// Status classifies the outcome of a market data request
type Status int

const (
	// StatusOK means data was returned
	StatusOK Status = iota
	// StatusTransientFailure means the request failed after every retry
	StatusTransientFailure
	// StatusNoData means the source answered but had nothing for the request
	StatusNoData
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTransientFailure:
		return "transient_failure"
	case StatusNoData:
		return "no_data"
	default:
		return "unknown"
	}
}

// Result is the outcome of a fetch. Data is only meaningful when Status is StatusOK.
type Result[T any] struct {
	Status Status
	Data   T
	Err    error
}

// OK reports whether data was returned
func (r Result[T]) OK() bool {
	return r.Status == StatusOK
}

func ok[T any](data T) Result[T] {
	return Result[T]{Status: StatusOK, Data: data}
}

func failed[T any](err error) Result[T] {
	return Result[T]{Status: StatusTransientFailure, Err: err}
}

func noData[T any]() Result[T] {
	return Result[T]{Status: StatusNoData}
}
