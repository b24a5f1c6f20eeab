package metrics

type Counter interface {
	Inc()

	Add(count float64)
}

type Factory interface {
	CreateCounter(name string, description string) (Counter, error)

	Start() error

	Stop() error
}
