package cronexpr

// Result is the outcome of TryParse. Callers that must not fail on bad
// input branch on OK instead of handling an error return.
type Result struct {
	expr Expression
	err  error
}

// TryParse parses text and captures the outcome instead of returning an error.
func TryParse(text string) Result {
	e, err := Parse(text)
	return Result{expr: e, err: err}
}

func (r Result) OK() bool { return r.err == nil }

// Expression returns the parsed expression; zero when parsing failed.
func (r Result) Expression() Expression { return r.expr }

func (r Result) Err() error { return r.err }

// Or returns the parsed expression, or fallback when parsing failed.
func (r Result) Or(fallback Expression) Expression {
	if r.err != nil {
		return fallback
	}
	return r.expr
}
