package llm

import "context"

// Fake returns a canned completion for offline use and tests.
type Fake struct {
	Response string
	Err      error

	// Calls records every (system, user) pair in order.
	Calls []FakeCall
}

type FakeCall struct {
	System string
	User   string
}

func (f *Fake) Name() string { return "FakeLLM" }
func (f *Fake) Close() error { return nil }

func (f *Fake) Generate(_ context.Context, system, user string) (string, error) {
	f.Calls = append(f.Calls, FakeCall{System: system, User: user})
	if f.Err != nil {
		return "", f.Err
	}
	return f.Response, nil
}
