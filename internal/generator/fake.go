package generator

import "context"

// FakeClient returns a fixed sequence of responses, one per call, repeating
// the last entry once exhausted — enough to drive the retry loop in tests
// without a live model, matching the teacher's fake-over-mock convention.
type FakeClient struct {
	Responses []string
	calls     int
	Err       error
}

func (f *FakeClient) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Responses) == 0 {
		return "", nil
	}
	idx := f.calls
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	}
	f.calls++
	return f.Responses[idx], nil
}

// Calls reports how many times GenerateContent was invoked.
func (f *FakeClient) Calls() int { return f.calls }
