package translate

// MappedOptions is the destination sampling-options bag produced by
// MapOptions, ready to be applied to a NormalizedRequest.
type MappedOptions struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   int
	Stop        []string
	Seed        *int
}

// MapOptions maps an Ollama options bag to the upstream option set.
//
// temperature, top_p, stop, and seed carry through with identical numeric
// semantics; num_predict becomes max_tokens. top_k has no upstream
// equivalent and is dropped; the drop is reported in the returned warning
// list rather than raised as an error. Mapping has no side effects and is
// idempotent: the same input always yields the same output and warnings.
func MapOptions(opts *Options) (MappedOptions, []string) {
	var mapped MappedOptions
	if opts == nil {
		return mapped, nil
	}

	var warnings []string

	mapped.Temperature = opts.Temperature
	mapped.TopP = opts.TopP
	mapped.Seed = opts.Seed
	if opts.NumPredict != nil {
		mapped.MaxTokens = *opts.NumPredict
	}
	if len(opts.Stop) > 0 {
		mapped.Stop = append([]string(nil), opts.Stop...)
	}
	if opts.TopK != nil {
		warnings = append(warnings, "option top_k has no upstream equivalent and was dropped")
	}

	return mapped, warnings
}

// apply copies the mapped options onto a normalized request.
func (m MappedOptions) apply(req *NormalizedRequest) {
	req.Temperature = m.Temperature
	req.TopP = m.TopP
	req.MaxTokens = m.MaxTokens
	req.Stop = m.Stop
	req.Seed = m.Seed
}
